// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts typed by users,
// where dots, commas and spaces are grouping separators (amounts are whole
// currency units).
package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed amount to a float64.
//
// Grouping separators are stripped before parsing, so "1.500.000",
// "1,500,000" and "1 500 000" all yield 1500000. Signs and any other
// non-digit characters are rejected. The result is always positive.
//
// Examples:
//
//	ParseAmount("500000")    -> 500000, nil
//	ParseAmount("2.000.000") -> 2000000, nil
//	ParseAmount("-1")        -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == ',' || r == ' ' || r == '\u00a0':
			// grouping separator
		default:
			return 0, ErrInvalidAmount
		}
	}
	if b.Len() == 0 {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return d.InexactFloat64(), nil
}

// FlexibleAmount decodes either a JSON number or a user-typed string amount.
type FlexibleAmount float64

func (a *FlexibleAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ErrInvalidAmount
		}
		v, err := ParseAmount(s)
		if err != nil {
			return err
		}
		*a = FlexibleAmount(v)
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return ErrInvalidAmount
	}
	*a = FlexibleAmount(d.InexactFloat64())
	return nil
}
