package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"

	Cash     PaymentMethod = "cash"
	Transfer PaymentMethod = "transfer"
	EWallet  PaymentMethod = "e-wallet"
)

// DefaultMaxTransactionAmount is the safety cap applied when no other value is configured.
const DefaultMaxTransactionAmount = 100_000_000_000

const dateLayout = "2006-01-02"

type (
	TransactionType string
	PaymentMethod   string

	// Date is a calendar date without a time component, serialized as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID            string          `json:"id"`
		Date          Date            `json:"date"`
		Amount        float64         `json:"amount"`
		CategoryID    string          `json:"categoryId"`
		Description   string          `json:"description"`
		Type          TransactionType `json:"type"`
		PaymentMethod PaymentMethod   `json:"paymentMethod"`
		CreatedAt     int64           `json:"createdAt"`
	}

	Category struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Type      TransactionType `json:"type"`
		Color     string          `json:"color"`
		Icon      string          `json:"icon,omitempty"`
		IsDefault bool            `json:"isDefault,omitempty"`
	}
)

var (
	ErrEmptyID              = errors.New("empty id")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrEmptyCategory        = errors.New("empty category")
	ErrEmptyName            = errors.New("empty name")
	ErrDescriptionTooLong   = errors.New("description too long (max 200 characters)")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts YYYY-MM-DD and, for legacy records, a full RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (p PaymentMethod) Valid() bool {
	switch p {
	case Cash, Transfer, EWallet:
		return true
	default:
		return false
	}
}

// AmountIsSafe reports whether amount is finite, non-negative and below maxAmount.
func AmountIsSafe(amount, maxAmount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return amount >= 0 && amount < maxAmount
}

func (t Transaction) Validate(maxAmount float64) error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if !AmountIsSafe(t.Amount, maxAmount) || t.Amount == 0 {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if !t.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}
