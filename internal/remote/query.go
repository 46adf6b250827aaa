package remote

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
)

// Apply filters records by equality and sorts them stably by order.
func Apply(recs []Record, filters []Filter, order OrderBy) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if Matches(rec, filters) {
			out = append(out, rec)
		}
	}
	if order.Field == "" {
		return out
	}
	slices.SortStableFunc(out, func(a, b Record) int {
		c := compareValues(a[order.Field], b[order.Field])
		if order.Desc {
			return -c
		}
		return c
	})
	return out
}

// Matches reports whether rec satisfies every filter.
func Matches(rec Record, filters []Filter) bool {
	for _, f := range filters {
		if compareValues(rec[f.Field], f.Value) != 0 {
			return false
		}
	}
	return true
}

// rank orders values of different kinds: missing, bool, number, string, other.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func compareValues(a, b any) int {
	a, b = normalize(a), normalize(b)
	if ra, rb := rank(a), rank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case nil:
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		return cmp.Compare(x, b.(float64))
	case string:
		return cmp.Compare(x, b.(string))
	default:
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

// normalize maps Go scalar kinds, named or not, onto their JSON types.
func normalize(v any) any {
	switch n := v.(type) {
	case nil, bool, float64, string:
		return v
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return v
	}
}
