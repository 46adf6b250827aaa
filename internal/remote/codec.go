package remote

import (
	"encoding/json"
	"fmt"
)

// Encode converts a typed value into a Record through its JSON form.
func Encode(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return rec, nil
}

// EncodeFields converts a typed partial value into Fields.
func EncodeFields(v any) (Fields, error) {
	rec, err := Encode(v)
	return Fields(rec), err
}

// Decode converts a Record into T.
func Decode[T any](rec Record) (T, error) {
	var out T
	b, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}

// DecodeAll decodes every record, stopping at the first failure.
func DecodeAll[T any](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := Decode[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Merge returns a copy of rec with fields applied on top.
func Merge(rec Record, fields Fields) Record {
	out := Clone(rec)
	if out == nil {
		out = Record{}
	}
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

// Clone deep-copies rec.
func Clone(rec Record) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Clone(Record(t)))
	case Record:
		return Clone(t)
	case Fields:
		return map[string]any(Clone(Record(t)))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
