package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/stratumdb/stratum/pkg/errors"
)

// timestampLayouts are tried in order when parsing temporal strings.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts a raw value to the canonical Go representation of the
// given field type: string, float64, int64, bool, or time.Time (UTC).
// Nil input stays nil. A value that cannot be coerced returns an error;
// the cleaner decides whether that nulls the cell or drops the row.
func Coerce(v interface{}, t FieldType) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		// Empty CSV cells are nulls, not empty strings.
		return nil, nil
	}

	switch t {
	case TypeString:
		return coerceString(v)
	case TypeFloat:
		return coerceFloat(v)
	case TypeInt:
		return coerceInt(v)
	case TypeBool:
		return coerceBool(v)
	case TypeTimestamp:
		return coerceTime(v, false)
	case TypeDate:
		return coerceTime(v, true)
	default:
		return nil, errors.New(errors.ErrorTypeInternal, "unknown field type").
			WithDetail("type", string(t))
	}
}

func coerceString(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339), nil
	}
	return nil, uncoercible(v, TypeString)
}

func coerceFloat(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, uncoercible(v, TypeFloat)
		}
		return f, nil
	}
	return nil, uncoercible(v, TypeFloat)
}

func coerceInt(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x != float64(int64(x)) {
			return nil, uncoercible(v, TypeInt)
		}
		return int64(x), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, uncoercible(v, TypeInt)
		}
		return i, nil
	}
	return nil, uncoercible(v, TypeInt)
}

func coerceBool(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return nil, uncoercible(v, TypeBool)
		}
		return b, nil
	}
	return nil, uncoercible(v, TypeBool)
}

func coerceTime(v interface{}, dateOnly bool) (interface{}, error) {
	var ts time.Time
	switch x := v.(type) {
	case time.Time:
		ts = x.UTC()
	case string:
		parsed, ok := parseTimestamp(strings.TrimSpace(x))
		if !ok {
			return nil, uncoercible(v, TypeTimestamp)
		}
		ts = parsed
	default:
		return nil, uncoercible(v, TypeTimestamp)
	}

	if dateOnly {
		return Midnight(ts), nil
	}
	return ts, nil
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// Midnight normalizes a timestamp to its UTC calendar date.
func Midnight(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

func uncoercible(v interface{}, t FieldType) error {
	return errors.New(errors.ErrorTypeValidation, "value cannot be coerced").
		WithDetail("value", v).
		WithDetail("target_type", string(t))
}
