package mutation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crudschema/internal/schema"
)

const dateLayout = "2006-01-02"

// coerce converts a decoded JSON value into the Go value persisted for the
// field kind. nil passes through as NULL.
func coerce(f schema.FieldDef, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case schema.KindString, schema.KindText, schema.KindEmail, schema.KindPassword:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		return s, nil

	case schema.KindSelect:
		if err := checkOption(f, v); err != nil {
			return nil, err
		}
		return v, nil

	case schema.KindMultiSelect:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("must be a list")
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			if err := checkOption(f, it); err != nil {
				return nil, err
			}
			out = append(out, fmt.Sprint(it))
		}
		return out, nil

	case schema.KindInteger:
		return toInt(v)

	case schema.KindFloat:
		return toFloat(v)

	case schema.KindDecimal:
		return toDecimal(v)

	case schema.KindBoolean:
		return toBool(v)

	case schema.KindDate:
		return toTime(v, dateLayout)

	case schema.KindDateTime:
		return toTime(v, time.RFC3339)

	case schema.KindJSON:
		return v, nil

	case schema.KindComputed:
		return nil, fmt.Errorf("computed fields cannot be written")
	}
	return nil, fmt.Errorf("unsupported field type %q", f.Kind)
}

func checkOption(f schema.FieldDef, v any) error {
	if len(f.Options) == 0 {
		return nil
	}
	want := fmt.Sprint(v)
	for _, o := range f.Options {
		if fmt.Sprint(o.Value) == want {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of the allowed options", want)
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("must be a whole number")
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("must be a whole number")
		}
		return i, nil
	}
	return 0, fmt.Errorf("must be a whole number")
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("must be a number")
		}
		return f, nil
	}
	return 0, fmt.Errorf("must be a number")
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("must be a decimal number")
		}
		return d, nil
	}
	return decimal.Decimal{}, fmt.Errorf("must be a decimal number")
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		if b == 0 || b == 1 {
			return b == 1, nil
		}
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed, nil
		}
	}
	return false, fmt.Errorf("must be a boolean")
}

func toTime(v any, layout string) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(layout, strings.TrimSpace(t))
		if err != nil {
			return time.Time{}, fmt.Errorf("must match %s", layout)
		}
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("must be a %s string", layout)
}
