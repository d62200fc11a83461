package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// toDecimal converts a raw JSON value to a decimal.
// Missing values (nil or empty string) yield def; anything else that is not a
// number is an error.
func toDecimal(v interface{}, def decimal.Decimal) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return def, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return def, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%q is not a number", x)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("%q is not a number", x.String())
		}
		return d, nil
	case decimal.Decimal:
		return x, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported value type %T", v)
	}
}

// toText returns a string value, or "" for anything else
func toText(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
