// Package jsonutil decodes request fields that clients send with inconsistent JSON types.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, accepting numbers and
// booleans in place of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleString is a string field that also accepts a JSON number or boolean.
// Legacy report builders send numeric table ids unquoted.
type FlexibleString string

func (s *FlexibleString) UnmarshalJSON(data []byte) error {
	*s = FlexibleString(FlexibleStringValue(data))
	return nil
}

// FlexibleInt is an integer field that also accepts a numeric string ("25") or null.
type FlexibleInt int

func (i *FlexibleInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		*i = 0
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("expected a number, got %s", raw)
		}
		str = strings.TrimSpace(str)
		if str == "" {
			*i = 0
			return nil
		}
		f, err = strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("expected a number, got %q", str)
		}
	}

	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return fmt.Errorf("expected an integer, got %s", raw)
	}
	*i = FlexibleInt(f)
	return nil
}
