package model

import (
	"fmt"
	"strings"
)

// Payload is an opaque source record. Community datasets disagree wildly on
// shape, so payloads are never assumed to have fixed keys; readers go through
// First with a candidate key list.
type Payload map[string]any

// First returns the first non-empty value among the candidate keys,
// stringified. Numeric values are rendered without an exponent.
func (p Payload) First(keys ...string) string {
	if p == nil {
		return ""
	}
	for _, k := range keys {
		v, ok := p[k]
		if !ok || v == nil {
			continue
		}
		s := stringify(v)
		if s != "" {
			return s
		}
	}
	return ""
}

// Sub returns a nested object under the first present candidate key, or nil.
func (p Payload) Sub(keys ...string) Payload {
	if p == nil {
		return nil
	}
	for _, k := range keys {
		switch v := p[k].(type) {
		case map[string]any:
			return Payload(v)
		case Payload:
			return v
		}
	}
	return nil
}

// Bool returns the boolean under the first present candidate key.
// The second return reports whether any candidate held a boolean.
func (p Payload) Bool(keys ...string) (bool, bool) {
	if p == nil {
		return false, false
	}
	for _, k := range keys {
		switch v := p[k].(type) {
		case bool:
			return v, true
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes", "1":
				return true, true
			case "false", "no", "0":
				return false, true
			}
		}
	}
	return false, false
}

// Int returns the integer under the first present candidate key, or 0.
func (p Payload) Int(keys ...string) int {
	if p == nil {
		return 0
	}
	for _, k := range keys {
		switch v := p[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			var n int
			if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
				return n
			}
		}
	}
	return 0
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case int, int64, bool:
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}
