package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FlexID decodes identifiers sent either as JSON numbers or numeric strings.
// null and "" decode to 0.
type FlexID int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	raw, isNull := unquote(data)
	if isNull || raw == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*f = FlexID(v)
	return nil
}

// FlexFloat decodes nullable numbers sent as JSON numbers or decimal strings
// ("8.5", "8,5", "$ 1.250,00").
type FlexFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	raw, isNull := unquote(data)
	if isNull || raw == "" {
		*f = FlexFloat{}
		return nil
	}
	v, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

// Ptr returns nil for missing values.
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// Or returns the value or fallback when missing.
func (f FlexFloat) Or(fallback float64) float64 {
	if !f.Valid {
		return fallback
	}
	return f.Value
}

// FlexBool decodes booleans sent as true/false, 1/0 or their string forms.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexBool) UnmarshalJSON(data []byte) error {
	raw, isNull := unquote(data)
	if isNull {
		*f = false
		return nil
	}
	switch strings.ToLower(raw) {
	case "true", "1", "si", "sí", "yes":
		*f = true
	case "false", "0", "no", "":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %s", string(data))
	}
	return nil
}

// FlexTime decodes dates sent as RFC3339 timestamps or plain YYYY-MM-DD dates.
type FlexTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexTime) UnmarshalJSON(data []byte) error {
	raw, isNull := unquote(data)
	if isNull || raw == "" {
		*f = FlexTime{}
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			*f = FlexTime{Time: t.UTC(), Valid: true}
			return nil
		}
	}
	return fmt.Errorf("invalid date %s", string(data))
}

// Ptr returns nil for missing values.
func (f FlexTime) Ptr() *time.Time {
	if !f.Valid {
		return nil
	}
	t := f.Time
	return &t
}

// ParseAmount parses a decimal string typed by a user or sent by the backend.
// Currency signs and spaces are ignored. The right-most of '.' or ',' is the decimal separator,
// so a lone separator is always decimal: "1,250" and "1.250" both parse as 1.25, never 1250.
// Thousands separators are only recognised when a different decimal separator follows them
// ("1.250,00", "1,250.00"). The parsed value is echoed back in validation results.
func ParseAmount(raw string) (float64, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-', r == '+':
			b.WriteRune(r)
		case r == '$', r == ' ', r == '\u00a0':
		default:
			return 0, fmt.Errorf("amount %q is not a number", raw)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, fmt.Errorf("amount %q is not a number", raw)
	}

	dot, comma := strings.LastIndex(cleaned, "."), strings.LastIndex(cleaned, ",")
	switch {
	case comma > dot:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case dot > comma && comma >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	if strings.Count(cleaned, ".") > 1 || strings.Contains(cleaned, ",") {
		return 0, fmt.Errorf("amount %q is not a number", raw)
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("amount %q is not a number", raw)
	}
	return v, nil
}

func unquote(data []byte) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return "", true
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return strings.TrimSpace(s), false
		}
	}
	return string(trimmed), false
}
