package domain

import "strings"

// Violations maps a field name to a short violation code.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

func (v Violations) Add(field string, code string) {
	if _, exists := v[field]; !exists {
		v[field] = code
	}
}

func (v Violations) Required(field string, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "required")
	}
}

func (v Violations) Positive(field string, value int64) {
	if value <= 0 {
		v.Add(field, "must_be_positive")
	}
}

func (v Violations) NonNegative(field string, value int64) {
	if value < 0 {
		v.Add(field, "must_not_be_negative")
	}
}

func (v Violations) Check(field string, ok bool, code string) {
	if !ok {
		v.Add(field, code)
	}
}

// Err returns nil when no violation was recorded.
func (v Violations) Err() error {
	if v.Empty() {
		return nil
	}
	return &ValidationError{Violations: v}
}
