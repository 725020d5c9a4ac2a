package redact

import (
	"fmt"
	"regexp"
)

// RedactedValue is the placeholder for redacted content.
const RedactedValue = "[REDACTED]"

// Redactor handles redaction of sensitive data.
type Redactor struct {
	enabled       bool
	fieldDenylist []string
	textPatterns  []*regexp.Regexp
}

// New creates a new Redactor with default settings.
func New(enabled bool) *Redactor {
	return &Redactor{
		enabled:       enabled,
		fieldDenylist: DefaultFieldDenylist,
		textPatterns:  DefaultTextPatterns,
	}
}

// NewWithCustomRules creates a Redactor with additional field names and
// text patterns.
func NewWithCustomRules(enabled bool, fields []string, patterns []*regexp.Regexp) *Redactor {
	r := New(enabled)
	if fields != nil {
		r.fieldDenylist = append(append([]string{}, r.fieldDenylist...), fields...)
	}
	if patterns != nil {
		r.textPatterns = append(append([]*regexp.Regexp{}, r.textPatterns...), patterns...)
	}
	return r
}

// NewFromRules is NewWithCustomRules for configured rules, where patterns
// are regular expressions that still need compiling.
func NewFromRules(enabled bool, fields, patterns []string) (*Redactor, error) {
	var compiled []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return NewWithCustomRules(enabled, fields, compiled), nil
}

// IsEnabled returns whether redaction is enabled.
func (r *Redactor) IsEnabled() bool {
	return r.enabled
}

// RedactText replaces every sensitive substring of s.
func (r *Redactor) RedactText(s string) string {
	if !r.enabled || s == "" {
		return s
	}
	for _, p := range r.textPatterns {
		s = p.ReplaceAllString(s, RedactedValue)
	}
	return s
}

// RedactFields returns a copy of m with denylisted fields replaced and
// sensitive substrings removed from string values, recursively.
func (r *Redactor) RedactFields(m map[string]interface{}) map[string]interface{} {
	if !r.enabled || m == nil {
		return m
	}
	return r.redactMap(m)
}

// shouldRedactField checks if a field should be redacted.
func (r *Redactor) shouldRedactField(name string) bool {
	for _, pattern := range r.fieldDenylist {
		if matchFieldName(name, pattern) {
			return true
		}
	}
	return false
}

// redactValue recursively redacts sensitive content in a value.
func (r *Redactor) redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return r.redactMap(val)
	case []interface{}:
		return r.redactSlice(val)
	case string:
		return r.RedactText(val)
	default:
		return val
	}
}

// redactMap redacts sensitive fields in an object.
func (r *Redactor) redactMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for key, value := range m {
		if r.shouldRedactField(key) {
			result[key] = RedactedValue
		} else {
			result[key] = r.redactValue(value)
		}
	}
	return result
}

// redactSlice redacts sensitive fields in an array.
func (r *Redactor) redactSlice(s []interface{}) []interface{} {
	result := make([]interface{}, len(s))
	for i, value := range s {
		result[i] = r.redactValue(value)
	}
	return result
}
