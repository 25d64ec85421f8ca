package core

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
)

const redactedValue = "REDACTED"

// Secret represents sensitive values that should be redacted in UI/API output.
// The plaintext is only reachable through PlainText. Secrets are deliberately
// not comparable with ==; use Equal.
type Secret struct {
	value string
	_     [0]func()
}

// NewSecret wraps a raw value as a Secret.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// PlainText returns the wrapped value.
func (s Secret) PlainText() string {
	return s.value
}

// IsEmpty reports whether the secret wraps the empty string.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

// Equal compares two secrets in constant time.
func (s Secret) Equal(other Secret) bool {
	return subtle.ConstantTimeCompare([]byte(s.value), []byte(other.value)) == 1
}

// Redacted returns a redacted representation for display.
func (s Secret) Redacted() string {
	if s.value == "" {
		return ""
	}
	return redactedValue
}

// MarshalJSON ensures secrets are never serialized in cleartext.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Redacted())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.Redacted()), nil
}

func (s Secret) MarshalYAML() (interface{}, error) {
	return s.Redacted(), nil
}

// String returns the redacted value for fmt printing.
func (s Secret) String() string {
	return s.Redacted()
}

// GoString covers the %#v verb.
func (s Secret) GoString() string {
	return "core.Secret{" + s.Redacted() + "}"
}

// LogValue keeps slog handlers from reaching into the struct.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.Redacted())
}
