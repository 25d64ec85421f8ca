package credentials

import (
	"fmt"
	"strings"
)

// Scope is the visibility of a credential within its store.
type Scope string

const (
	// ScopeGlobal credentials are visible to every job and plugin.
	ScopeGlobal Scope = "GLOBAL"
	// ScopeSystem credentials are only visible to the host itself.
	ScopeSystem Scope = "SYSTEM"
)

// ParseScope accepts scope names case-insensitively. The empty string is
// ScopeGlobal.
func ParseScope(s string) (Scope, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(ScopeGlobal):
		return ScopeGlobal, nil
	case string(ScopeSystem):
		return ScopeSystem, nil
	default:
		return "", fmt.Errorf("unknown credentials scope %q", s)
	}
}

func (s Scope) String() string {
	return string(s)
}

func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
