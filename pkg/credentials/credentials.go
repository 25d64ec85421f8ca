// Package credentials holds credential types contributed to the host's
// credential store, starting with GitLab personal access tokens.
package credentials

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/mywio/gitlab-credentials/pkg/core"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Credentials is the generic capability every credential type offers the host.
type Credentials interface {
	Scope() Scope
	ID() string
	Description() string
	DisplayName() string
	Descriptor() Descriptor
}

// BaseCredentials carries the identity shared by all credential types.
// It is embedded by concrete types and never mutated after construction.
type BaseCredentials struct {
	scope       Scope
	id          string
	description string
}

// NewBaseCredentials fills in defaults: an empty scope becomes ScopeGlobal and
// an empty id gets a random UUID.
func NewBaseCredentials(scope Scope, id, description string) BaseCredentials {
	if scope == "" {
		scope = ScopeGlobal
	}
	if id == "" {
		id = uuid.NewString()
	}
	return BaseCredentials{scope: scope, id: id, description: description}
}

func (c BaseCredentials) Scope() Scope        { return c.scope }
func (c BaseCredentials) ID() string          { return c.id }
func (c BaseCredentials) Description() string { return c.description }

// CheckID validates a user supplied credential id. Empty ids are accepted
// because one is generated on construction.
func CheckID(id string) core.FormValidation {
	if id == "" || idPattern.MatchString(id) {
		return core.ValidationOK()
	}
	return core.ValidationError(MsgUnacceptableID)
}
