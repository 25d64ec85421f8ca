package credentials

import (
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/mywio/gitlab-credentials/pkg/core"
)

// TokenLength is the length of a GitLab personal access token.
const TokenLength = 20

// PersonalAccessToken is a credential that authenticates against the GitLab
// API with a bearer token.
type PersonalAccessToken interface {
	Credentials
	Token() core.Secret
}

var _ PersonalAccessToken = (*PersonalAccessTokenImpl)(nil)

// PersonalAccessTokenImpl is the default PersonalAccessToken, holding the
// token in memory.
type PersonalAccessTokenImpl struct {
	BaseCredentials
	token      core.Secret
	descriptor *PersonalAccessTokenDescriptor
}

// NewPersonalAccessToken wraps token as given. It does not validate the
// token; callers run CheckToken first. Use PersonalAccessTokenDescriptor.New
// for values that may be host-encrypted.
func NewPersonalAccessToken(scope Scope, id, description, token string) *PersonalAccessTokenImpl {
	return newPersonalAccessToken(scope, id, description, core.NewSecret(token))
}

func newPersonalAccessToken(scope Scope, id, description string, token core.Secret) *PersonalAccessTokenImpl {
	return &PersonalAccessTokenImpl{
		BaseCredentials: NewBaseCredentials(scope, id, description),
		token:           token,
	}
}

func (t *PersonalAccessTokenImpl) Token() core.Secret {
	return t.token
}

func (t *PersonalAccessTokenImpl) DisplayName() string {
	if t.Description() != "" {
		return t.Description()
	}
	return MsgDisplayName + " (" + t.ID() + ")"
}

// String and GoString keep fmt from walking into the unexported token field.
func (t *PersonalAccessTokenImpl) String() string {
	return "PersonalAccessToken{scope=" + string(t.Scope()) + ", id=" + t.ID() + ", token=" + t.token.Redacted() + "}"
}

func (t *PersonalAccessTokenImpl) GoString() string {
	return "&credentials." + t.String()
}

// Descriptor returns the descriptor that built t, falling back to the
// registered one for tokens made with NewPersonalAccessToken.
func (t *PersonalAccessTokenImpl) Descriptor() Descriptor {
	if t.descriptor != nil {
		return t.descriptor
	}
	if d, ok := LookupDescriptor(PersonalAccessTokenKind); ok {
		return d
	}
	return &PersonalAccessTokenDescriptor{}
}

// TokenSource exposes the token to oauth2-aware HTTP clients.
func (t *PersonalAccessTokenImpl) TokenSource() oauth2.TokenSource {
	return NewTokenSource(t)
}

// CheckToken validates a token typed into a form or redisplayed from storage.
//
// Values that parse to themselves are fresh input and must be exactly
// TokenLength characters. Values that decode to something else were already
// stored by the host; a bad length there is only a warning so that stored
// credentials do not start failing after the fact.
func CheckToken(value string, parse core.SecretParser) core.FormValidation {
	if parse == nil {
		parse = func(v string) (core.Secret, bool) { return core.ParseSecret(nil, v) }
	}
	secret, ok := parse(value)
	if !ok {
		return core.ValidationError(MsgTokenRequired)
	}
	plain := secret.PlainText()
	if value == plain {
		if utf8.RuneCountInString(value) != TokenLength {
			return core.ValidationError(MsgTokenWrongLength)
		}
	} else if utf8.RuneCountInString(plain) != TokenLength {
		return core.ValidationWarning(MsgTokenWrongLength)
	}
	return core.ValidationOK()
}
