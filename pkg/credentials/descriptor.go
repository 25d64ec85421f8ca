package credentials

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mywio/gitlab-credentials/pkg/core"
)

// PersonalAccessTokenKind identifies PersonalAccessTokenDescriptor in the
// descriptor registry.
const PersonalAccessTokenKind = "gitlab_personal_access_token"

// ErrDescriptorExists is returned when a kind is registered twice.
var ErrDescriptorExists = errors.New("credentials descriptor already registered")

// Descriptor advertises a credential type to the host.
type Descriptor interface {
	Kind() string
	DisplayName() string
}

var (
	descriptors   = map[string]Descriptor{}
	descriptorsMu sync.RWMutex
)

// RegisterDescriptor makes d discoverable by kind.
func RegisterDescriptor(d Descriptor) error {
	descriptorsMu.Lock()
	defer descriptorsMu.Unlock()
	if _, exists := descriptors[d.Kind()]; exists {
		return fmt.Errorf("%w: %s", ErrDescriptorExists, d.Kind())
	}
	descriptors[d.Kind()] = d
	return nil
}

func LookupDescriptor(kind string) (Descriptor, bool) {
	descriptorsMu.RLock()
	defer descriptorsMu.RUnlock()
	d, ok := descriptors[kind]
	return d, ok
}

// Descriptors lists registered descriptors sorted by kind.
func Descriptors() []Descriptor {
	descriptorsMu.RLock()
	defer descriptorsMu.RUnlock()
	out := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out
}

// PersonalAccessTokenDescriptor creates and checks GitLab personal access
// tokens. Parse is the host's secret parser; nil treats values as plain text.
type PersonalAccessTokenDescriptor struct {
	Parse core.SecretParser
}

func (d *PersonalAccessTokenDescriptor) Kind() string        { return PersonalAccessTokenKind }
func (d *PersonalAccessTokenDescriptor) DisplayName() string { return MsgDisplayName }

func (d *PersonalAccessTokenDescriptor) parse(value string) (core.Secret, bool) {
	if d.Parse == nil {
		return core.ParseSecret(nil, value)
	}
	return d.Parse(value)
}

// New builds a token from a raw or host-encoded value. A value the parser
// rejects is wrapped as given.
func (d *PersonalAccessTokenDescriptor) New(scope Scope, id, description, token string) *PersonalAccessTokenImpl {
	secret, ok := d.parse(token)
	if !ok {
		secret = core.NewSecret(token)
	}
	cred := newPersonalAccessToken(scope, id, description, secret)
	cred.descriptor = d
	return cred
}

func (d *PersonalAccessTokenDescriptor) CheckToken(value string) core.FormValidation {
	return CheckToken(value, d.parse)
}

func (d *PersonalAccessTokenDescriptor) CheckID(value string) core.FormValidation {
	return CheckID(value)
}
