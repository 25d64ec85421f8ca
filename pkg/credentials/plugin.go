package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mywio/gitlab-credentials/pkg/core"
)

// PluginName is also the plugin's config section.
const PluginName = "gitlab_credentials"

const (
	EventCredentialRegistered core.EventTypeName = "credential_registered"
	EventCredentialRejected   core.EventTypeName = "credential_rejected"
)

// ErrCredentialNotFound is returned for unknown credential ids.
var ErrCredentialNotFound = errors.New("credential not found")

type credentialEntry struct {
	ID          string `yaml:"id"`
	Scope       string `yaml:"scope"`
	Description string `yaml:"description"`
	Token       string `yaml:"token"`
	TokenRef    string `yaml:"token_ref"`
}

type pluginConfig struct {
	BaseURL     string            `yaml:"base_url"`
	Token       string            `yaml:"token"`
	TokenID     string            `yaml:"token_id"`
	Credentials []credentialEntry `yaml:"credentials"`
}

type credentialInfo struct {
	Kind        string      `json:"kind"`
	ID          string      `json:"id"`
	Scope       Scope       `json:"scope"`
	Description string      `json:"description,omitempty"`
	DisplayName string      `json:"display_name"`
	Token       core.Secret `json:"token"`
}

// Plugin contributes GitLab personal access tokens to the host. Credentials
// come from the gitlab_credentials config section and are checked with
// CheckToken before they are kept.
type Plugin struct {
	logger     *slog.Logger
	registry   core.PluginRegistry
	descriptor *PersonalAccessTokenDescriptor
	baseURL    string
	client     *http.Client

	mu     sync.RWMutex
	tokens map[string]*PersonalAccessTokenImpl
	order  []string
}

var _ core.Plugin = (*Plugin)(nil)
var _ core.ConfigProvider = (*Plugin)(nil)

func NewPlugin() *Plugin {
	return &Plugin{
		tokens:     map[string]*PersonalAccessTokenImpl{},
		descriptor: &PersonalAccessTokenDescriptor{},
	}
}

func (p *Plugin) Name() string { return PluginName }

func (p *Plugin) Description() string {
	return "GitLab personal access token credentials"
}

func (p *Plugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	p.registry = registry
	p.baseURL = DefaultBaseURL
	p.client = http.DefaultClient
	if p.descriptor == nil {
		p.descriptor = &PersonalAccessTokenDescriptor{}
	}

	var cfg pluginConfig
	if registry != nil {
		p.descriptor = &PersonalAccessTokenDescriptor{Parse: registry.ParseSecret}
		p.client = registry.GetHTTPClient()
		if section, ok := registry.GetConfig()[PluginName]; ok {
			if err := core.DecodeConfigSection(section, &cfg); err != nil {
				return fmt.Errorf("invalid %s config: %w", PluginName, err)
			}
		}
		p.registerEventTypes()
	}
	if cfg.BaseURL != "" {
		p.baseURL = cfg.BaseURL
	}

	if err := RegisterDescriptor(p.descriptor); err != nil && !errors.Is(err, ErrDescriptorExists) {
		return err
	}

	entries := cfg.Credentials
	if cfg.Token != "" {
		entries = append(entries, credentialEntry{ID: cfg.TokenID, Token: cfg.Token, Description: "from environment"})
	}
	for _, entry := range entries {
		p.load(ctx, entry)
	}

	if registry != nil {
		p.registerRoutes(registry.GetMuxServer())
	}

	p.logger.InfoContext(ctx, "gitlab_credentials initialized", "credentials", p.count(), "base_url", p.baseURL)
	return nil
}

func (p *Plugin) registerEventTypes() {
	for _, desc := range []core.EventTypeDesc{
		{
			Name:        EventCredentialRegistered,
			Description: "A credential passed validation and was added",
			PayloadSpec: map[string]core.PayloadField{
				"kind": {Type: "string", Description: "Descriptor kind", Required: true},
			},
		},
		{
			Name:        EventCredentialRejected,
			Description: "A configured credential failed validation",
			PayloadSpec: map[string]core.PayloadField{
				"message": {Type: "string", Description: "Validation message", Required: true},
			},
		},
	} {
		if err := p.registry.RegisterEventType(desc); err != nil && !errors.Is(err, core.ErrEventTypeExists) {
			p.logger.Warn("Failed to register event type", "name", desc.Name, "error", err)
		}
	}
}

func (p *Plugin) load(ctx context.Context, entry credentialEntry) {
	scope, err := ParseScope(entry.Scope)
	if err != nil {
		p.reject(ctx, entry.ID, err.Error())
		return
	}

	raw := entry.Token
	if raw == "" && entry.TokenRef != "" {
		secret, err := p.resolveRef(ctx, entry.TokenRef)
		if err != nil {
			p.reject(ctx, entry.ID, err.Error())
			return
		}
		raw = secret.PlainText()
	}

	if v := p.descriptor.CheckID(entry.ID); v.IsBlocking() {
		p.reject(ctx, entry.ID, v.Message)
		return
	}
	v := p.descriptor.CheckToken(raw)
	if v.IsBlocking() {
		p.reject(ctx, entry.ID, v.Message)
		return
	}
	if v.Kind == core.ValidationKindWarning {
		p.logger.WarnContext(ctx, "Credential accepted with warning", "id", entry.ID, "message", v.Message)
	}

	cred := p.descriptor.New(scope, entry.ID, entry.Description, raw)
	if err := p.add(cred); err != nil {
		p.reject(ctx, cred.ID(), err.Error())
		return
	}
	p.logger.InfoContext(ctx, "Credential registered", "id", cred.ID(), "scope", cred.Scope(), "token", cred.Token())
	p.publish(ctx, core.InternalEvent{
		Type:    EventCredentialRegistered,
		Source:  PluginName,
		Subject: cred.ID(),
		Details: map[string]interface{}{"kind": PersonalAccessTokenKind},
	})
}

func (p *Plugin) reject(ctx context.Context, id, message string) {
	p.logger.ErrorContext(ctx, "Credential rejected", "id", id, "message", message)
	p.publish(ctx, core.InternalEvent{
		Type:    EventCredentialRejected,
		Source:  PluginName,
		Subject: id,
		String:  fmt.Sprintf("Credential %s rejected: %s", id, message),
		Details: map[string]interface{}{"message": message},
	})
}

func (p *Plugin) publish(ctx context.Context, event core.InternalEvent) {
	if err := core.Publish(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "Event not published", "type", event.Type, "error", err)
	}
}

// resolveRef asks every SECRETS plugin for ref and returns the first hit.
func (p *Plugin) resolveRef(ctx context.Context, ref string) (core.Secret, error) {
	if p.registry == nil {
		return core.Secret{}, fmt.Errorf("token_ref %s: no secrets provider", ref)
	}
	providers := p.registry.PluginsWithCapability(core.CapabilitySecrets)
	if len(providers) == 0 {
		return core.Secret{}, fmt.Errorf("token_ref %s: no secrets provider", ref)
	}
	var errs []error
	for _, provider := range providers {
		res, err := provider.Execute(ctx, "get_secret", map[string]interface{}{"name": ref})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		if s, ok := res.(core.Secret); ok && !s.IsEmpty() {
			return s, nil
		}
	}
	return core.Secret{}, fmt.Errorf("token_ref %s not resolved: %w", ref, errors.Join(errs...))
}

func (p *Plugin) add(cred *PersonalAccessTokenImpl) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tokens == nil {
		p.tokens = map[string]*PersonalAccessTokenImpl{}
	}
	if _, exists := p.tokens[cred.ID()]; exists {
		return fmt.Errorf("duplicate credential id %s", cred.ID())
	}
	p.tokens[cred.ID()] = cred
	p.order = append(p.order, cred.ID())
	return nil
}

func (p *Plugin) count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Lookup returns the credential registered under id.
func (p *Plugin) Lookup(id string) (PersonalAccessToken, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cred, ok := p.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
	}
	return cred, nil
}

// List returns credentials in the order they were registered.
func (p *Plugin) List() []PersonalAccessToken {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PersonalAccessToken, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.tokens[id])
	}
	return out
}

func (p *Plugin) infos() []credentialInfo {
	creds := p.List()
	out := make([]credentialInfo, 0, len(creds))
	for _, c := range creds {
		out = append(out, credentialInfo{
			Kind:        c.Descriptor().Kind(),
			ID:          c.ID(),
			Scope:       c.Scope(),
			Description: c.Description(),
			DisplayName: c.DisplayName(),
			Token:       c.Token(),
		})
	}
	return out
}

func (p *Plugin) Start(ctx context.Context) error {
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	return nil
}

func (p *Plugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityCredentials, core.CapabilityAPI}
}

func (p *Plugin) Status() core.ServiceStatus {
	if p.count() == 0 {
		return core.StatusDegraded
	}
	return core.StatusHealthy
}

func (p *Plugin) Config() any {
	return map[string]any{
		"base_url":    p.baseURL,
		"credentials": p.infos(),
	}
}

func (p *Plugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "check_token":
		value, _ := params["value"].(string)
		return p.descriptor.CheckToken(value), nil
	case "check_id":
		value, _ := params["value"].(string)
		return p.descriptor.CheckID(value), nil
	case "list":
		return p.infos(), nil
	case "get_token":
		cred, err := p.lookupParam(params)
		if err != nil {
			return nil, err
		}
		return cred.Token(), nil
	case "verify_token":
		cred, err := p.lookupParam(params)
		if err != nil {
			return nil, err
		}
		return VerifyToken(ctx, p.client, p.baseURL, cred)
	default:
		return nil, fmt.Errorf("unknown action: %s", action)
	}
}

func (p *Plugin) lookupParam(params map[string]interface{}) (PersonalAccessToken, error) {
	id, _ := params["id"].(string)
	if id == "" {
		return nil, errors.New("missing id")
	}
	return p.Lookup(id)
}
