package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mywio/gitlab-credentials/pkg/core"
)

const defaultPattern = "credential_*"

// CredentialWebhookPlugin posts credential events to a URL, e.g. to alert
// when a configured token is rejected at startup.
type CredentialWebhookPlugin struct {
	logger   *slog.Logger
	url      string
	token    core.Secret
	patterns []string
	client   *http.Client
	enabled  bool
}

type credentialWebhookConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type webhookConfigView struct {
	URL       string      `json:"url"`
	Token     core.Secret `json:"token"`
	Subscribe []string    `json:"subscribe"`
	Enabled   bool        `json:"enabled"`
}

var Plugin core.Plugin = &CredentialWebhookPlugin{}

func (p *CredentialWebhookPlugin) Name() string {
	return "credential_webhook"
}

func (p *CredentialWebhookPlugin) Description() string {
	return "Posts credential events to a webhook"
}

func (p *CredentialWebhookPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	p.client = http.DefaultClient
	p.patterns = []string{defaultPattern}
	if registry == nil {
		return nil
	}

	p.client = registry.GetHTTPClient()
	section := registry.GetConfig()[p.Name()]
	var cfg credentialWebhookConfig
	if err := core.DecodeConfigSection(section, &cfg); err != nil {
		p.logger.WarnContext(ctx, "Invalid credential_webhook config", "error", err)
	}
	p.url = strings.TrimSpace(cfg.URL)
	p.token = core.NewSecret(cfg.Token)
	if _, ok := section["subscribe"]; ok {
		p.patterns = parseSubscribePatterns(section)
	}

	if p.url == "" {
		p.logger.WarnContext(ctx, "credential_webhook url not set, notifications disabled")
		return nil
	}
	p.enabled = true
	for _, pattern := range p.patterns {
		registry.Subscribe(pattern, p.process)
	}
	p.logger.InfoContext(ctx, "credential_webhook initialized", "url", p.url, "patterns", p.patterns, "token", p.token)
	return nil
}

func (p *CredentialWebhookPlugin) Start(ctx context.Context) error {
	return nil
}

func (p *CredentialWebhookPlugin) Stop(ctx context.Context) error {
	return nil
}

func (p *CredentialWebhookPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityNotifier}
}

func (p *CredentialWebhookPlugin) Status() core.ServiceStatus {
	if p.enabled {
		return core.StatusHealthy
	}
	return core.StatusDegraded
}

func (p *CredentialWebhookPlugin) Config() any {
	return webhookConfigView{URL: p.url, Token: p.token, Subscribe: p.patterns, Enabled: p.enabled}
}

func (p *CredentialWebhookPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "notify" {
		return nil, fmt.Errorf("unknown action: %s", action)
	}
	if !p.enabled {
		return nil, fmt.Errorf("credential_webhook disabled")
	}
	event, ok := params["event"].(core.InternalEvent)
	if !ok {
		return nil, fmt.Errorf("missing event")
	}
	if err := p.send(ctx, event); err != nil {
		return nil, err
	}
	return map[string]string{"status": "delivered"}, nil
}

func (p *CredentialWebhookPlugin) process(ctx context.Context, event core.InternalEvent) {
	if err := p.send(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "Credential webhook failed", "type", event.Type, "error", err)
	}
}

func (p *CredentialWebhookPlugin) send(ctx context.Context, event core.InternalEvent) error {
	data, err := json.Marshal(map[string]interface{}{
		"event_type": event.Type,
		"source":     event.Source,
		"credential": event.Subject,
		"message":    event.String,
		"details":    event.Details,
		"timestamp":  event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if !p.token.IsEmpty() {
		req.Header.Set("Authorization", "Bearer "+p.token.PlainText())
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func parseSubscribePatterns(section map[string]any) []string {
	var raw []string
	switch v := section["subscribe"].(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		raw = strings.Split(v, ",")
	case nil:
	default:
		raw = []string{fmt.Sprint(v)}
	}

	out := make([]string, 0, len(raw))
	seen := map[string]struct{}{}
	for _, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func main() {}
