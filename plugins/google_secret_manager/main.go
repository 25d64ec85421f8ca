package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/mywio/gitlab-credentials/pkg/core"
)

// secretAccessor is the part of the Secret Manager client the plugin uses.
type secretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type SecretManagerPlugin struct {
	client    secretAccessor
	logger    *slog.Logger
	projectID string
	initErr   error
}

type secretManagerConfig struct {
	ProjectID string `yaml:"project_id"`
}

var Plugin core.Plugin = &SecretManagerPlugin{}

func (p *SecretManagerPlugin) Name() string {
	return "google_secret_manager"
}

func (p *SecretManagerPlugin) Description() string {
	return "Resolves secrets from Google Cloud Secret Manager"
}

func (p *SecretManagerPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	if registry != nil {
		var cfg secretManagerConfig
		if err := core.DecodeConfigSection(registry.GetConfig()["google_secret_manager"], &cfg); err != nil {
			p.logger.WarnContext(ctx, "Invalid google_secret_manager config", "error", err)
		}
		p.projectID = cfg.ProjectID
	}
	if p.client != nil {
		return nil
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		// Without credentials the host still runs; lookups fail instead.
		p.initErr = err
		p.logger.WarnContext(ctx, "Secret Manager client unavailable", "error", err)
		return nil
	}
	p.client = client
	return nil
}

func (p *SecretManagerPlugin) Start(ctx context.Context) error {
	p.logger.Info("Secret Manager Plugin Started", "project_id", p.projectID)
	return nil
}

func (p *SecretManagerPlugin) Stop(ctx context.Context) error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *SecretManagerPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilitySecrets}
}

func (p *SecretManagerPlugin) Status() core.ServiceStatus {
	if p.client == nil {
		return core.StatusUnhealthy
	}
	return core.StatusHealthy
}

func (p *SecretManagerPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "get_secret" {
		return nil, fmt.Errorf("unknown action: %s", action)
	}
	name, _ := params["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("missing name")
	}
	return p.access(ctx, name)
}

func (p *SecretManagerPlugin) access(ctx context.Context, name string) (core.Secret, error) {
	if p.client == nil {
		if p.initErr != nil {
			return core.Secret{}, fmt.Errorf("secret manager unavailable: %w", p.initErr)
		}
		return core.Secret{}, fmt.Errorf("secret manager not initialized")
	}
	resource, err := p.resourceName(name)
	if err != nil {
		return core.Secret{}, err
	}
	resp, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return core.Secret{}, fmt.Errorf("access %s: %w", resource, err)
	}
	return core.NewSecret(strings.TrimSpace(string(resp.GetPayload().GetData()))), nil
}

// resourceName expands short names to the latest version in the configured
// project. Full "projects/..." names pass through.
func (p *SecretManagerPlugin) resourceName(name string) (string, error) {
	if strings.HasPrefix(name, "projects/") {
		if !strings.Contains(name, "/versions/") {
			return name + "/versions/latest", nil
		}
		return name, nil
	}
	if p.projectID == "" {
		return "", fmt.Errorf("secret %q needs project_id", name)
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", p.projectID, name), nil
}

func main() {}
