package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mywio/gitlab-credentials/pkg/core"
)

// EnvSecretsPlugin serves allowlisted environment variables as secrets, so a
// credential can say token_ref: GITLAB_RELEASE_TOKEN.
type EnvSecretsPlugin struct {
	logger   *slog.Logger
	keys     []string
	prefixes []string
	enabled  bool
}

type envSecretsConfig struct {
	Keys     []string `yaml:"keys"`
	Prefixes []string `yaml:"prefixes"`
}

var Plugin core.Plugin = &EnvSecretsPlugin{}

func (p *EnvSecretsPlugin) Name() string {
	return "env_secrets"
}

func (p *EnvSecretsPlugin) Description() string {
	return "Serves allowlisted environment variables as secrets"
}

func (p *EnvSecretsPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger

	if registry != nil {
		if section, ok := registry.GetConfig()["env_secrets"]; ok {
			var ecfg envSecretsConfig
			if err := core.DecodeConfigSection(section, &ecfg); err != nil {
				p.logger.WarnContext(ctx, "Invalid env_secrets config", "error", err)
			}
			p.keys = normalizeList(ecfg.Keys)
			p.prefixes = normalizeList(ecfg.Prefixes)
		}
	}

	if len(p.keys) == 0 && len(p.prefixes) == 0 {
		p.logger.WarnContext(ctx, "env_secrets has no keys or prefixes configured, disabled")
		p.enabled = false
		return nil
	}

	p.enabled = true
	p.logger.InfoContext(ctx, "env_secrets initialized", "keys", len(p.keys), "prefixes", len(p.prefixes))
	return nil
}

func (p *EnvSecretsPlugin) Start(ctx context.Context) error {
	return nil
}

func (p *EnvSecretsPlugin) Stop(ctx context.Context) error {
	return nil
}

func (p *EnvSecretsPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilitySecrets}
}

func (p *EnvSecretsPlugin) Status() core.ServiceStatus {
	if p.enabled {
		return core.StatusHealthy
	}
	return core.StatusDegraded
}

func (p *EnvSecretsPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "get_secret" {
		return nil, fmt.Errorf("unknown action: %s", action)
	}
	name, _ := params["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("missing name")
	}
	if !p.enabled || !p.allowed(name) {
		return nil, fmt.Errorf("env var %s is not allowlisted", name)
	}
	value, ok := os.LookupEnv(name)
	if !ok {
		p.logger.WarnContext(ctx, "Env var not set", "key", name)
		return nil, fmt.Errorf("env var %s not set", name)
	}
	return core.NewSecret(value), nil
}

func (p *EnvSecretsPlugin) allowed(name string) bool {
	for _, key := range p.keys {
		if key == name {
			return true
		}
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
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
