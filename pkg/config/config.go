package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the host's own settings, the "core" config section.
type Config struct {
	HTTPAddr   string
	PluginsDir string
	SecretKey  string // base64 AES-256 key for encrypted secret values
	LogLevel   string
	Timeout    time.Duration // outbound HTTP timeout
}

func LoadConfig() Config {
	timeout, _ := time.ParseDuration(os.Getenv("HTTP_TIMEOUT"))
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return Config{
		HTTPAddr:   os.Getenv("HTTP_ADDR"),
		PluginsDir: os.Getenv("PLUGINS_DIR"),
		SecretKey:  os.Getenv("SECRET_KEY"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		Timeout:    timeout,
	}
}

// ConfigMap is a sectioned configuration map keyed by plugin name (or "core").
// Values are YAML-friendly scalars or nested maps/lists.
type ConfigMap map[string]map[string]any

// LoadConfigFile loads a YAML config file from disk.
// Returns an empty map if the file does not exist or is empty.
func LoadConfigFile(path string) (ConfigMap, error) {
	if path == "" {
		return ConfigMap{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ConfigMap{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return ConfigMap{}, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return normalizeConfigMap(raw), nil
}

// LoadConfigMapFromEnv builds a sectioned config map from environment variables.
// This allows config-file values to override env values without losing defaults.
// Unset variables are left out so they never mask defaults.
func LoadConfigMapFromEnv() ConfigMap {
	return pruneEmpty(ConfigMap{
		"core": {
			"http_addr":    os.Getenv("HTTP_ADDR"),
			"plugins_dir":  os.Getenv("PLUGINS_DIR"),
			"secret_key":   os.Getenv("SECRET_KEY"),
			"log_level":    os.Getenv("LOG_LEVEL"),
			"http_timeout": os.Getenv("HTTP_TIMEOUT"),
		},
		"gitlab_credentials": {
			"base_url": os.Getenv("GITLAB_URL"),
			"token":    os.Getenv("GITLAB_TOKEN"),
			"token_id": os.Getenv("GITLAB_TOKEN_ID"),
		},
		"google_secret_manager": {
			"project_id": os.Getenv("GOOGLE_CLOUD_PROJECT"),
		},
		"credential_webhook": {
			"url":   os.Getenv("NOTIFY_WEBHOOK_URL"),
			"token": os.Getenv("NOTIFY_WEBHOOK_TOKEN"),
		},
	})
}

func pruneEmpty(cfg ConfigMap) ConfigMap {
	out := ConfigMap{}
	for section, vals := range cfg {
		kept := map[string]any{}
		for k, v := range vals {
			if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
				continue
			}
			kept[k] = v
		}
		if len(kept) > 0 {
			out[section] = kept
		}
	}
	return out
}

// LoadConfigFromMap builds a core Config from a map.
// Supported keys (yaml): http_addr, plugins_dir, secret_key, log_level, http_timeout.
func LoadConfigFromMap(m map[string]any) Config {
	cfg := Config{}

	if v, ok := getString(m, "http_addr", "addr"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := getString(m, "plugins_dir"); ok {
		cfg.PluginsDir = v
	}
	if v, ok := getString(m, "secret_key"); ok {
		cfg.SecretKey = v
	}
	if v, ok := getString(m, "log_level"); ok {
		cfg.LogLevel = v
	}
	if v, ok := getDuration(m, "http_timeout", "timeout"); ok {
		cfg.Timeout = v
	}

	return cfg
}

// MergeConfig uses primary values when set, otherwise falls back.
func MergeConfig(primary, fallback Config) Config {
	out := primary
	if out.HTTPAddr == "" {
		out.HTTPAddr = fallback.HTTPAddr
	}
	if out.PluginsDir == "" {
		out.PluginsDir = fallback.PluginsDir
	}
	if out.SecretKey == "" {
		out.SecretKey = fallback.SecretKey
	}
	if out.LogLevel == "" {
		out.LogLevel = fallback.LogLevel
	}
	if out.Timeout == 0 {
		out.Timeout = fallback.Timeout
	}
	return out
}

// Core returns the "core" section as a Config, falling back to fallback for
// unset values.
func (c ConfigMap) Core(fallback Config) Config {
	section, ok := c["core"]
	if !ok {
		return fallback
	}
	return MergeConfig(LoadConfigFromMap(section), fallback)
}

// MergeConfigMap merges primary over fallback (primary wins).
func MergeConfigMap(primary, fallback ConfigMap) ConfigMap {
	out := cloneConfigMap(fallback)
	for section, vals := range primary {
		if len(vals) == 0 {
			continue
		}
		merged := map[string]any{}
		if existing, ok := out[section]; ok {
			for k, v := range existing {
				merged[k] = v
			}
		}
		for k, v := range vals {
			merged[k] = v
		}
		out[section] = merged
	}
	return out
}

func cloneConfigMap(src ConfigMap) ConfigMap {
	dst := ConfigMap{}
	for section, vals := range src {
		sectionCopy := map[string]any{}
		for k, v := range vals {
			sectionCopy[k] = v
		}
		dst[section] = sectionCopy
	}
	return dst
}

func normalizeConfigMap(raw map[string]any) ConfigMap {
	out := ConfigMap{}
	for key, value := range raw {
		if m := normalizeStringMap(value); m != nil {
			out[key] = m
		}
	}
	return out
}

func normalizeStringMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		out := map[string]any{}
		for k, v := range t {
			out[k] = normalizeValue(v)
		}
		return out
	case map[any]any:
		out := map[string]any{}
		for k, v := range t {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = normalizeValue(v)
		}
		return out
	default:
		return nil
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any, map[any]any:
		return normalizeStringMap(t)
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, normalizeValue(item))
		}
		return out
	default:
		return v
	}
}

func getString(m map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case string:
				return t, true
			default:
				return strings.TrimSpace(fmt.Sprint(t)), true
			}
		}
	}
	return "", false
}

func getDuration(m map[string]any, keys ...string) (time.Duration, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case time.Duration:
				return t, true
			case string:
				d, err := time.ParseDuration(strings.TrimSpace(t))
				if err == nil {
					return d, true
				}
			case int:
				return time.Duration(t) * time.Second, true
			case int64:
				return time.Duration(t) * time.Second, true
			case float64:
				return time.Duration(t) * time.Second, true
			}
		}
	}
	return 0, false
}
