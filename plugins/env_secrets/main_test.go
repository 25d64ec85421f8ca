package main

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/mywio/gitlab-credentials/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestEnvSecretsPlugin_AllowsKeysAndPrefixes(t *testing.T) {
	t.Setenv("GITLAB_TOKEN_CI", "abcd1234abcd1234abcd")
	t.Setenv("APP_TOKEN", "abc123")
	t.Setenv("HOME_SECRET", "nope")

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	mgr := core.NewModuleManager(logger)
	mgr.SetConfig(map[string]map[string]any{
		"env_secrets": {
			"keys":     []string{"APP_TOKEN", "MISSING"},
			"prefixes": []string{"GITLAB_"},
		},
	})

	p := &EnvSecretsPlugin{}
	err := p.Init(context.Background(), logger, mgr)
	assert.NoError(t, err)
	assert.Equal(t, core.StatusHealthy, p.Status())

	ctx := context.Background()
	res, err := p.Execute(ctx, "get_secret", map[string]interface{}{"name": "GITLAB_TOKEN_CI"})
	assert.NoError(t, err)
	secret, ok := res.(core.Secret)
	assert.True(t, ok)
	assert.Equal(t, "abcd1234abcd1234abcd", secret.PlainText())

	res, err = p.Execute(ctx, "get_secret", map[string]interface{}{"name": "APP_TOKEN"})
	assert.NoError(t, err)
	assert.Equal(t, "abc123", res.(core.Secret).PlainText())

	_, err = p.Execute(ctx, "get_secret", map[string]interface{}{"name": "MISSING"})
	assert.Error(t, err)

	_, err = p.Execute(ctx, "get_secret", map[string]interface{}{"name": "HOME_SECRET"})
	assert.Error(t, err)
}

func TestEnvSecretsPlugin_DisabledWithoutConfig(t *testing.T) {
	t.Setenv("APP_TOKEN", "abc123")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	mgr := core.NewModuleManager(logger)

	p := &EnvSecretsPlugin{}
	err := p.Init(context.Background(), logger, mgr)
	assert.NoError(t, err)
	assert.Equal(t, core.StatusDegraded, p.Status())

	_, err = p.Execute(context.Background(), "get_secret", map[string]interface{}{"name": "APP_TOKEN"})
	assert.Error(t, err)
}

func TestEnvSecretsPlugin_UnknownAction(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	p := &EnvSecretsPlugin{}
	err := p.Init(context.Background(), logger, nil)
	assert.NoError(t, err)

	_, err = p.Execute(context.Background(), "nope", map[string]interface{}{})
	assert.Error(t, err)
}

func TestNormalizeList(t *testing.T) {
	assert.Equal(t, []string{"A", "B_"}, normalizeList([]string{" A ", "", "B_", "A"}))
}
