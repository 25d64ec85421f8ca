package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/mywio/gitlab-credentials/pkg/core"
)

type fakeSecrets struct {
	values map[string]string
}

func (f *fakeSecrets) Name() string { return "fake_secrets" }
func (f *fakeSecrets) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	return nil
}
func (f *fakeSecrets) Start(ctx context.Context) error { return nil }
func (f *fakeSecrets) Stop(ctx context.Context) error  { return nil }
func (f *fakeSecrets) Description() string             { return "fake secrets" }
func (f *fakeSecrets) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilitySecrets}
}
func (f *fakeSecrets) Status() core.ServiceStatus { return core.StatusHealthy }
func (f *fakeSecrets) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	name, _ := params["name"].(string)
	v, ok := f.values[name]
	if !ok {
		return nil, errors.New("secret not found")
	}
	return core.NewSecret(v), nil
}

type pluginFixture struct {
	mgr    *core.ModuleManager
	plugin *Plugin
	codec  *core.SecretCodec
}

func newFixture(t *testing.T, section map[string]any) *pluginFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := core.NewModuleManager(logger)
	codec := testCodec(t)
	mgr.SetSecretCodec(codec)

	if section != nil {
		mgr.SetConfig(map[string]map[string]any{PluginName: section})
	}
	mgr.Register(&fakeSecrets{values: map[string]string{"gitlab/release": "rrrr1234rrrr1234rrrr"}})

	p := NewPlugin()
	mgr.Register(p)
	require.NoError(t, mgr.Init(context.Background()))
	return &pluginFixture{mgr: mgr, plugin: p, codec: codec}
}

func (f *pluginFixture) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	f.mgr.GetMuxServer().ServeHTTP(rr, req)
	return rr
}

func TestPluginLoadsConfiguredCredentials(t *testing.T) {
	codec := testCodec(t)
	stored, err := codec.Encrypt(core.NewSecret("ssss1234ssss1234ssss"))
	require.NoError(t, err)

	f := newFixture(t, map[string]any{
		"credentials": []any{
			map[string]any{"id": "ci", "scope": "global", "description": "CI bot", "token": validToken},
			map[string]any{"id": "stored", "scope": "system", "token": stored},
			map[string]any{"id": "release", "token_ref": "gitlab/release"},
			map[string]any{"id": "short", "token": "abc"},
			map[string]any{"id": "bad id", "token": validToken},
			map[string]any{"id": "ci", "token": validToken},
			map[string]any{"id": "missing-ref", "token_ref": "gitlab/nope"},
			map[string]any{"id": "empty"},
		},
	})

	creds := f.plugin.List()
	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{"ci", "stored", "release"}, ids)

	storedCred, err := f.plugin.Lookup("stored")
	require.NoError(t, err)
	assert.Equal(t, "ssss1234ssss1234ssss", storedCred.Token().PlainText())
	assert.Equal(t, ScopeSystem, storedCred.Scope())
	d, ok := storedCred.Descriptor().(*PersonalAccessTokenDescriptor)
	require.True(t, ok)
	assert.Same(t, f.plugin.descriptor, d)
	assert.Equal(t, core.ValidationOK(), d.CheckToken(stored))

	release, err := f.plugin.Lookup("release")
	require.NoError(t, err)
	assert.Equal(t, "rrrr1234rrrr1234rrrr", release.Token().PlainText())

	_, err = f.plugin.Lookup("short")
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	assert.Equal(t, core.StatusHealthy, f.plugin.Status())
}

func TestPluginKeepsStoredTokenWithWarning(t *testing.T) {
	codec := testCodec(t)
	stored, err := codec.Encrypt(core.NewSecret("legacy"))
	require.NoError(t, err)

	f := newFixture(t, map[string]any{
		"credentials": []any{map[string]any{"id": "legacy", "token": stored}},
	})
	cred, err := f.plugin.Lookup("legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy", cred.Token().PlainText())
}

func TestPluginEnvironmentToken(t *testing.T) {
	f := newFixture(t, map[string]any{"token": validToken, "token_id": "env"})
	cred, err := f.plugin.Lookup("env")
	require.NoError(t, err)
	assert.Equal(t, validToken, cred.Token().PlainText())
}

func TestPluginWithoutCredentialsIsDegraded(t *testing.T) {
	f := newFixture(t, nil)
	assert.Empty(t, f.plugin.List())
	assert.Equal(t, core.StatusDegraded, f.plugin.Status())
}

func TestPluginRegisteredTwice(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := core.NewModuleManager(logger)
	mgr.SetConfig(map[string]map[string]any{PluginName: {"token": validToken, "token_id": "once"}})

	require.NoError(t, mgr.Register(NewPlugin()))
	assert.ErrorIs(t, mgr.Register(NewPlugin()), core.ErrModuleExists)

	assert.NotPanics(t, func() {
		require.NoError(t, mgr.Init(context.Background()))
	})
	assert.Len(t, mgr.ListPlugins(), 1)
}

func TestPluginInvalidConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := core.NewModuleManager(logger)
	mgr.SetConfig(map[string]map[string]any{PluginName: {"credentials": "nope"}})
	mgr.Register(NewPlugin())
	assert.Error(t, mgr.Init(context.Background()))
}

func TestPluginRejectsUnknownScopeOnly(t *testing.T) {
	rejected := make(chan core.InternalEvent, 8)
	core.Subscribe(string(EventCredentialRejected), func(ctx context.Context, event core.InternalEvent) {
		if event.Subject == "project-scoped" {
			rejected <- event
		}
	})

	f := newFixture(t, map[string]any{
		"credentials": []any{
			map[string]any{"id": "good", "token": validToken},
			map[string]any{"id": "project-scoped", "scope": "PROJECT", "token": validToken},
		},
	})

	cred, err := f.plugin.Lookup("good")
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, cred.Scope())

	_, err = f.plugin.Lookup("project-scoped")
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	select {
	case ev := <-rejected:
		assert.Contains(t, ev.Details["message"], "PROJECT")
	case <-time.After(time.Second):
		t.Fatal("rejection event not published")
	}
}

func TestPluginPublishesRejection(t *testing.T) {
	rejected := make(chan core.InternalEvent, 8)
	core.Subscribe(string(EventCredentialRejected), func(ctx context.Context, event core.InternalEvent) {
		if event.Subject == "rejected-for-event" {
			rejected <- event
		}
	})

	newFixture(t, map[string]any{
		"credentials": []any{map[string]any{"id": "rejected-for-event", "token": "abc"}},
	})

	select {
	case ev := <-rejected:
		assert.Equal(t, PluginName, ev.Source)
		assert.Equal(t, MsgTokenWrongLength, ev.Details["message"])
	case <-time.After(time.Second):
		t.Fatal("rejection event not published")
	}
}

func TestPluginExecute(t *testing.T) {
	f := newFixture(t, map[string]any{
		"credentials": []any{map[string]any{"id": "ci", "token": validToken}},
	})
	ctx := context.Background()

	res, err := f.plugin.Execute(ctx, "check_token", map[string]interface{}{"value": "abc"})
	require.NoError(t, err)
	assert.Equal(t, core.ValidationError(MsgTokenWrongLength), res)

	blob, err := f.codec.Encrypt(core.NewSecret("abc"))
	require.NoError(t, err)
	res, err = f.plugin.Execute(ctx, "check_token", map[string]interface{}{"value": blob})
	require.NoError(t, err)
	assert.Equal(t, core.ValidationWarning(MsgTokenWrongLength), res)

	res, err = f.plugin.Execute(ctx, "check_id", map[string]interface{}{"value": "a b"})
	require.NoError(t, err)
	assert.Equal(t, core.ValidationError(MsgUnacceptableID), res)

	res, err = f.plugin.Execute(ctx, "get_token", map[string]interface{}{"id": "ci"})
	require.NoError(t, err)
	secret, ok := res.(core.Secret)
	require.True(t, ok)
	assert.Equal(t, validToken, secret.PlainText())

	_, err = f.plugin.Execute(ctx, "get_token", map[string]interface{}{"id": "nope"})
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	_, err = f.plugin.Execute(ctx, "get_token", map[string]interface{}{})
	assert.Error(t, err)

	res, err = f.plugin.Execute(ctx, "list", nil)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	_, err = f.plugin.Execute(ctx, "nope", nil)
	assert.Error(t, err)
}

func TestPluginExecuteVerify(t *testing.T) {
	srv := newGitLabServer(t, validToken)
	f := newFixture(t, map[string]any{
		"base_url":    srv.URL,
		"credentials": []any{map[string]any{"id": "ci", "token": validToken}},
	})
	f.plugin.client = srv.Client()

	res, err := f.plugin.Execute(context.Background(), "verify_token", map[string]interface{}{"id": "ci"})
	require.NoError(t, err)
	info, ok := res.(*gitlab.PersonalAccessToken)
	require.True(t, ok)
	assert.Equal(t, "ci", info.Name)
}

func TestPluginHTTPCheckToken(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		query string
		want  core.FormValidation
	}{
		{"", core.ValidationError(MsgTokenRequired)},
		{"?value=abc", core.ValidationError(MsgTokenWrongLength)},
		{"?value=" + validToken, core.ValidationOK()},
	}
	for _, tt := range tests {
		rr := f.do(http.MethodGet, "/api/credentials/gitlab/check-token"+tt.query)
		assert.Equal(t, http.StatusOK, rr.Code)
		var got core.FormValidation
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, tt.want, got, tt.query)
	}

	rr := f.do(http.MethodGet, "/api/credentials/gitlab/check-id?value=ok-id")
	var got core.FormValidation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, core.ValidationOK(), got)
}

func TestPluginHTTPListRedactsTokens(t *testing.T) {
	f := newFixture(t, map[string]any{
		"credentials": []any{map[string]any{"id": "ci", "description": "CI bot", "token": validToken}},
	})

	rr := f.do(http.MethodGet, "/api/credentials/gitlab")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), validToken)

	var out []map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "ci", out[0]["id"])
	assert.Equal(t, "GLOBAL", out[0]["scope"])
	assert.Equal(t, "CI bot", out[0]["display_name"])
	assert.Equal(t, PersonalAccessTokenKind, out[0]["kind"])
	assert.Equal(t, "REDACTED", out[0]["token"])

	rr = f.do(http.MethodGet, "/api/plugins/"+PluginName)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), validToken)
}

func TestPluginHTTPVerify(t *testing.T) {
	srv := newGitLabServer(t, validToken)
	f := newFixture(t, map[string]any{
		"base_url": srv.URL,
		"credentials": []any{
			map[string]any{"id": "ci", "token": validToken},
			map[string]any{"id": "stale", "token": "zzzz1234zzzz1234zzzz"},
		},
	})
	f.plugin.client = srv.Client()

	rr := f.do(http.MethodPost, "/api/credentials/gitlab/ci/verify")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"ci"`)

	rr = f.do(http.MethodPost, "/api/credentials/gitlab/stale/verify")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodPost, "/api/credentials/gitlab/unknown/verify")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
