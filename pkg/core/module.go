package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"plugin"
	"slices"
	"strings"
	"sync"
)

type Module interface {
	Name() string
	Init(ctx context.Context, logger *slog.Logger, registry PluginRegistry) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Plugin interface {
	Module
	Description() string
	Capabilities() []Capability
	Status() ServiceStatus
	Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error)
}

// ConfigProvider is implemented by plugins that expose their effective
// configuration through the plugins API. Secrets must be core.Secret values.
type ConfigProvider interface {
	Config() any
}

// PluginRegistry is the view of the host that modules get during Init.
type PluginRegistry interface {
	GetConfig() map[string]map[string]any
	GetHTTPClient() *http.Client
	GetMuxServer() *http.ServeMux
	GetPlugin(name string) (Plugin, error)
	PluginsWithCapability(c Capability) []Plugin
	RegisterEventType(desc EventTypeDesc) error
	Subscribe(pattern string, handler Listener)
	ParseSecret(value string) (Secret, bool)
}

var _ PluginRegistry = (*ModuleManager)(nil)

// ErrModuleExists is returned when a module name is registered twice.
var ErrModuleExists = errors.New("module already registered")

type ModuleManager struct {
	mu         sync.RWMutex
	modules    []Module
	logger     *slog.Logger
	config     map[string]map[string]any
	httpClient *http.Client
	codec      *SecretCodec
	broker     *EventBroker
	mux        *http.ServeMux
	server     *http.Server
	serverOnce sync.Once
}

func NewModuleManager(logger *slog.Logger) *ModuleManager {
	m := &ModuleManager{
		modules: []Module{},
		logger:  logger,
		config:  map[string]map[string]any{},
		broker:  defaultBroker,
		mux:     http.NewServeMux(),
	}
	m.registerCoreRoutes()
	return m
}

// Register adds mod. Names are unique: a second module with the same name
// would re-register its routes and event types, so it is refused.
func (m *ModuleManager) Register(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.modules {
		if existing.Name() == mod.Name() {
			return fmt.Errorf("%w: %s", ErrModuleExists, mod.Name())
		}
	}
	m.modules = append(m.modules, mod)
	return nil
}

func (m *ModuleManager) SetConfig(cfg map[string]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg == nil {
		cfg = map[string]map[string]any{}
	}
	m.config = cfg
}

func (m *ModuleManager) GetConfig() map[string]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *ModuleManager) SetHTTPClient(client *http.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.httpClient = client
}

func (m *ModuleManager) GetHTTPClient() *http.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.httpClient == nil {
		return http.DefaultClient
	}
	return m.httpClient
}

// SetSecretCodec configures how encrypted secret values are decoded.
// Without a codec every value is treated as plain text.
func (m *ModuleManager) SetSecretCodec(codec *SecretCodec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codec = codec
}

func (m *ModuleManager) ParseSecret(value string) (Secret, bool) {
	m.mu.RLock()
	codec := m.codec
	m.mu.RUnlock()
	return ParseSecret(codec, value)
}

func (m *ModuleManager) GetMuxServer() *http.ServeMux {
	return m.mux
}

func (m *ModuleManager) RegisterEventType(desc EventTypeDesc) error {
	return m.broker.RegisterEventType(desc)
}

func (m *ModuleManager) Subscribe(pattern string, handler Listener) {
	m.broker.Subscribe(pattern, handler)
}

// ListPlugins returns registered modules that implement Plugin, in
// registration order.
func (m *ModuleManager) ListPlugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Plugin, 0, len(m.modules))
	for _, mod := range m.modules {
		if p, ok := mod.(Plugin); ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *ModuleManager) GetPlugin(name string) (Plugin, error) {
	for _, p := range m.ListPlugins() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("plugin %s not found", name)
}

func (m *ModuleManager) PluginsWithCapability(c Capability) []Plugin {
	var out []Plugin
	for _, p := range m.ListPlugins() {
		if slices.Contains(p.Capabilities(), c) {
			out = append(out, p)
		}
	}
	return out
}

func (m *ModuleManager) LoadPlugins(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Warn("Plugins directory not found", "dir", dir)
			return nil
		}
		return fmt.Errorf("failed to read plugins dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".so") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		m.logger.Info("Loading plugin", "path", path)

		p, err := plugin.Open(path)
		if err != nil {
			m.logger.Error("Failed to open plugin", "path", path, "error", err)
			continue
		}

		sym, err := p.Lookup("Plugin")
		if err != nil {
			m.logger.Error("Plugin symbol not found", "path", path, "error", err)
			continue
		}

		// Lookup returns a pointer to the exported variable.
		var plug Plugin
		switch v := sym.(type) {
		case *Plugin:
			plug = *v
		case Plugin:
			plug = v
		}
		if plug == nil {
			m.logger.Error("Plugin has wrong type", "path", path)
			continue
		}

		if err := m.Register(plug); err != nil {
			m.logger.Error("Plugin not registered", "path", path, "error", err)
			continue
		}
		m.logger.Info("Plugin loaded successfully", "name", plug.Name())
	}
	return nil
}

func (m *ModuleManager) snapshot() []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.modules)
}

// Init initialises modules in registration order, so a module can rely on
// the ones registered before it.
func (m *ModuleManager) Init(ctx context.Context) error {
	for _, mod := range m.snapshot() {
		if err := mod.Init(ctx, m.logger.With("module", mod.Name()), m); err != nil {
			return fmt.Errorf("init module %s: %w", mod.Name(), err)
		}
	}
	return nil
}

func (m *ModuleManager) Start(ctx context.Context) {
	for _, mod := range m.snapshot() {
		go func(mod Module) {
			m.logger.Info("Starting module", "module", mod.Name())
			if err := mod.Start(ctx); err != nil {
				m.logger.Error("Module failed", "module", mod.Name(), "error", err)
			}
		}(mod)
	}
	m.startHTTPServer()
}

func (m *ModuleManager) Stop(ctx context.Context) {
	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Error("HTTP server shutdown failed", "error", err)
		}
	}
	modules := m.snapshot()
	for i := len(modules) - 1; i >= 0; i-- {
		mod := modules[i]
		m.logger.Info("Stopping module", "module", mod.Name())
		if err := mod.Stop(ctx); err != nil {
			m.logger.Error("Error stopping module", "module", mod.Name(), "error", err)
		}
	}
}
