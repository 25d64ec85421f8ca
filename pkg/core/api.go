package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type pluginInfo struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Capabilities []Capability  `json:"capabilities,omitempty"`
	Status       ServiceStatus `json:"status,omitempty"`
	Config       any           `json:"config,omitempty"`
}

func (m *ModuleManager) registerCoreRoutes() {
	m.mux.HandleFunc("GET /api/plugins", m.handlePlugins)
	m.mux.HandleFunc("GET /api/plugins/{name}", m.handlePlugin)
	m.mux.HandleFunc("GET /api/events", m.handleEventTypes)
	m.mux.HandleFunc("GET /api/health", m.handleHealth)
}

type eventTypeInfo struct {
	Name        EventTypeName           `json:"name"`
	Description string                  `json:"description,omitempty"`
	Payload     map[string]PayloadField `json:"payload,omitempty"`
}

func (m *ModuleManager) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	types := m.broker.EventTypes()
	out := make([]eventTypeInfo, 0, len(types))
	for _, desc := range types {
		out = append(out, eventTypeInfo{Name: desc.Name, Description: desc.Description, Payload: desc.PayloadSpec})
	}
	WriteJSON(w, http.StatusOK, out)
}

// handleHealth answers 503 once any plugin is UNHEALTHY.
func (m *ModuleManager) handleHealth(w http.ResponseWriter, r *http.Request) {
	plugins := m.ListPlugins()
	statuses := make(map[string]ServiceStatus, len(plugins))
	all := make([]ServiceStatus, 0, len(plugins))
	for _, p := range plugins {
		st := p.Status()
		statuses[p.Name()] = st
		all = append(all, st)
	}
	overall := WorstStatus(all...)
	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, map[string]any{"status": overall, "plugins": statuses})
}

func (m *ModuleManager) handlePlugins(w http.ResponseWriter, r *http.Request) {
	includeConfig := strings.EqualFold(r.URL.Query().Get("include_config"), "true")
	capability := Capability(strings.ToUpper(r.URL.Query().Get("capability")))

	plugins := m.ListPlugins()
	if capability != "" {
		plugins = m.PluginsWithCapability(capability)
	}
	out := make([]pluginInfo, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, buildPluginInfo(p, includeConfig))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (m *ModuleManager) handlePlugin(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "plugin name required"})
		return
	}
	plug, err := m.GetPlugin(name)
	if err != nil {
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, buildPluginInfo(plug, true))
}

func buildPluginInfo(plug Plugin, includeConfig bool) pluginInfo {
	info := pluginInfo{
		Name:         plug.Name(),
		Description:  plug.Description(),
		Capabilities: plug.Capabilities(),
		Status:       plug.Status(),
	}
	if includeConfig {
		if cfg, ok := plug.(ConfigProvider); ok {
			info.Config = cfg.Config()
		}
	}
	return info
}

func (m *ModuleManager) startHTTPServer() {
	m.serverOnce.Do(func() {
		addr := m.httpAddr()
		if addr == "" {
			return
		}
		m.server = &http.Server{
			Addr:    addr,
			Handler: m.mux,
		}
		m.logger.Info("HTTP server starting", "addr", addr)
		go func() {
			if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				m.logger.Error("HTTP server failed", "error", err)
			}
		}()
	})
}

func (m *ModuleManager) httpAddr() string {
	cfg := m.GetConfig()
	coreSection, ok := cfg["core"]
	if !ok {
		return ""
	}
	if v, ok := coreSection["http_addr"]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

// WriteJSON writes v with the given status. Plugins use it for their own
// routes so every API answers the same way.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
