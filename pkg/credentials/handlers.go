package credentials

import (
	"errors"
	"net/http"

	"github.com/mywio/gitlab-credentials/pkg/core"
)

func (p *Plugin) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/credentials/gitlab", p.handleList)
	mux.HandleFunc("GET /api/credentials/gitlab/check-token", p.handleCheckToken)
	mux.HandleFunc("GET /api/credentials/gitlab/check-id", p.handleCheckID)
	mux.HandleFunc("POST /api/credentials/gitlab/{id}/verify", p.handleVerify)
}

func (p *Plugin) handleList(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, p.infos())
}

// Form checks always answer 200; the verdict is in the body.
func (p *Plugin) handleCheckToken(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, p.descriptor.CheckToken(r.URL.Query().Get("value")))
}

func (p *Plugin) handleCheckID(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, p.descriptor.CheckID(r.URL.Query().Get("value")))
}

func (p *Plugin) handleVerify(w http.ResponseWriter, r *http.Request) {
	cred, err := p.Lookup(r.PathValue("id"))
	if err != nil {
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	info, err := VerifyToken(r.Context(), p.client, p.baseURL, cred)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrTokenRejected) {
			status = http.StatusUnauthorized
		}
		p.logger.WarnContext(r.Context(), "Token verification failed", "id", cred.ID(), "error", err)
		core.WriteJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	core.WriteJSON(w, http.StatusOK, info)
}
