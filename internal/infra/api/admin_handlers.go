package api

import (
	"crypto/subtle"
	"net/http"

	"activation-code-service/internal/infra/logging"
	"activation-code-service/internal/infra/metrics"
)

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		APIKey string `json:"apiKey"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeErr(w, err, "Invalid request body")
		return
	}
	if s.opts.AdminAPIKey == "" || subtle.ConstantTimeCompare([]byte(body.APIKey), []byte(s.opts.AdminAPIKey)) != 1 {
		metrics.IncAdminAction("login", "denied")
		writeJSON(w, http.StatusUnauthorized, envelope{"success": false, "message": "Unauthorized"})
		return
	}
	token, err := s.deps.Auth.Mint(w)
	if err != nil {
		metrics.IncAdminAction("login", "error")
		writeErr(w, err, "Could not create session")
		return
	}
	metrics.IncAdminAction("login", "ok")
	writeJSON(w, http.StatusOK, envelope{"success": true, "token": token, "expiresIn": int(s.deps.Auth.TTL().Seconds())})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, _ *http.Request) {
	s.deps.Auth.Clear(w)
	writeJSON(w, http.StatusOK, envelope{"success": true})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	expired, err := s.deps.Codes.SweepExpired(r.Context())
	if err != nil {
		metrics.IncAdminAction("sweep", "error")
		writeErr(w, err, "Sweep failed")
		return
	}
	metrics.IncAdminAction("sweep", "ok")
	codes := make([]*codeView, 0, len(expired))
	for _, c := range expired {
		codes = append(codes, viewOf(c))
	}
	logging.With(r.Context(), s.log).Info().Str("session", SessionID(r.Context())).Int("count", len(expired)).Msg("manual sweep")
	writeJSON(w, http.StatusOK, envelope{"success": true, "expired": len(expired), "codes": codes})
}
