package apihttp

import (
	"net/http"

	"overlaysync/internal/domain"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		writeJSON(w, http.StatusOK, domain.DefaultSettings())
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Get())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "settings are not configured")
		return
	}
	var patch domain.SettingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeDomainError(w, err)
		return
	}
	updated, err := s.settings.Update(r.Context(), patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
