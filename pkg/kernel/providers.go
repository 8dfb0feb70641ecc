package kernel

import (
	"net/http"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

func (s *Server) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.providers.ListProviders())
}

func (s *Server) handleRegisterProvider(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ProviderConfig
	if err := decodeBody(w, r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.providers.RegisterProvider(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	registered, err := s.providers.Provider(cfg.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

func (s *Server) handleDiscoverModels(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "name")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ids, err := s.providers.DiscoverModels(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": name, "models": ids})
}

type importRequest struct {
	ModelID string `json:"model_id"`
}

func (s *Server) handleImportModel(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "name")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req importRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := s.providers.ImportModel(r.Context(), name, req.ModelID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	desc, err := s.orchestrator.GetModel(req.ModelID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, desc)
}

type credentialsRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) handleConfigureCredentials(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "name")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.providers.ConfigureCredentials(name, req.APIKey); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
