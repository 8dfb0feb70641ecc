package kernel

import (
	"fmt"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.ListModels())
}

func (s *Server) handleRegisterModel(w http.ResponseWriter, r *http.Request) {
	var desc domain.ModelDescriptor
	if err := decodeBody(w, r, &desc); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.orchestrator.RegisterModel(desc); err != nil {
		s.fail(w, r, err)
		return
	}
	registered, err := s.orchestrator.GetModel(desc.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	desc, err := s.orchestrator.GetModel(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (s *Server) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var category domain.TaskCategory
	if err := runtime.BindQueryParameter("form", true, true, "category", r.URL.Query(), &category); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid category: %w", err))
		return
	}

	params, err := s.orchestrator.OptimizedParameters(id, category)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (s *Server) handlePreloadModel(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.orchestrator.PreloadModel(r.Context(), id); err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			// backend refused the warm-up
			writeError(w, http.StatusBadGateway, err)
			return
		}
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
