package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dvloznov/spendiq/internal/analyses"
	"github.com/dvloznov/spendiq/internal/api/middleware"
	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/logger"
	"github.com/go-chi/chi/v5"
)

// AnalysisService is the subset of analyses.Service the handlers call.
type AnalysisService interface {
	Submit(ctx context.Context, userID string, req analyses.SubmitRequest) (string, error)
	Get(ctx context.Context, userID, analysisID string) (*domain.AnalysisRecord, error)
	List(ctx context.Context, userID string) ([]*domain.AnalysisRecord, error)
	Delete(ctx context.Context, userID, analysisID string) error
	Reanalyze(ctx context.Context, userID, analysisID string) (string, error)
}

// AnalysesHandler handles analysis endpoints.
type AnalysesHandler struct {
	svc          AnalysisService
	maxBodyBytes int64
}

// NewAnalysesHandler creates a new analyses handler. Request bodies are capped so a
// base64 upload of maxUploadBytes still fits.
func NewAnalysesHandler(svc AnalysisService, maxUploadBytes int64) *AnalysesHandler {
	return &AnalysesHandler{
		svc:          svc,
		maxBodyBytes: maxUploadBytes*4/3 + 64*1024,
	}
}

// Routes mounts the analysis endpoints on r.
func (h *AnalysesHandler) Routes(r chi.Router) {
	r.Get("/", h.ListAnalyses)
	r.Get("/{id}", h.GetAnalysis)
	r.Delete("/{id}", h.DeleteAnalysis)
}

// SubmitAnalysis handles POST /api/analyses
func (h *AnalysesHandler) SubmitAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req analyses.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusBadRequest, "File is too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.svc.Submit(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err, "Failed to submit analysis")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":    true,
		"analysisId": id,
	})
}

// ListAnalyses handles GET /api/analyses
func (h *AnalysesHandler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "Failed to list analyses")
		return
	}
	if records == nil {
		records = []*domain.AnalysisRecord{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"analyses": records,
	})
}

// GetAnalysis handles GET /api/analyses/{id}
func (h *AnalysesHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to get analysis")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"analysis": rec,
	})
}

// DeleteAnalysis handles DELETE /api/analyses/{id}
func (h *AnalysesHandler) DeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "Failed to delete analysis")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ReanalyzeAnalysis handles POST /api/analyses/{id}/reanalyze
func (h *AnalysesHandler) ReanalyzeAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.Reanalyze(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to reanalyze")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":    true,
		"analysisId": id,
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	switch status {
	case http.StatusBadRequest:
		msg := strings.TrimPrefix(err.Error(), domain.ErrInvalidRequest.Error()+": ")
		middleware.WriteError(w, status, msg)
	case http.StatusUnauthorized:
		middleware.WriteError(w, status, "Authentication required")
	case http.StatusNotFound:
		middleware.WriteError(w, status, "Analysis not found")
	case http.StatusForbidden:
		middleware.WriteError(w, status, "Access denied")
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg(fallback)
		middleware.WriteError(w, status, fallback)
	}
}
