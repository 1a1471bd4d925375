package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"aistudio/internal/domain"
	"aistudio/internal/middleware"
	"aistudio/internal/plancfg"
)

const maxPlanBytes = 1 << 20

// BatchesStart accepts a plan and launches it in the background.
func (a *App) BatchesStart(w http.ResponseWriter, r *http.Request) {
	p, err := plancfg.DecodeJSON(http.MaxBytesReader(w, r.Body, maxPlanBytes))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	p.Normalize(a.DefaultAttempts)
	plan, err := p.BatchPlan()
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id, err := a.Runner.Start(a.BaseCtx, plan)
	switch {
	case errors.Is(err, domain.ErrBatchRunning):
		a.json(w, http.StatusConflict, map[string]any{
			"error":   "batch_running",
			"message": err.Error(),
			"current": a.Runner.Snapshot(),
		})
		return
	case errors.Is(err, domain.ErrInvalidPlan):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case err != nil:
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("batch start failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start batch")
		return
	}

	rid := middleware.RequestIDFromContext(r.Context())
	a.Logger.Info().Str("batch_id", id).Int("total_images", plan.TotalImages).
		Str("request_id", rid).Msg("batch accepted")
	a.json(w, http.StatusAccepted, map[string]any{
		"batch_id":     id,
		"request_id":   rid,
		"status":       domain.BatchStatusRunning,
		"total_images": plan.TotalImages,
		"max_attempts": plan.MaxAttempts.String(),
	})
}

// BatchesCurrent returns the live run state.
func (a *App) BatchesCurrent(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Runner.Snapshot())
}

// BatchesLast returns the most recently finished batch of this process.
func (a *App) BatchesLast(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.Runner.Last()
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "no batch has finished yet")
		return
	}
	a.json(w, http.StatusOK, rec)
}

// BatchesGet looks a finished batch up in history, then in the report store.
func (a *App) BatchesGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "batch id is required")
		return
	}
	if rec, ok := a.Runner.Last(); ok && rec.ID == id {
		a.json(w, http.StatusOK, rec)
		return
	}
	if a.History != nil {
		rec, err := a.History.GetByID(r.Context(), id)
		if err == nil {
			a.json(w, http.StatusOK, rec)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			a.Logger.Warn().Err(err).Str("batch_id", id).Msg("batch history lookup failed")
		}
	}
	if a.Reports != nil {
		rec, err := a.Reports.ReadBatchReport(r.Context(), id)
		if err == nil {
			a.json(w, http.StatusOK, rec)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			a.Logger.Warn().Err(err).Str("batch_id", id).Msg("batch report lookup failed")
		}
	}
	a.error(w, http.StatusNotFound, "not_found", "batch not found")
}
