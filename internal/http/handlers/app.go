package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"aistudio/internal/domain"
	"aistudio/internal/infra"
)

// BatchRunner is the sequencer surface the control API drives.
type BatchRunner interface {
	Start(ctx context.Context, plan domain.BatchPlan) (string, error)
	Snapshot() domain.RunState
	Last() (domain.BatchRecord, bool)
}

// ReportReader loads finished batch reports.
type ReportReader interface {
	ReadBatchReport(ctx context.Context, batchID string) (*domain.BatchRecord, error)
}

type App struct {
	Runner BatchRunner
	// History and Reports are optional lookups for finished batches.
	History domain.BatchRepository
	Reports ReportReader
	// BaseCtx bounds batches started over HTTP; it outlives single requests.
	BaseCtx         context.Context
	DefaultAttempts int
	Logger          *infra.Logger
}

func NewApp(ctx context.Context, runner BatchRunner, defaultAttempts int, logger *infra.Logger) *App {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &App{Runner: runner, BaseCtx: ctx, DefaultAttempts: defaultAttempts, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}
