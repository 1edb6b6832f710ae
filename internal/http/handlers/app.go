package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"videogen-server/internal/core"
	"videogen-server/internal/domain"
	"videogen-server/internal/infra"
	"videogen-server/internal/middleware"
)

// VideoOrchestrator is the submission/refresh surface the handlers depend on.
type VideoOrchestrator interface {
	Submit(ctx context.Context, in core.SubmitInput) (*domain.Job, error)
	RefreshJob(ctx context.Context, jobID string) (*domain.Job, error)
}

// Sweeper triggers one maintenance sweep over open jobs.
type Sweeper interface {
	Sweep(ctx context.Context, maxBatch int) (core.SweepStats, error)
}

// App is the handler container; collaborators are injected so tests can
// substitute stubs.
type App struct {
	Config       *infra.Config
	Logger       zerolog.Logger
	Orchestrator VideoOrchestrator
	Jobs         domain.JobRepository
	Sweeper      Sweeper
	Validate     *validator.Validate
}

// NewApp wires the handler container.
func NewApp(cfg *infra.Config, logger zerolog.Logger, orch VideoOrchestrator, jobs domain.JobRepository, sweeper Sweeper) *App {
	return &App{
		Config:       cfg,
		Logger:       logger,
		Orchestrator: orch,
		Jobs:         jobs,
		Sweeper:      sweeper,
		Validate:     validator.New(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]any{"error": slug, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
