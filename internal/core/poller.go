package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"videogen-server/internal/domain"
)

// SweepStats summarizes one sweep over the open jobs.
type SweepStats struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Poller drives reconciliation for jobs in non-terminal states. It holds no
// job state of its own; every sweep reads fresh from the store, so sweeps may
// run from any process and overlap safely.
type Poller struct {
	jobs   domain.JobRepository
	orch   *Orchestrator
	logger zerolog.Logger
}

// NewPoller creates a sweep runner over the given store and orchestrator.
func NewPoller(jobs domain.JobRepository, orch *Orchestrator, logger zerolog.Logger) *Poller {
	return &Poller{jobs: jobs, orch: orch, logger: logger}
}

// Sweep polls up to maxBatch open jobs and reconciles each. A failure on one
// job is logged and does not abort the rest of the batch.
func (p *Poller) Sweep(ctx context.Context, maxBatch int) (SweepStats, error) {
	if maxBatch <= 0 {
		maxBatch = 25
	}
	var stats SweepStats

	open, err := p.jobs.ListOpen(ctx, maxBatch)
	if err != nil {
		return stats, fmt.Errorf("list open jobs: %w", err)
	}

	for i := range open {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		job := &open[i]
		stats.Checked++
		if err := p.orch.PollOnce(ctx, job); err != nil {
			p.logger.Error().Err(err).Str("job_id", job.ID).Msg("poller: reconcile failed")
			continue
		}
		switch job.Status {
		case domain.JobStatusCompleted:
			stats.Completed++
		case domain.JobStatusFailed:
			stats.Failed++
		}
	}

	p.logger.Info().
		Int("checked", stats.Checked).
		Int("completed", stats.Completed).
		Int("failed", stats.Failed).
		Msg("poller: sweep finished")
	return stats, nil
}
