package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"videogen-server/internal/domain"
	"videogen-server/internal/infra"
)

const jobColumns = `id, user_id, original_prompt, normalized_prompt, dialogue_json, image_urls, seed,
provider_task_id, status, result_url, credits_reserved, error_message, created_at, updated_at, completed_at`

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	db infra.DB
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db infra.DB) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	dialogue, err := json.Marshal(job.Dialogue)
	if err != nil {
		return fmt.Errorf("encode dialogue: %w", err)
	}
	_, err = r.db.Exec(ctx, `
INSERT INTO jobs (id, user_id, original_prompt, normalized_prompt, dialogue_json, image_urls, seed,
                  provider_task_id, status, result_url, credits_reserved, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`,
		job.ID,
		job.UserID,
		job.OriginalPrompt,
		job.NormalizedPrompt,
		dialogue,
		job.ImageURLs,
		job.Seed,
		job.ProviderTaskID,
		job.Status,
		job.ResultURL,
		job.CreditsReserved,
		job.ErrorMessage,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, jobID)
	return scanJob(row)
}

// ListByUser returns the user's jobs, newest first.
func (r *JobRepositoryPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Job, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListOpen returns non-terminal jobs that were accepted by the provider,
// newest first. Jobs without a task id are unpollable and skipped.
func (r *JobRepositoryPG) ListOpen(ctx context.Context, limit int) ([]domain.Job, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE status IN ('pending', 'processing')
  AND provider_task_id <> ''
ORDER BY created_at DESC
LIMIT $1;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// SetProviderTask records the external task id after the provider accepts.
func (r *JobRepositoryPG) SetProviderTask(ctx context.Context, jobID, taskID string) error {
	_, err := r.db.Exec(ctx, `
UPDATE jobs
SET provider_task_id = $2, updated_at = NOW()
WHERE id = $1;
`, jobID, taskID)
	return err
}

// MarkProcessing moves pending -> processing once the provider acknowledges
// activity. Any other current state makes this a no-op.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string) error {
	_, err := r.db.Exec(ctx, `
UPDATE jobs
SET status = 'processing', updated_at = NOW()
WHERE id = $1 AND status = 'pending';
`, jobID)
	return err
}

// Complete moves a non-terminal job to completed. The status guard makes the
// terminal write apply at most once.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID, resultURL string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE jobs
SET status = 'completed',
    result_url = $2,
    completed_at = NOW(),
    updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'processing');
`, jobID, resultURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailWithRefund writes the failed status and the refund in one transaction.
// If the job already reached a terminal state nothing is written and no
// refund is issued; if the transaction fails the job stays non-terminal so a
// later sweep retries the settlement.
func (r *JobRepositoryPG) FailWithRefund(ctx context.Context, jobID, userID, message string, credits int) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin settlement: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
UPDATE jobs
SET status = 'failed',
    error_message = $2,
    completed_at = NOW(),
    updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'processing');
`, jobID, message)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Already terminal; the refund was settled by whoever got here first.
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
UPDATE users
SET credits = credits + $2,
    videos_generated = GREATEST(videos_generated - 1, 0),
    updated_at = NOW()
WHERE id = $1;
`, userID, credits); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit settlement: %w", err)
	}
	return true, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var dialogue []byte
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.OriginalPrompt,
		&job.NormalizedPrompt,
		&dialogue,
		&job.ImageURLs,
		&job.Seed,
		&job.ProviderTaskID,
		&job.Status,
		&job.ResultURL,
		&job.CreditsReserved,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(dialogue) > 0 {
		if err := json.Unmarshal(dialogue, &job.Dialogue); err != nil {
			return nil, fmt.Errorf("decode dialogue: %w", err)
		}
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
