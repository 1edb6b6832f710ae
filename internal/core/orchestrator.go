// Package core holds the generation orchestration state machine: credit
// reservation, provider submission, the polling reconciliation, and the
// refund/settlement protocol.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"videogen-server/internal/domain"
	"videogen-server/internal/notify"
	"videogen-server/internal/providers/videogen"
)

// ProviderGateway is the outbound edge to the generation provider.
type ProviderGateway interface {
	SubmitJob(ctx context.Context, req videogen.SubmitRequest) (string, error)
	Poll(ctx context.Context, taskID string) (*videogen.PollResult, error)
}

// PromptTranslator normalizes a raw prompt before anything is reserved.
type PromptTranslator interface {
	Translate(ctx context.Context, prompt string) (*domain.NormalizedPrompt, error)
}

// Orchestrator validates, reserves, submits and reconciles generation jobs.
type Orchestrator struct {
	ledger     domain.CreditLedger
	jobs       domain.JobRepository
	gateway    ProviderGateway
	translator PromptTranslator
	notifier   notify.Notifier
	// creditCost is the flat price per video; reservation amount equals it.
	creditCost     int
	promptMaxChars int
	logger         zerolog.Logger
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Ledger         domain.CreditLedger
	Jobs           domain.JobRepository
	Gateway        ProviderGateway
	Translator     PromptTranslator
	Notifier       notify.Notifier
	CreditCost     int
	PromptMaxChars int
	Logger         zerolog.Logger
}

// NewOrchestrator creates the orchestrator. CreditCost must be positive.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.CreditCost <= 0 {
		return nil, fmt.Errorf("credit cost must be positive, got %d", opts.CreditCost)
	}
	maxChars := opts.PromptMaxChars
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Orchestrator{
		ledger:         opts.Ledger,
		jobs:           opts.Jobs,
		gateway:        opts.Gateway,
		translator:     opts.Translator,
		notifier:       opts.Notifier,
		creditCost:     opts.CreditCost,
		promptMaxChars: maxChars,
		logger:         opts.Logger,
	}, nil
}

// SubmitInput is one generation request from an authenticated caller.
type SubmitInput struct {
	UserID    string
	Prompt    string
	ImageURLs []string
	Seed      *int64
}

// Submit runs the submission path: validate, translate, reserve, persist,
// submit to the provider. Validation, translation and reservation failures
// return an error with zero side effects. Once credits are reserved the
// caller always gets a job back; a provider rejection becomes a failed job
// with the refund already settled.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*domain.Job, error) {
	if err := o.validate(in); err != nil {
		return nil, err
	}

	// Translate before reserving, so a translation outage never strands a
	// reservation.
	normalized, err := o.translator.Translate(ctx, in.Prompt)
	if err != nil {
		return nil, err
	}

	if _, err := o.ledger.Reserve(ctx, in.UserID, o.creditCost); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		OriginalPrompt:   in.Prompt,
		NormalizedPrompt: normalized.Text,
		Dialogue:         normalized.Dialogue,
		ImageURLs:        in.ImageURLs,
		Seed:             in.Seed,
		Status:           domain.JobStatusPending,
		CreditsReserved:  o.creditCost,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// The job row goes in before the provider call so a crash mid-submission
	// still leaves an auditable, refundable record.
	if err := o.jobs.Create(ctx, job); err != nil {
		// No durable record exists to settle against later; give the
		// reservation back now.
		if refundErr := o.ledger.Refund(ctx, in.UserID, o.creditCost); refundErr != nil {
			o.logger.Error().Err(refundErr).Str("user_id", in.UserID).Msg("orchestrator: refund after create failure")
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	taskID, err := o.gateway.SubmitJob(ctx, videogen.SubmitRequest{
		Prompt:    normalized.Text,
		Dialogue:  normalized.Dialogue,
		ImageURLs: in.ImageURLs,
		Seed:      in.Seed,
	})
	if err != nil {
		// The provider never accepted the work: fail and refund in the same
		// logical operation, then hand the job back without an error so the
		// caller has one uniform status-check path.
		o.failJob(ctx, job, classifySubmitError(err), err.Error())
		return job, nil
	}

	if err := o.jobs.SetProviderTask(ctx, job.ID, taskID); err != nil {
		// The provider holds the work; the sweep cannot poll this job until
		// the id is recorded, so surface loudly but keep the job pending.
		o.logger.Error().Err(err).Str("job_id", job.ID).Str("task_id", taskID).Msg("orchestrator: record task id failed")
	}
	job.ProviderTaskID = taskID
	o.logger.Info().Str("job_id", job.ID).Str("task_id", taskID).Str("user_id", in.UserID).Msg("orchestrator: job submitted")
	return job, nil
}

func (o *Orchestrator) validate(in SubmitInput) error {
	if in.UserID == "" {
		return fmt.Errorf("%w: user id required", domain.ErrInvalidPrompt)
	}
	if in.Prompt == "" {
		return fmt.Errorf("%w: prompt is empty", domain.ErrInvalidPrompt)
	}
	if utf8.RuneCountInString(in.Prompt) > o.promptMaxChars {
		return fmt.Errorf("%w: prompt exceeds %d characters", domain.ErrInvalidPrompt, o.promptMaxChars)
	}
	for _, ref := range in.ImageURLs {
		parsed, err := url.ParseRequestURI(ref)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("%w: malformed image reference %q", domain.ErrInvalidPrompt, ref)
		}
	}
	return nil
}

// Reconcile applies one observed provider status to a job. Still-working
// observations are no-ops beyond pending -> processing; terminal observations
// settle at most once thanks to the store's status guards.
func (o *Orchestrator) Reconcile(ctx context.Context, job *domain.Job, res *videogen.PollResult) error {
	if job.Status.IsTerminal() {
		return nil
	}

	switch res.State {
	case videogen.StateQueued:
		return nil
	case videogen.StateRunning:
		if job.Status != domain.JobStatusPending {
			return nil
		}
		if err := o.jobs.MarkProcessing(ctx, job.ID); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
		job.Status = domain.JobStatusProcessing
		return nil
	case videogen.StateSucceeded:
		transitioned, err := o.jobs.Complete(ctx, job.ID, res.ResultURL)
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		if transitioned {
			job.Status = domain.JobStatusCompleted
			job.ResultURL = res.ResultURL
			o.logger.Info().Str("job_id", job.ID).Str("task_id", job.ProviderTaskID).Msg("orchestrator: job completed")
		}
		return nil
	case videogen.StateFailed:
		kind := ClassifyProviderError(res.ErrorCode, res.ErrorMessage, 0)
		return o.settleFailure(ctx, job, kind, res.ErrorMessage)
	default:
		return nil
	}
}

// failJob settles a provider submission rejection: the job is failed and the
// reservation refunded before Submit returns.
func (o *Orchestrator) failJob(ctx context.Context, job *domain.Job, kind FailureKind, rawMessage string) {
	if err := o.settleFailure(ctx, job, kind, rawMessage); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("orchestrator: submit failure settlement")
	}
}

func (o *Orchestrator) settleFailure(ctx context.Context, job *domain.Job, kind FailureKind, rawMessage string) error {
	message := kind.UserMessage() + " " + RefundNotice
	transitioned, err := o.jobs.FailWithRefund(ctx, job.ID, job.UserID, message, job.CreditsReserved)
	if err != nil {
		// The job stays non-terminal; the next sweep retries the settlement.
		return fmt.Errorf("fail with refund: %w", err)
	}
	if !transitioned {
		return nil
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	o.logger.Warn().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Int("credits_refunded", job.CreditsReserved).
		Str("provider_error", rawMessage).
		Msg("orchestrator: job failed, credits refunded")
	if kind == FailureCapacity && o.notifier != nil {
		o.notifier.Alert(ctx,
			"generation provider capacity exhausted",
			fmt.Sprintf("job %s failed with a capacity error; provider said: %s", job.ID, rawMessage),
		)
	}
	return nil
}

// PollOnce asks the provider for the job's current status and reconciles it.
func (o *Orchestrator) PollOnce(ctx context.Context, job *domain.Job) error {
	if job.Status.IsTerminal() || job.ProviderTaskID == "" {
		return nil
	}
	res, err := o.gateway.Poll(ctx, job.ProviderTaskID)
	if err != nil {
		return fmt.Errorf("poll task %s: %w", job.ProviderTaskID, err)
	}
	return o.Reconcile(ctx, job, res)
}

// RefreshJob is the user-initiated variant of the sweep for a single job:
// poll now, reconcile, return the fresh record.
func (o *Orchestrator) RefreshJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() || job.ProviderTaskID == "" {
		return job, nil
	}
	if err := o.PollOnce(ctx, job); err != nil {
		// A transient poll failure leaves the stored job authoritative.
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("orchestrator: refresh poll failed")
	}
	return o.jobs.GetByID(ctx, jobID)
}

func classifySubmitError(err error) FailureKind {
	var apiErr *videogen.APIError
	if errors.As(err, &apiErr) {
		return ClassifyProviderError(apiErr.Code, apiErr.Message, apiErr.StatusCode)
	}
	// Transport-level failure; the caller can simply retry.
	return FailureGeneric
}
