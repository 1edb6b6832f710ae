package domain

import "context"

// CreditLedger owns every mutation of a user's balance. Reserve is the only
// debiting entry point in the system.
type CreditLedger interface {
	// Reserve atomically debits amount if the balance covers it and bumps the
	// usage counter, returning the remaining balance. ErrInsufficientCredits
	// when the balance is too low; no mutation happens in that case.
	Reserve(ctx context.Context, userID string, amount int) (int, error)
	// Refund unconditionally credits amount back and decrements the usage
	// counter (floored at zero). Callers must guard against calling it twice
	// for the same job; the ledger does not deduplicate.
	Refund(ctx context.Context, userID string, amount int) error
	GetUser(ctx context.Context, userID string) (*User, error)
}

// JobRepository persists generation jobs. Terminal transitions are guarded so
// that a job never moves past completed/failed twice.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Job, error)
	// ListOpen returns non-terminal jobs that have a provider task id,
	// newest first.
	ListOpen(ctx context.Context, limit int) ([]Job, error)
	SetProviderTask(ctx context.Context, jobID, taskID string) error
	// MarkProcessing moves pending -> processing; a no-op for any other state.
	MarkProcessing(ctx context.Context, jobID string) error
	// Complete moves a non-terminal job to completed. Returns false when the
	// job was already terminal (nothing was written).
	Complete(ctx context.Context, jobID, resultURL string) (bool, error)
	// FailWithRefund moves a non-terminal job to failed and credits the
	// reservation back to the user in the same transaction, so the failed
	// status and the refund are durable together or not at all. Returns false
	// when the job was already terminal (no refund issued).
	FailWithRefund(ctx context.Context, jobID, userID, message string, credits int) (bool, error)
}

// TranslationCache is the content-addressed store consulted before any remote
// translation call.
type TranslationCache interface {
	// Get returns the cached translation for the hash and records the hit.
	Get(ctx context.Context, promptHash string) (string, bool, error)
	// Put stores a translation; existing entries are never overwritten.
	Put(ctx context.Context, promptHash, translatedText string) error
}
