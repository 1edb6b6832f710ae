package domain

import "time"

// JobStatus enumerates the generation job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition can occur.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// rank orders statuses for the forward-only transition invariant:
// pending < processing < {completed, failed}.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next goes forward.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	return !s.IsTerminal() && next.rank() > s.rank()
}

// Job is the durable record of a single generation request, from submission
// to terminal outcome. Retained forever as the billing/audit record.
type Job struct {
	ID               string
	UserID           string
	OriginalPrompt   string
	NormalizedPrompt string
	Dialogue         []DialogueFragment
	ImageURLs        []string
	Seed             *int64
	ProviderTaskID   string
	Status           JobStatus
	ResultURL        string
	// CreditsReserved is fixed at creation and never changes; it is the
	// single source of truth for how much a failure refunds.
	CreditsReserved int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}
