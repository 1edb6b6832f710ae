package domain

import "time"

// User is the account a job bills against. Credits are mutated only through
// the credit ledger operations, never directly.
type User struct {
	ID              string
	Email           string
	Credits         int
	VideosGenerated int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
