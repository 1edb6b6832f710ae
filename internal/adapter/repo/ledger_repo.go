package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"videogen-server/internal/domain"
	"videogen-server/internal/infra"
)

// CreditLedgerPG implements domain.CreditLedger backed by PostgreSQL.
type CreditLedgerPG struct {
	db infra.DB
}

// NewCreditLedger creates a new CreditLedgerPG.
func NewCreditLedger(db infra.DB) *CreditLedgerPG {
	return &CreditLedgerPG{db: db}
}

// Reserve debits the balance with a single conditional update so concurrent
// reservations for the same user never race a read against a write.
func (r *CreditLedgerPG) Reserve(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("reserve amount must be positive, got %d", amount)
	}
	row := r.db.QueryRow(ctx, `
UPDATE users
SET credits = credits - $2,
    videos_generated = videos_generated + 1,
    updated_at = NOW()
WHERE id = $1
  AND credits >= $2
RETURNING credits;
`, userID, amount)

	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the user does not exist or the balance is too low.
			if _, lookupErr := r.GetUser(ctx, userID); lookupErr != nil {
				return 0, lookupErr
			}
			return 0, domain.ErrInsufficientCredits
		}
		return 0, err
	}
	return remaining, nil
}

// Refund credits the amount back and floors the usage counter at zero.
func (r *CreditLedgerPG) Refund(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	tag, err := r.db.Exec(ctx, `
UPDATE users
SET credits = credits + $2,
    videos_generated = GREATEST(videos_generated - 1, 0),
    updated_at = NOW()
WHERE id = $1;
`, userID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetUser fetches a user by id.
func (r *CreditLedgerPG) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `
SELECT id, email, credits, videos_generated, created_at, updated_at
FROM users
WHERE id = $1;
`, userID)

	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Credits, &u.VideosGenerated, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

var _ domain.CreditLedger = (*CreditLedgerPG)(nil)
