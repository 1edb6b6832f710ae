// Command grantcredits adds credits to a user's balance. It stands in for
// the payment collaborator in development and operations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	var (
		idFlag     string
		emailFlag  string
		amountFlag int
	)

	flag.StringVar(&idFlag, "id", "", "user ID to credit (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to credit (created if missing)")
	flag.IntVar(&amountFlag, "amount", 0, "credits to add (must be positive)")
	flag.Parse()

	_ = godotenv.Load()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)

	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if amountFlag <= 0 {
		exitWithError(errors.New("-amount must be positive"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	var (
		creditedID string
		balance    int
	)
	if userID != "" {
		row := pool.QueryRow(ctx, `
UPDATE users
SET credits = credits + $2, updated_at = NOW()
WHERE id = $1
RETURNING id, credits;
`, userID, amountFlag)
		err = row.Scan(&creditedID, &balance)
	} else {
		row := pool.QueryRow(ctx, `
INSERT INTO users (id, email, credits)
VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE
SET credits = users.credits + EXCLUDED.credits,
    updated_at = NOW()
RETURNING id, credits;
`, uuid.NewString(), email, amountFlag)
		err = row.Scan(&creditedID, &balance)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to grant credits: %w", err))
	}

	fmt.Printf("User %s credited %d, balance is now %d\n", creditedID, amountFlag, balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
