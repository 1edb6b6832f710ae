package infra

import (
	"context"
	"fmt"
	"strings"

	"videogen-server/db"
)

// Migrate applies the embedded schema. Every statement is idempotent
// (IF NOT EXISTS), so running it on each startup is safe.
func Migrate(ctx context.Context, database DB) error {
	for _, stmt := range strings.Split(db.Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
