package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"videogen-server/internal/domain"
	"videogen-server/internal/infra"
)

// TranslationCachePG implements domain.TranslationCache.
type TranslationCachePG struct {
	db infra.DB
}

// NewTranslationCache creates a new translation cache backed by PostgreSQL.
func NewTranslationCache(db infra.DB) *TranslationCachePG {
	return &TranslationCachePG{db: db}
}

// Get looks up a cached translation and bumps the usage counter in the same
// statement, so the hit count stays accurate under concurrent lookups.
func (r *TranslationCachePG) Get(ctx context.Context, promptHash string) (string, bool, error) {
	row := r.db.QueryRow(ctx, `
UPDATE translation_cache
SET usage_count = usage_count + 1
WHERE prompt_hash = $1
RETURNING translated_text;
`, promptHash)

	var translated string
	if err := row.Scan(&translated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return translated, true, nil
}

// Put stores a translation. Entries are immutable: a concurrent writer that
// got there first wins and the conflict is silently dropped.
func (r *TranslationCachePG) Put(ctx context.Context, promptHash, translatedText string) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO translation_cache (prompt_hash, translated_text)
VALUES ($1, $2)
ON CONFLICT (prompt_hash) DO NOTHING;
`, promptHash, translatedText)
	return err
}

var _ domain.TranslationCache = (*TranslationCachePG)(nil)
