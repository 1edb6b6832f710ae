// Package translate converts a raw user prompt into the normalized payload
// the generation provider expects, consulting the content-addressed cache
// before any remote call.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"

	"videogen-server/internal/domain"
)

// RemoteTranslator is the outbound edge to the translation provider.
type RemoteTranslator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Translator normalizes prompts cache-first.
type Translator struct {
	cache  domain.TranslationCache
	remote RemoteTranslator
	logger zerolog.Logger
}

// NewTranslator wires the cache store and the remote provider client.
func NewTranslator(cache domain.TranslationCache, remote RemoteTranslator, logger zerolog.Logger) *Translator {
	return &Translator{cache: cache, remote: remote, logger: logger}
}

// CacheKey returns the content address for a prompt: the SHA-256 hex digest
// of the exact text. Differing prompts never share an entry.
func CacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Translate returns the normalized prompt. Cache hits make zero remote calls.
// The dialogue pass runs on the source text either way, since it is local and
// deterministic. A remote failure surfaces as domain.ErrTranslationFailed and
// must abort the submission before any credits are reserved.
func (t *Translator) Translate(ctx context.Context, prompt string) (*domain.NormalizedPrompt, error) {
	key := CacheKey(prompt)

	text, hit, err := t.cache.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("translation cache lookup: %w", err)
	}
	if !hit {
		text, err = t.remote.Translate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTranslationFailed, err)
		}
		if putErr := t.cache.Put(ctx, key, text); putErr != nil {
			// The translation is still usable; losing a cache entry only
			// costs a future remote call.
			t.logger.Warn().Err(putErr).Str("prompt_hash", key).Msg("translate: cache write failed")
		}
	}

	return &domain.NormalizedPrompt{
		Text:     text,
		Dialogue: ExtractDialogue(prompt),
	}, nil
}
