package domain

import "time"

// DialogueFragment is a quoted/spoken piece of the original prompt together
// with its deterministic romanization. The generation provider uses the
// romanized form to render spoken audio.
type DialogueFragment struct {
	Text      string `json:"text"`
	Romanized string `json:"romanized"`
}

// NormalizedPrompt is the translator output fed to the provider gateway.
type NormalizedPrompt struct {
	Text     string
	Dialogue []DialogueFragment
}

// TranslationCacheEntry maps a prompt hash to its translation. Entries are
// immutable once written; identical prompts are cache hits forever.
type TranslationCacheEntry struct {
	PromptHash     string
	TranslatedText string
	UsageCount     int
	CreatedAt      time.Time
}
