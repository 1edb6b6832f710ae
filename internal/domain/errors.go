package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidPrompt       = errors.New("invalid prompt")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrTranslationFailed   = errors.New("translation failed")
)
