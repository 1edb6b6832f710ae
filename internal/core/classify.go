package core

import "strings"

// FailureKind is the closed set of user-facing failure classes. Raw provider
// error text never reaches users; unknown errors degrade to FailureGeneric.
type FailureKind int

const (
	FailureGeneric FailureKind = iota
	FailureContentPolicy
	FailureUnsupportedInput
	FailureCapacity
)

// UserMessage returns the fixed, non-technical message for the class.
func (k FailureKind) UserMessage() string {
	switch k {
	case FailureContentPolicy:
		return "The request was declined by the provider's content policy. Please adjust the prompt and try again."
	case FailureUnsupportedInput:
		return "The provider could not process this input. Please check the prompt and any reference images."
	case FailureCapacity:
		return "The video service is temporarily unavailable. Please try again later."
	default:
		return "Video generation failed. Please try again."
	}
}

// RefundNotice is appended to a failed job's message once the refund is
// settled, so the record is visibly reconciled on inspection.
const RefundNotice = "Your credits for this request have been refunded."

var (
	contentPolicyHints = []string{
		"content policy", "policy violation", "moderation", "safety", "prohibited", "nsfw", "flagged",
	}
	unsupportedHints = []string{
		"unsupported", "invalid input", "invalid image", "unrecognized format", "resolution", "too large", "malformed",
	}
	capacityHints = []string{
		"capacity", "quota exceeded", "insufficient balance", "out of budget", "overloaded", "no resources", "account balance",
	}
)

// ClassifyProviderError maps a raw provider error (code, free-text message,
// HTTP status) onto the closed FailureKind set.
func ClassifyProviderError(code, message string, httpStatus int) FailureKind {
	haystack := strings.ToLower(code + " " + message)
	for _, hint := range contentPolicyHints {
		if strings.Contains(haystack, hint) {
			return FailureContentPolicy
		}
	}
	for _, hint := range capacityHints {
		if strings.Contains(haystack, hint) {
			return FailureCapacity
		}
	}
	for _, hint := range unsupportedHints {
		if strings.Contains(haystack, hint) {
			return FailureUnsupportedInput
		}
	}
	switch httpStatus {
	case 402, 429, 503:
		return FailureCapacity
	case 400, 415, 422:
		return FailureUnsupportedInput
	}
	return FailureGeneric
}
