package model

import "errors"

// Sentinel errors for the caller-facing failure taxonomy. Call sites wrap
// these with fmt.Errorf("...: %w", ...) and callers classify with errors.Is.
var (
	// Session errors.
	ErrAlreadyActive   = errors.New("multisend: session already active")
	ErrAuthTimeout     = errors.New("multisend: authentication timed out")
	ErrAuthFailed      = errors.New("multisend: authentication failed")
	ErrNoActiveSession = errors.New("multisend: no active session")

	// Dispatch errors.
	ErrInvalidTarget   = errors.New("multisend: invalid target address")
	ErrUnknownTemplate = errors.New("multisend: unknown template")
	ErrTransientSend   = errors.New("multisend: transient send failure")

	// Rate limit errors.
	ErrCooldownActive = errors.New("multisend: cooldown active")
	ErrQuotaExceeded  = errors.New("multisend: daily quota exceeded")

	// Persistence errors.
	ErrStorage = errors.New("multisend: credential storage failure")
)

// Kind maps an error to its taxonomy tag for structured results.
// Unclassified errors report "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyActive):
		return "AlreadyActive"
	case errors.Is(err, ErrAuthTimeout):
		return "AuthTimeout"
	case errors.Is(err, ErrAuthFailed):
		return "AuthFailed"
	case errors.Is(err, ErrNoActiveSession):
		return "NoActiveSession"
	case errors.Is(err, ErrInvalidTarget):
		return "InvalidTarget"
	case errors.Is(err, ErrUnknownTemplate):
		return "UnknownTemplate"
	case errors.Is(err, ErrTransientSend):
		return "TransientSendFailure"
	case errors.Is(err, ErrCooldownActive):
		return "CooldownActive"
	case errors.Is(err, ErrQuotaExceeded):
		return "QuotaExceeded"
	case errors.Is(err, ErrStorage):
		return "StorageError"
	default:
		return "internal"
	}
}
