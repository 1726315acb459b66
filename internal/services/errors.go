package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCredentialInvalid marks failures caused by an unusable account
	// credential. Fatal for the account; triggers a health re-check.
	ErrCredentialInvalid = errors.New("credential invalid")
	// ErrCredentialExpiring marks credentials inside the expiry warning
	// window. Surfaced but never fatal for the current task.
	ErrCredentialExpiring = errors.New("credential expiring")
	// ErrValidation marks input or metadata the platform rejected. Never
	// retried.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or malformed local configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks lookups for tasks or accounts that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks failures worth retrying with backoff.
	ErrTransient = errors.New("transient failure")

	// ErrResourceLocked is a scheduling signal, not a failure: the task's
	// resource is being processed by another task and the task stays queued.
	ErrResourceLocked = errors.New("resource locked")
	// ErrPoolExhausted is a scheduling signal: no healthy account is
	// available and the task stays queued.
	ErrPoolExhausted = errors.New("account pool exhausted")
)

// Wrap builds an error message that includes phase context while tagging it
// with the provided marker for later retry classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a task failure should be re-enqueued. Validation,
// configuration, credential, and not-found failures are terminal; everything
// else is assumed transient.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrCredentialInvalid),
		errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

// IsSchedulingSignal reports whether an error is a defer signal rather than a
// task failure. Signal errors leave the task queued and untouched.
func IsSchedulingSignal(err error) bool {
	return errors.Is(err, ErrResourceLocked) || errors.Is(err, ErrPoolExhausted)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
