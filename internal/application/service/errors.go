package service

import "errors"

// State errors. These are the only errors allowed to block the primary
// approval flow; callers translate them into user-facing conflict responses.
var (
	// ErrStepAlreadyResolved is returned when an action targets a level
	// below the current actionable step.
	ErrStepAlreadyResolved = errors.New("this step was already decided")

	// ErrConcurrentModification is returned when the optimistic
	// still-pending guard loses to a concurrent approver.
	ErrConcurrentModification = errors.New("step was processed concurrently")

	// ErrNotesRequired is returned when an override is attempted without a
	// justification.
	ErrNotesRequired = errors.New("notes are required when overriding lower approval levels")

	// ErrChainNotPending is returned when cancelling or acting on a chain
	// that has no pending steps left.
	ErrChainNotPending = errors.New("approval chain is not pending")

	// ErrChainExists is returned when initializing a chain over live steps;
	// resubmission after rejection is the caller's responsibility via a new
	// entity record.
	ErrChainExists = errors.New("approval chain already exists for entity")

	// ErrInvalidAction is returned for actions outside approve/reject.
	ErrInvalidAction = errors.New("invalid approval action")

	// ErrStepNotFound is returned when an action targets a level the chain
	// never had. A caller input error, not a state conflict.
	ErrStepNotFound = errors.New("approval level does not exist")
)

// Logger is the minimal logging interface application services depend on.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
