package engine

import "fmt"

// PreconditionError reports a lifecycle command issued without the roster it
// requires, e.g. start without an active moderator.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}

// InvalidTransitionError reports a lifecycle command that is not legal for
// the session's current status. The command is rejected without mutating
// any state.
type InvalidTransitionError struct {
	Command string
	Status  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a session in status %q", e.Command, e.Status)
}

// ProviderError reports a completion provider failure before any text was
// produced. The speaker is retried once, then skipped for the cycle.
type ProviderError struct {
	AgentName string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider failed for agent %q: %v", e.AgentName, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a durable write failure. Fatal to the current
// turn attempt only; the session stays running.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
