package plan

import (
	"errors"
	"fmt"
)

var ErrEmptyPlan = errors.New("action plan is empty")

// SchemaValidationError reports oracle output that does not fit the expected schema.
type SchemaValidationError struct {
	Schema string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("oracle output does not match schema %s: %v", e.Schema, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// UnknownCapabilityError reports a step whose capability has no registered agent.
type UnknownCapabilityError struct {
	Capability Capability
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("no remote agent registered for capability %q", e.Capability)
}

// RemoteDispatchError reports an unreachable remote agent or an unusable reply.
type RemoteDispatchError struct {
	Capability Capability
	Err        error
}

func (e *RemoteDispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s agent failed: %v", e.Capability, e.Err)
}

func (e *RemoteDispatchError) Unwrap() error { return e.Err }

// PolicyDeniedError reports a step refused by the dispatch policy.
type PolicyDeniedError struct {
	Capability Capability
	Reason     string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("dispatch to %s denied: %s", e.Capability, e.Reason)
}
