package runtime

import "fmt"

// FlowErrorKind classifies interpreter failures. None of them are fatal to
// the hosting process; all are scoped to a single conversational session.
type FlowErrorKind string

const (
	// ErrorDefinitionUnavailable signals a definition fetch returned null
	// or failed. The step aborts silently and the flow stalls.
	ErrorDefinitionUnavailable FlowErrorKind = "definition_unavailable"
	// ErrorGeneratorFailure signals a generator reported success=false or
	// the invocation itself failed. Recovered locally: an inline error
	// message is shown and the flow still advances.
	ErrorGeneratorFailure FlowErrorKind = "generator_failure"
	// ErrorStreamingTimeout signals the completion waiter substituted a
	// placeholder output. Forward progress is preserved.
	ErrorStreamingTimeout FlowErrorKind = "streaming_timeout"
	// ErrorTransitionUnresolved signals no transition rule matched and no
	// default next step exists.
	ErrorTransitionUnresolved FlowErrorKind = "transition_unresolved"
)

// FlowError is the canonical error type for interpreter failures.
type FlowError struct {
	Kind    FlowErrorKind
	Step    string
	Message string
	Cause   error
}

func (e *FlowError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s (step: %s)", e.Kind, e.Message, e.Step)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewFlowError creates a FlowError for the given step.
func NewFlowError(kind FlowErrorKind, step, message string) *FlowError {
	return &FlowError{Kind: kind, Step: step, Message: message}
}

// WrapFlowError creates a FlowError carrying an underlying cause.
func WrapFlowError(kind FlowErrorKind, step string, cause error) *FlowError {
	return &FlowError{Kind: kind, Step: step, Message: cause.Error(), Cause: cause}
}

// IsFlowError reports whether err is a FlowError of the given kind.
func IsFlowError(err error, kind FlowErrorKind) bool {
	fe, ok := err.(*FlowError)
	return ok && fe.Kind == kind
}
