package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateAgent is returned when registering an agent whose name is
	// already present in the registry.
	ErrDuplicateAgent = errors.New("agent already registered")
	// ErrAgentNotFound is returned when looking up an agent that was never
	// registered.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrNoAgentAvailable is signalled by the selector when no agent exists
	// for the classified domain at all.
	ErrNoAgentAvailable = errors.New("no agent available")
)

// ClassificationError indicates the classifier produced empty or malformed
// output. The router degrades to the default classification on this error.
type ClassificationError struct {
	Reason string
	Cause  error
}

func (e *ClassificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("classification failed: %s", e.Reason)
}

func (e *ClassificationError) Unwrap() error { return e.Cause }

// UpstreamError indicates a transport-level failure talking to the
// classification service.
type UpstreamError struct {
	Cause error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("classifier upstream error: %v", e.Cause)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// TransportError is a retryable failure reaching an agent endpoint.
type TransportError struct {
	Agent string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling agent %s: %v", e.Agent, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// TimeoutError is a retryable failure where an agent did not answer within
// its declared timeout.
type TimeoutError struct {
	Agent   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent %s timed out after %s", e.Agent, e.Timeout)
}

// Retryable reports whether err is a transport or timeout class failure that
// the execution engine may retry. Structured application failures returned by
// an agent (success=false with a well-formed payload) never surface as
// errors, so they are never retried.
func Retryable(err error) bool {
	var transport *TransportError
	var timeout *TimeoutError
	return errors.As(err, &transport) || errors.As(err, &timeout)
}
