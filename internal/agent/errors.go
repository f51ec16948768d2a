package agent

import (
	"errors"
	"fmt"
)

var (
	ErrAgentUnreachable = errors.New("agent service unreachable")
	ErrAgentRejected    = errors.New("agent service rejected request")
	ErrTaskNotFound     = errors.New("agent task not found")
)

// UnreachableError is a transport-level failure: DNS, connect, reset or a
// response body that could not be read or decoded.
type UnreachableError struct {
	Op  string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrAgentUnreachable, e.Err)
}

func (e *UnreachableError) Unwrap() []error { return []error{ErrAgentUnreachable, e.Err} }

// RejectedError carries a non-2xx response from the agent service.
type RejectedError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %v: status %d: %s", e.Op, ErrAgentRejected, e.StatusCode, e.Body)
}

func (e *RejectedError) Unwrap() error { return ErrAgentRejected }
