package api

import "fmt"

// Error taxonomy for everything that crosses the wire (or is stopped before
// it gets there):
//
//   ValidationError — malformed or missing local input, never dispatched.
//   NetworkError    — transient transport failure; retry is a new call.
//   RejectionError  — authoritative negative result from the service
//                     (failed voice match, wrong OTP, duplicate enrollment).

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

type RejectionError struct {
	Op      string
	Message string // server-supplied reason, surfaced verbatim
}

func (e *RejectionError) Error() string { return fmt.Sprintf("%s rejected: %s", e.Op, e.Message) }
