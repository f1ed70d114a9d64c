package vcsrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/gitexec"
)

// Code classifies reconciliation failures so callers can tell retryable
// conditions from logically fatal ones.
type Code string

const (
	CodeOccupiedPath            Code = "OCCUPIED_PATH"
	CodeRevisionNotFound        Code = "REVISION_NOT_FOUND"
	CodeIncompatibleShapeChange Code = "INCOMPATIBLE_SHAPE_CHANGE"
	CodeRemoteMismatch          Code = "REMOTE_MISMATCH"
	CodeAuthenticationFailure   Code = "AUTHENTICATION_FAILURE"
	CodeNetworkFailure          Code = "NETWORK_FAILURE"
	CodeVerificationFailed      Code = "CONVERGENCE_VERIFICATION_FAILED"
	CodeCommandFailure          Code = "COMMAND_EXECUTION_FAILURE"
	CodeTimeout                 Code = "TIMEOUT"
	CodeInvalidDesiredState     Code = "INVALID_DESIRED_STATE"
	CodeUnsafePath              Code = "UNSAFE_PATH"
)

// Error is a classified reconciliation failure.
type Error struct {
	Code Code
	Path string
	// Action names the attempted operation, e.g. "clone" or "probe".
	Action string
	// Command is the git invocation that failed, if any.
	Command string
	// Stderr is the command's ANSI-stripped diagnostic output, verbatim.
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Path != "" {
		fmt.Fprintf(&b, " at %s", e.Path)
	}
	if e.Action != "" {
		fmt.Fprintf(&b, " during %s", e.Action)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, ErrOccupiedPath) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrOccupiedPath            = &Error{Code: CodeOccupiedPath}
	ErrRevisionNotFound        = &Error{Code: CodeRevisionNotFound}
	ErrIncompatibleShapeChange = &Error{Code: CodeIncompatibleShapeChange}
	ErrRemoteMismatch          = &Error{Code: CodeRemoteMismatch}
	ErrAuthenticationFailure   = &Error{Code: CodeAuthenticationFailure}
	ErrNetworkFailure          = &Error{Code: CodeNetworkFailure}
	ErrVerificationFailed      = &Error{Code: CodeVerificationFailed}
	ErrCommandFailure          = &Error{Code: CodeCommandFailure}
	ErrTimeout                 = &Error{Code: CodeTimeout}
	ErrInvalidDesiredState     = &Error{Code: CodeInvalidDesiredState}
	ErrUnsafePath              = &Error{Code: CodeUnsafePath}
)

// CodeOf returns the classification of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether a caller may reasonably retry the reconciliation.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetworkFailure, CodeTimeout:
		return true
	default:
		return false
	}
}

var authMarkers = []string{
	"authentication failed",
	"permission denied (publickey",
	"could not read username",
	"could not read password",
	"terminal prompts disabled",
	"host key verification failed",
	"invalid username or password",
	"http basic: access denied",
	"the requested url returned error: 401",
	"the requested url returned error: 403",
}

var networkMarkers = []string{
	"could not resolve host",
	"could not resolve hostname",
	"connection refused",
	"connection timed out",
	"operation timed out",
	"network is unreachable",
	"no route to host",
	"connection reset",
	"early eof",
	"the remote end hung up unexpectedly",
	"unable to access",
	"ssl_connect",
	"gnutls_handshake",
	"the requested url returned error: 5",
}

// classify turns a failed git invocation into a classified Error.
func classify(path, action string, cmd gitexec.Command, res gitexec.Result, runErr error) *Error {
	e := &Error{
		Code:    CodeCommandFailure,
		Path:    path,
		Action:  action,
		Command: cmd.String(),
		Stderr:  gitexec.PrimaryOutput(res),
	}

	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		e.Code = CodeTimeout
		e.Err = runErr
		return e
	case runErr != nil:
		e.Err = runErr
		return e
	}

	e.Err = fmt.Errorf("%s exited with status %d", cmd.String(), res.ExitCode)
	lower := strings.ToLower(e.Stderr)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			e.Code = CodeAuthenticationFailure
			return e
		}
	}
	for _, marker := range networkMarkers {
		if strings.Contains(lower, marker) {
			e.Code = CodeNetworkFailure
			return e
		}
	}
	return e
}
