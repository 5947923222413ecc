// Package ledgererr defines the typed error taxonomy shared by every core
// package, modeled directly on the teacher's ErrorCode/TxError/txerr triple.
package ledgererr

import (
	"errors"
	"fmt"
)

// Code is one of the taxonomized failure classes a core operation can
// surface.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeDecode            Code = "DECODE"
	CodeMalformed         Code = "MALFORMED"
	CodeStale             Code = "STALE"
	CodeInsufficient      Code = "INSUFFICIENT"
	CodeInvalidSignature  Code = "INVALID_SIGNATURE"
	CodeDuplicateSend     Code = "DUPLICATE_SEND"
	CodeDuplicateReceive  Code = "DUPLICATE_RECEIVE"
	CodeUnknownCommand    Code = "UNKNOWN_COMMAND"
	CodeInvariantViolated Code = "INVARIANT_VIOLATED"
)

// Error wraps a Code with a human-readable message and an optional
// underlying cause.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New constructs an *Error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Newf constructs an *Error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error carrying cause as its Unwrap target.
func Wrap(code Code, msg string, cause error) error {
	return &Error{Code: code, Msg: msg, Err: cause}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
