package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AuthError is returned when no usable credentials could be obtained. It is
// fatal for the process.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// QueryError carries every diagnostic the warehouse reported for a failed
// query.
type QueryError struct {
	Messages []string
	Err      error
}

func (e *QueryError) Error() string {
	if len(e.Messages) == 0 && e.Err != nil {
		return "query failed: " + e.Err.Error()
	}
	return "query failed: " + strings.Join(e.Messages, "; ")
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// CatalogError is returned by the catalog browser. Op names the listing that
// failed, e.g. "datasets".
type CatalogError struct {
	Op       string
	Messages []string
	Err      error
}

func (e *CatalogError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("something went wrong fetching %s: %s", e.Op, msg)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// UserInputError is a malformed command or setting. It is shown to the user
// and never changes state.
type UserInputError struct {
	Message string
	Hint    string
}

func (e *UserInputError) Error() string {
	if e.Hint != "" {
		return e.Message + " (" + e.Hint + ")"
	}
	return e.Message
}

func newUserInputError(format string, a ...interface{}) *UserInputError {
	return &UserInputError{Message: fmt.Sprintf(format, a...)}
}

// TypeMismatchError reports a value whose kind does not fit its column type.
type TypeMismatchError struct {
	Column string
	Want   string
	Got    Kind
}

func (e *TypeMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("type mismatch: cannot format %s value as %s", e.Got, e.Want)
	}
	return fmt.Sprintf("type mismatch in column %q: cannot format %s value as %s", e.Column, e.Got, e.Want)
}

// errorMessages flattens the diagnostics of err for logging, one entry per
// message.
func errorMessages(err error) []string {
	var qe *QueryError
	if errors.As(err, &qe) && len(qe.Messages) > 0 {
		return qe.Messages
	}
	var ce *CatalogError
	if errors.As(err, &ce) && len(ce.Messages) > 0 {
		msgs := make([]string, 0, len(ce.Messages)+1)
		msgs = append(msgs, "Something went wrong fetching "+ce.Op)
		return append(msgs, ce.Messages...)
	}
	return []string{err.Error()}
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
