package errors

import (
	"errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// Is and As are re-exported so callers don't need to import both error
// packages.
var (
	Is = errors.Is
	As = errors.As
)

// contextError annotates an error with what was being attempted when it
// occurred. Chained contexts print as "outer: inner: cause".
type contextError struct {
	context string
	err     error
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// WithContext wraps `err` with a description of the operation that failed.
// It returns nil if `err` is nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context: context, err: err}
}

// RootCause strips all the contexts added by WithContext.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// Friendly is implemented by errors that have a message meant to be shown
// directly to users, rather than a chain of internal contexts.
type Friendly interface {
	FriendlyMessage() string
}

// FriendlyError is an error whose message is already suitable for users.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a FriendlyError from a format string.
func NewFriendlyError(template string, args ...interface{}) error {
	return FriendlyError{fmt.Sprintf(template, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage implements the Friendly interface.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// GetPrintableMessage returns the message that should be shown to users for
// `err`. If any error in the chain is Friendly, its message is used.
// Otherwise, the full context chain is returned.
func GetPrintableMessage(err error) string {
	var friendly Friendly
	if errors.As(err, &friendly) {
		return friendly.FriendlyMessage()
	}
	return err.Error()
}
