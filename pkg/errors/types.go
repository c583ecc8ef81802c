package errors

import (
	"fmt"
	"strings"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// ConfigurationError is returned when the local inputs to a deployment are
// invalid. It's always detected before any remote state is modified.
type ConfigurationError struct {
	Msg string
}

func (err ConfigurationError) Error() string {
	return err.Msg
}

// FriendlyMessage implements the Friendly interface.
func (err ConfigurationError) FriendlyMessage() string {
	return fmt.Sprintf("Invalid deployment configuration.\n%s", err.Msg)
}

// BuildError is returned when the build step for an action fails.
type BuildError struct {
	Action string
	Err    error
}

func (err BuildError) Error() string {
	return fmt.Sprintf("build action %q: %s", err.Action, err.Err)
}

func (err BuildError) Unwrap() error {
	return err.Err
}

// RemoteError is returned when a call to the remote platform fails.
// Op is the attempted operation, and Target is the package or action it
// was applied to.
type RemoteError struct {
	Op     string
	Target string
	Err    error
}

func (err RemoteError) Error() string {
	return fmt.Sprintf("%s %q: %s", err.Op, err.Target, err.Err)
}

func (err RemoteError) Unwrap() error {
	return err.Err
}

// DeleteError ties a failed orphan deletion to the action it was deleting.
type DeleteError struct {
	Action string
	Err    error
}

func (err DeleteError) Error() string {
	return fmt.Sprintf("delete action %q: %s", err.Action, err.Err)
}

func (err DeleteError) Unwrap() error {
	return err.Err
}

// DeleteErrors collects every failed deletion from a reconciliation pass.
type DeleteErrors []DeleteError

func (errs DeleteErrors) Error() string {
	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("failed to delete %d orphaned action(s): %s",
		len(errs), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (errs DeleteErrors) Unwrap() []error {
	var unwrapped []error
	for _, err := range errs {
		unwrapped = append(unwrapped, err)
	}
	return unwrapped
}
