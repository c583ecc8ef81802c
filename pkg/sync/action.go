package sync

import (
	"time"
)

// Outcome describes what happened to an action during a deployment.
type Outcome string

const (
	// Created means the action didn't exist remotely, and was uploaded.
	Created Outcome = "created"

	// Updated means the action's content changed, and was re-uploaded.
	Updated Outcome = "updated"

	// Unchanged means the remote action already had the local content, so
	// nothing was uploaded.
	Unchanged Outcome = "unchanged"
)

// Action tracks a single action directory through a deployment. It only
// lives for the duration of one run.
type Action struct {
	Name string
	Dir  string

	// Build is the command that prepares the directory. If it's empty, the
	// builder's default is used.
	Build []string

	// Fields are passed to the platform verbatim when the action is
	// uploaded.
	Fields map[string]interface{}

	// Fingerprint is the digest of the local content after the build.
	Fingerprint string

	// RemoteExists is whether an action with the same name exists in the
	// package on the platform.
	RemoteExists bool

	// RemoteFingerprint is the fingerprint recorded on the remote action
	// when it was last uploaded.
	RemoteFingerprint string
}

// NeedsUpload returns whether the remote action is missing or has different
// content than the local directory. Changes that only affect Fields don't
// trigger an upload.
func (action Action) NeedsUpload() bool {
	return !action.RemoteExists || action.RemoteFingerprint != action.Fingerprint
}

// outcome returns the outcome of resolving the action.
func (action Action) outcome() Outcome {
	switch {
	case !action.RemoteExists:
		return Created
	case action.NeedsUpload():
		return Updated
	default:
		return Unchanged
	}
}

// ActionResult is the outcome of deploying a single action.
type ActionResult struct {
	Name        string
	Outcome     Outcome
	Fingerprint string
	Duration    time.Duration
}

// Result summarizes a deployment.
type Result struct {
	Package string

	// Actions are in the order they were processed.
	Actions []ActionResult

	// Deleted are the orphaned actions that were removed from the package.
	// During a dry run, nothing is removed, and Deleted holds the orphans
	// that would have been.
	Deleted []string

	// DryRun is whether the remote changes were only planned.
	DryRun bool

	Duration time.Duration
}

// Processed returns the names of the actions that were resolved, in
// processing order.
func (result Result) Processed() []string {
	var names []string
	for _, action := range result.Actions {
		names = append(names, action.Name)
	}
	return names
}

// Count returns the number of actions with the given outcome.
func (result Result) Count(outcome Outcome) int {
	var count int
	for _, action := range result.Actions {
		if action.Outcome == outcome {
			count++
		}
	}
	return count
}
