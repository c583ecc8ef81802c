package sync

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/build"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/config"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/openwhisk"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/scan"
)

// Mocked out for unit testing.
var parseAction = config.ParseAction

// Options control how a deployment modifies the platform.
type Options struct {
	// DryRun plans the remote changes without making them. Actions are still
	// built, since the build may change the fingerprinted content.
	DryRun bool

	// NoPrune leaves remote actions that don't exist locally in place.
	NoPrune bool
}

// Engine deploys a directory of actions to a package on the platform.
//
// All work happens sequentially: the package is updated before any action
// is processed, each action is fully resolved before the next one starts,
// and orphans are only pruned once every action has been resolved.
type Engine struct {
	client  openwhisk.Client
	builder build.Builder
	log     logrus.FieldLogger

	// Mocked out for unit testing.
	clock clockwork.Clock
}

// NewEngine creates a new Engine.
func NewEngine(client openwhisk.Client, builder build.Builder, log logrus.FieldLogger) *Engine {
	return &Engine{
		client:  client,
		builder: builder,
		log:     log,
		clock:   clockwork.NewRealClock(),
	}
}

// Run deploys the actions in `root` to the package described by `pkg`.
//
// Errors from the build step, the package update, and action uploads abort
// the run immediately. Actions that were already resolved stay deployed, and
// re-running the deployment converges the rest. Failures to delete orphans
// are collected into an errors.DeleteErrors, which is returned along with
// the result.
func (e *Engine) Run(ctx context.Context, root string, pkg config.Package, opts Options) (Result, error) {
	start := e.clock.Now()
	result := Result{Package: pkg.Name, DryRun: opts.DryRun}

	actions, err := e.discover(root, pkg)
	if err != nil {
		return result, errors.WithContext(err, "discover actions")
	}

	if opts.DryRun {
		e.log.WithField("package", pkg.Name).Info("Dry run: skipping package update")
	} else if _, err := e.client.UpdatePackage(ctx, pkg.Name, pkg.Fields); err != nil {
		return result, errors.RemoteError{Op: "update package", Target: pkg.Name, Err: err}
	}

	for _, action := range actions {
		actionResult, err := e.syncAction(ctx, pkg, action, opts)
		if err != nil {
			return result, err
		}
		result.Actions = append(result.Actions, actionResult)
	}

	if !opts.NoPrune {
		result.Deleted, err = e.prune(ctx, pkg.Name, result.Processed(), opts)
	}
	result.Duration = e.clock.Since(start)
	return result, err
}

// discover finds the action directories in `root`, and resolves their
// names.
func (e *Engine) discover(root string, pkg config.Package) ([]Action, error) {
	if err := scan.RequireDir(fs, root); err != nil {
		return nil, err
	}

	dirs, err := scan.ListEntries(fs, root, pkg.ActionExcludes, scan.Directory, false)
	if err != nil {
		return nil, errors.WithContext(err, "list directories")
	}

	var actions []Action
	dirsByName := map[string]string{}
	for _, dir := range dirs {
		dir = filepath.Join(root, filepath.FromSlash(dir))
		actionConfig, err := parseAction(dir)
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("parse config for %q", dir))
		}

		if otherDir, ok := dirsByName[actionConfig.Name]; ok {
			return nil, errors.ConfigurationError{
				Msg: fmt.Sprintf("Both %q and %q define the action %q.",
					otherDir, dir, actionConfig.Name),
			}
		}
		dirsByName[actionConfig.Name] = dir

		buildCmd := actionConfig.Build
		if len(buildCmd) == 0 {
			buildCmd = pkg.Build
		}

		actions = append(actions, Action{
			Name:   actionConfig.Name,
			Dir:    dir,
			Build:  buildCmd,
			Fields: actionConfig.Fields,
		})
	}

	e.log.WithFields(logrus.Fields{
		"root":    root,
		"actions": len(actions),
	}).Debug("Discovered actions")
	return actions, nil
}

// syncAction builds the action, and uploads it if its content differs from
// what's deployed.
func (e *Engine) syncAction(ctx context.Context, pkg config.Package, action Action,
	opts Options) (ActionResult, error) {

	start := e.clock.Now()
	log := e.log.WithField("action", action.Name)

	archive, err := e.builder.Build(ctx, action.Dir, action.Build)
	if err != nil {
		return ActionResult{}, errors.BuildError{Action: action.Name, Err: err}
	}

	action.Fingerprint, err = Fingerprint(action.Dir, pkg.FingerprintExcludes)
	if err != nil {
		return ActionResult{}, errors.WithContext(err,
			fmt.Sprintf("fingerprint action %q", action.Name))
	}

	remote, err := e.client.GetAction(ctx, pkg.Name, action.Name)
	switch {
	case err == nil:
		action.RemoteExists = true
		action.RemoteFingerprint = remote.Fingerprint()
	case errors.Is(err, openwhisk.ErrNotFound):
		action.RemoteExists = false
	default:
		return ActionResult{}, errors.RemoteError{Op: "get action", Target: action.Name, Err: err}
	}

	log = log.WithFields(logrus.Fields{
		"fingerprint":       action.Fingerprint,
		"remoteFingerprint": action.RemoteFingerprint,
	})

	outcome := action.outcome()
	switch {
	case !action.NeedsUpload():
		log.Info("Action is up to date")
	case opts.DryRun:
		log.Infof("Dry run: action would be %s", outcome)
	default:
		annotations := openwhisk.KeyValues{
			{Key: openwhisk.FingerprintAnnotation, Value: action.Fingerprint},
		}
		_, err := e.client.UpdateAction(ctx, pkg.Name, action.Name, archive.Contents,
			action.Fields, annotations)
		if err != nil {
			return ActionResult{}, errors.RemoteError{Op: "upload action", Target: action.Name, Err: err}
		}
		log.WithField("files", len(archive.Files)).Infof("Action %s", outcome)
	}

	return ActionResult{
		Name:        action.Name,
		Outcome:     outcome,
		Fingerprint: action.Fingerprint,
		Duration:    e.clock.Since(start),
	}, nil
}

// prune deletes the actions in the package that weren't processed. Every
// orphan is attempted, even if deleting another one failed.
func (e *Engine) prune(ctx context.Context, pkgName string, processed []string,
	opts Options) ([]string, error) {

	// The package doesn't exist yet during a dry run of a new package.
	remote, err := e.client.ListActions(ctx, pkgName)
	if err != nil && !errors.Is(err, openwhisk.ErrNotFound) {
		return nil, errors.RemoteError{Op: "list actions", Target: pkgName, Err: err}
	}

	orphans := findOrphans(pkgName, remote, processed)
	if opts.DryRun {
		for _, orphan := range orphans {
			e.log.WithField("action", orphan).Info("Dry run: action would be deleted")
		}
		return orphans, nil
	}

	var deleted []string
	var deleteErrs errors.DeleteErrors
	for _, orphan := range orphans {
		log := e.log.WithField("action", orphan)
		err := e.client.DeleteAction(ctx, pkgName, orphan)
		switch {
		case err == nil:
			log.Info("Deleted orphaned action")
			deleted = append(deleted, orphan)
		case errors.Is(err, openwhisk.ErrNotFound):
			log.Debug("Orphaned action was already deleted")
		default:
			log.WithError(err).Warn("Failed to delete orphaned action")
			deleteErrs = append(deleteErrs, errors.DeleteError{Action: orphan, Err: err})
		}
	}

	if len(deleteErrs) != 0 {
		return deleted, deleteErrs
	}
	return deleted, nil
}

// findOrphans returns the sorted names of the remote actions in `pkgName`
// that aren't in `processed`.
func findOrphans(pkgName string, remote []openwhisk.Action, processed []string) []string {
	processedSet := map[string]struct{}{}
	for _, name := range processed {
		processedSet[name] = struct{}{}
	}

	var orphans []string
	for _, action := range remote {
		// The namespace of an action in a package is `<namespace>/<package>`.
		if path.Base(action.Namespace) != pkgName {
			continue
		}

		if _, ok := processedSet[action.Name]; !ok {
			orphans = append(orphans, action.Name)
		}
	}
	sort.Strings(orphans)
	return orphans
}
