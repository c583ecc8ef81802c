package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cokeSchlumpf/openwhisk-action-manager/cmd/util"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/build"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/config"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/openwhisk"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/sync"
)

// Mocked out for unit testing.
var (
	parsePlatform           = config.ParsePlatform
	newClient               = openwhisk.New
	stdout        io.Writer = os.Stdout
)

type flags struct {
	packageName         string
	dryRun              bool
	noPrune             bool
	actionExcludes      []string
	fingerprintExcludes []string
	archiveExcludes     []string
}

// New creates a new `deploy` command.
func New() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "deploy [directory]",
		Short: "Deploy the actions in a directory to an OpenWhisk package.",
		Long: "Deploy each subdirectory of the given directory (by default, the\n" +
			"current directory) as an action in a package named after the directory.\n\n" +
			"Actions are only uploaded if their contents changed since the last\n" +
			"deployment. Actions in the package that no longer exist locally are\n" +
			"deleted.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			if err := run(ctx, root, f); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cmd.Flags().StringVarP(&f.packageName, "package", "p", "",
		"The package to deploy to. Overrides the name in package.yaml.")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false,
		"Print the changes that would be made without making them.")
	cmd.Flags().BoolVar(&f.noPrune, "no-prune", false,
		"Don't delete remote actions that don't exist locally.")
	cmd.Flags().StringSliceVar(&f.actionExcludes, "exclude", nil,
		"Glob patterns for subdirectories that aren't actions.")
	cmd.Flags().StringSliceVar(&f.fingerprintExcludes, "fingerprint-exclude", nil,
		"Glob patterns for files that don't affect whether an action is re-uploaded.")
	cmd.Flags().StringSliceVar(&f.archiveExcludes, "archive-exclude", nil,
		"Glob patterns for files that aren't uploaded.")
	return cmd
}

func run(ctx context.Context, root string, f flags) error {
	platform, err := parsePlatform()
	if err != nil {
		return errors.WithContext(err, "parse platform config")
	}

	pkg, err := config.ParsePackage(root)
	if err != nil {
		return errors.WithContext(err, "parse package config")
	}
	pkg = f.apply(pkg)

	client, err := newClient(platform)
	if err != nil {
		return errors.WithContext(err, "create client")
	}

	log.WithFields(log.Fields{
		"apiHost":   platform.APIHost,
		"namespace": platform.Namespace,
		"package":   pkg.Name,
	}).Debug("Starting deployment")

	engine := sync.NewEngine(client, build.New(pkg.ArchiveExcludes), log.StandardLogger())
	result, err := engine.Run(ctx, root, pkg, sync.Options{
		DryRun:  f.dryRun,
		NoPrune: f.noPrune,
	})

	// Print what was done even if the deployment failed partway, so that
	// the user knows which actions are already deployed.
	printSummary(stdout, result)
	if err != nil {
		return errors.WithContext(err, "deploy")
	}
	return nil
}

func (f flags) apply(pkg config.Package) config.Package {
	if f.packageName != "" {
		pkg.Name = f.packageName
	}
	pkg.ActionExcludes = append(pkg.ActionExcludes, f.actionExcludes...)
	pkg.FingerprintExcludes = append(pkg.FingerprintExcludes, f.fingerprintExcludes...)
	pkg.ArchiveExcludes = append(pkg.ArchiveExcludes, f.archiveExcludes...)
	return pkg
}

func printSummary(out io.Writer, result sync.Result) {
	if len(result.Actions) == 0 && len(result.Deleted) == 0 {
		return
	}

	header := "Deployed package %q:\n"
	if result.DryRun {
		header = "Dry run for package %q (no changes were made):\n"
	}
	fmt.Fprintf(out, header, result.Package)

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	for _, action := range result.Actions {
		fmt.Fprintf(w, "  %s\t%s\n", action.Name, action.Outcome)
	}
	for _, name := range result.Deleted {
		fmt.Fprintf(w, "  %s\tdeleted\n", name)
	}
	w.Flush()

	fmt.Fprintf(out, "%d created, %d updated, %d unchanged, %d deleted in %s.\n",
		result.Count(sync.Created), result.Count(sync.Updated),
		result.Count(sync.Unchanged), len(result.Deleted),
		result.Duration.Round(10*time.Millisecond))
}
