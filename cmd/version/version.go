package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of owam.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("owam version: %s\n", version.Version)
		},
	}
}
