package cli

import (
	"github.com/spf13/cobra"

	"github.com/fossas/circe/internal/config"
	"github.com/fossas/circe/pkg/sylog"
)

// New builds the root `circe` command with its three subcommands
// (extract, list, reexport), per spec.md §6's informative CLI surface.
func New(cfg config.Config) *cobra.Command {
	var verbose, quiet, debug bool

	root := &cobra.Command{
		Use:           "circe",
		Short:         "Materialize OCI/Docker image filesystems without a container runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			switch {
			case debug:
				sylog.SetLevel(int(sylog.DebugLevel))
			case verbose:
				sylog.SetLevel(int(sylog.VerboseLevel))
			case quiet:
				sylog.SetLevel(int(sylog.WarnLevel))
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	root.AddCommand(newExtractCmd(cfg))
	root.AddCommand(newListCmd(cfg))
	root.AddCommand(newReexportCmd(cfg))

	return root
}
