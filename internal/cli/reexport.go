package cli

import (
	"github.com/spf13/cobra"

	"github.com/fossas/circe/internal/config"
	"github.com/fossas/circe/internal/reexport"
	"github.com/fossas/circe/pkg/sylog"
)

func newReexportCmd(cfg config.Config) *cobra.Command {
	var t target

	cmd := &cobra.Command{
		Use:   "reexport <image> [output_tar]",
		Short: "Bundle an image's layers into a docker-save-shaped tarball",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := args[0]
			output := "image.tar"
			if len(args) == 2 {
				output = args[1]
			}

			ctx := cmd.Context()
			src, closer, err := resolve(ctx, cfg, image, &t)
			if err != nil {
				return err
			}
			defer closer.Close()

			layers, err := src.Layers()
			if err != nil {
				return err
			}
			sylog.Infof("enumerated %d layer(s)", len(layers))

			if err := reexport.Write(src, layers, image, output); err != nil {
				return err
			}

			sylog.Infof("re-exported %s to %s", image, output)
			return nil
		},
	}

	t.registerFlags(cmd)
	return cmd
}
