package cli

import (
	"github.com/spf13/cobra"

	"github.com/fossas/circe/internal/config"
	"github.com/fossas/circe/pkg/extract"
	"github.com/fossas/circe/pkg/ociref"
	"github.com/fossas/circe/pkg/sylog"
)

func newExtractCmd(cfg config.Config) *cobra.Command {
	var t target
	var layersMode string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "extract <image> [output_dir]",
		Short: "Materialize an image's layers onto local disk",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := args[0]
			outputDir := "extracted"
			if len(args) == 2 {
				outputDir = args[1]
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

			strategies, err := buildStrategies(layersMode, layers)
			if err != nil {
				return err
			}

			if err := extract.PrepareOutputDir(outputDir, overwrite); err != nil {
				return err
			}

			placements, err := extract.Run(src, outputDir, strategies)
			if err != nil {
				return err
			}

			defaults := ociref.DefaultDefaults
			if cfg.DefaultBase != "" {
				defaults.Base = cfg.DefaultBase
			}
			if cfg.DefaultNamespace != "" {
				defaults.Namespace = cfg.DefaultNamespace
			}
			refString := image
			if ref, err := ociref.Parse(image, defaults); err == nil {
				// Image resolved via tarball/daemon may not parse as a
				// registry reference; in that case keep the raw string.
				refString = ref.String()
			}

			report := extract.BuildReport(refString, src.Digest(), src.Name(), placements)
			if err := extract.WriteReport(report, outputDir); err != nil {
				return err
			}

			sylog.Infof("extracted %s to %s", image, outputDir)
			return nil
		},
	}

	t.registerFlags(cmd)
	cmd.Flags().StringVar(&layersMode, "layers", layersSquash, "squash|base|squash-other|base-and-squash-other|separate")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "remove an existing output directory before extracting")

	return cmd
}
