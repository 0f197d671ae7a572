package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fossas/circe/internal/config"
	"github.com/fossas/circe/pkg/sylog"
)

func newListCmd(cfg config.Config) *cobra.Command {
	var t target
	var withFiles bool

	cmd := &cobra.Command{
		Use:   "list <image>",
		Short: "List an image's layers and, optionally, their files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := args[0]

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

			if !withFiles {
				for _, l := range layers {
					fmt.Println(l.Digest.String())
				}
				return nil
			}

			listing := make(map[string][]string, len(layers))
			for _, l := range layers {
				files, err := src.ListFiles(l)
				if err != nil {
					return fmt.Errorf("cli: list files for %s: %w", l.Digest, err)
				}
				listing[l.Digest.String()] = files
			}

			out, err := json.MarshalIndent(listing, "", "  ")
			if err != nil {
				return fmt.Errorf("cli: render listing: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	t.registerFlags(cmd)
	cmd.Flags().BoolVar(&withFiles, "files", false, "also list each layer's files")

	return cmd
}
