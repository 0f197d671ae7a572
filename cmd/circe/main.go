// Command circe materializes OCI/Docker image filesystems onto local disk
// without a container runtime, per spec.md. This binary is the thin
// entry point: it reads process configuration once and hands off to
// internal/cli.
package main

import (
	"context"
	"os"

	"github.com/fossas/circe/internal/cli"
	"github.com/fossas/circe/internal/config"
	"github.com/fossas/circe/pkg/sylog"
)

func main() {
	cfg := config.FromEnvironment()
	root := cli.New(cfg)

	if err := root.ExecuteContext(context.Background()); err != nil {
		sylog.Errorf("%s", err)
		os.Exit(1)
	}
}
