// Package cli is the thin command-line shell spec.md lists as an external
// collaborator, wiring pkg/source's three implementations, pkg/extract, and
// internal/reexport together behind cobra subcommands. Grounded on the
// teacher's cmd/internal/cli convention of one file per subcommand, but
// using plain cobra.Command flags instead of apptainer's cmdline.Flag
// registry, since that registry exists to support apptainer's multi-binary
// docs-generation surface, which this program doesn't have.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fossas/circe/internal/config"
	"github.com/fossas/circe/internal/ociauth"
	"github.com/fossas/circe/pkg/filter"
	"github.com/fossas/circe/pkg/ociref"
	"github.com/fossas/circe/pkg/source"
	"github.com/fossas/circe/pkg/source/daemon"
	"github.com/fossas/circe/pkg/source/registry"
	"github.com/fossas/circe/pkg/source/tarball"
	"github.com/fossas/circe/pkg/sylog"

	"github.com/google/go-containerregistry/pkg/authn"
)

// target holds the flags shared by extract/list/reexport: which image to
// resolve and how to filter and authenticate against it.
type target struct {
	platform string
	username string
	password string

	layerGlobs  []string
	layerRegexs []string
	fileGlobs   []string
	fileRegexs  []string
}

func (t *target) registerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.platform, "platform", "", "restrict to OS/ARCH[/VARIANT]")
	cmd.Flags().StringVar(&t.username, "username", "", "registry username")
	cmd.Flags().StringVar(&t.password, "password", "", "registry password")
	cmd.Flags().StringArrayVar(&t.layerGlobs, "layer-glob", nil, "exclude layers whose digest matches this glob (repeatable)")
	cmd.Flags().StringArrayVar(&t.layerRegexs, "layer-regex", nil, "exclude layers whose digest matches this regex (repeatable)")
	cmd.Flags().StringArrayVar(&t.fileGlobs, "file-glob", nil, "exclude files matching this glob (repeatable)")
	cmd.Flags().StringArrayVar(&t.fileRegexs, "file-regex", nil, "exclude files matching this regex (repeatable)")
}

func (t *target) layerFilter() (filter.Filters, error) {
	return buildFilters(t.layerGlobs, t.layerRegexs)
}

func (t *target) fileFilter() (filter.Filters, error) {
	return buildFilters(t.fileGlobs, t.fileRegexs)
}

func buildFilters(globs, regexes []string) (filter.Filters, error) {
	g, err := filter.ParseGlobs(globs)
	if err != nil {
		return filter.Filters{}, fmt.Errorf("cli: %w", err)
	}
	r, err := filter.ParseRegexes(regexes)
	if err != nil {
		return filter.Filters{}, fmt.Errorf("cli: %w", err)
	}
	return g.Union(r), nil
}

func (t *target) platformValue() (*ociref.Platform, error) {
	if t.platform == "" {
		return nil, nil
	}
	p, err := ociref.ParsePlatform(t.platform)
	if err != nil {
		return nil, fmt.Errorf("cli: %w", err)
	}
	return &p, nil
}

// resolve implements spec.md §6's strategy-fallback pattern: try tarball
// (when image names an existing local archive), then daemon, then
// registry, stopping at the first successful construction. If every
// eligible source fails to construct, the combined failures are reported.
//
// The returned io.Closer releases any owned temporary resources (the
// daemon source's exported tarball); it is a no-op for tarball and
// registry sources.
func resolve(ctx context.Context, cfg config.Config, image string, t *target) (source.Source, io.Closer, error) {
	layerFilter, err := t.layerFilter()
	if err != nil {
		return nil, nil, err
	}
	fileFilter, err := t.fileFilter()
	if err != nil {
		return nil, nil, err
	}

	var errs []string

	if info, statErr := os.Stat(image); statErr == nil && info.Mode().IsRegular() {
		src, err := tarball.New(image, image, layerFilter, fileFilter)
		if err == nil {
			return src, nopCloser{}, nil
		}
		errs = append(errs, fmt.Sprintf("tarball: %v", err))
	}

	if !cfg.DisableDaemon {
		src, err := daemon.New(ctx, image, layerFilter, fileFilter)
		if err == nil {
			return src, src, nil
		}
		errs = append(errs, fmt.Sprintf("daemon: %v", err))
	}

	if !cfg.DisableRegistry {
		platform, err := t.platformValue()
		if err != nil {
			return nil, nil, err
		}
		defaults := ociref.DefaultDefaults
		if cfg.DefaultBase != "" {
			defaults.Base = cfg.DefaultBase
		}
		if cfg.DefaultNamespace != "" {
			defaults.Namespace = cfg.DefaultNamespace
		}
		ref, err := ociref.Parse(image, defaults)
		if err != nil {
			errs = append(errs, fmt.Sprintf("registry: parse reference: %v", err))
		} else {
			regCfg := registry.Config{
				Platform:    platform,
				LayerFilter: layerFilter,
				FileFilter:  fileFilter,
			}
			if t.username != "" && t.password != "" {
				regCfg.Auth = authn.FromConfig(authn.AuthConfig{Username: t.username, Password: t.password})
			} else {
				regCfg.Keychain = ociauth.NewKeychain("")
			}
			src, err := registry.New(ctx, ref, regCfg)
			if err == nil {
				return src, nopCloser{}, nil
			}
			errs = append(errs, fmt.Sprintf("registry: %v", err))
			sylog.Warningf("registry: a failing pull can mean a missing tag rather than an auth problem")
		}
	}

	return nil, nil, fmt.Errorf("cli: no source could resolve %q:\n  %s", image, strings.Join(errs, "\n  "))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
