// Package daemon implements the Source contract (pkg/source) against a
// local Docker-compatible daemon, per spec.md §4.7. It exports the named
// image to a temporary file via the daemon's export endpoint and delegates
// every other operation to pkg/source/tarball over that file.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"

	"github.com/fossas/circe/pkg/digest"
	"github.com/fossas/circe/pkg/filter"
	"github.com/fossas/circe/pkg/source"
	"github.com/fossas/circe/pkg/source/tarball"
	"github.com/fossas/circe/pkg/sylog"
	"github.com/fossas/circe/pkg/tarproc"
)

// Source exports an image from a local daemon into a temporary file, owned
// by this Source and removed on Close, then delegates every Source
// operation to an inner tarball.Source over that file.
type Source struct {
	exportPath string
	inner      *tarball.Source
}

// New locates reference among the daemon's image tags/digests (the daemon's
// local naming doesn't use fully-qualified references, so the match is
// against the raw string, per spec.md §4.7), exports it, and wraps the
// export in a tarball source.
func New(ctx context.Context, reference string, layerFilter, fileFilter filter.Filters) (*Source, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("daemon: connect: %w", err)
	}
	defer cli.Close()

	if err := matchImage(ctx, cli, reference); err != nil {
		return nil, err
	}

	exportPath, err := exportImage(ctx, cli, reference)
	if err != nil {
		return nil, err
	}

	inner, err := tarball.New(exportPath, reference, layerFilter, fileFilter)
	if err != nil {
		os.Remove(exportPath)
		return nil, fmt.Errorf("daemon: %w", err)
	}

	return &Source{exportPath: exportPath, inner: inner}, nil
}

// matchImage searches the daemon's image list for one whose tag or digest
// list contains reference verbatim.
func matchImage(ctx context.Context, cli *client.Client, reference string) error {
	images, err := cli.ImageList(ctx, types.ImageListOptions{All: true})
	if err != nil {
		return fmt.Errorf("daemon: list images: %w", err)
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == reference {
				return nil
			}
		}
		for _, d := range img.RepoDigests {
			if d == reference {
				return nil
			}
		}
	}
	return fmt.Errorf("daemon: no image matches %q", reference)
}

func exportImage(ctx context.Context, cli *client.Client, reference string) (string, error) {
	rc, err := cli.ImageSave(ctx, []string{reference})
	if err != nil {
		return "", fmt.Errorf("daemon: export %q: %w", reference, err)
	}
	defer rc.Close()

	f, err := os.CreateTemp("", "circe-daemon-export-*.tar")
	if err != nil {
		return "", fmt.Errorf("daemon: create export file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("daemon: write export: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("daemon: close export: %w", err)
	}
	return f.Name(), nil
}

// Close removes the temporary export file this Source owns.
func (s *Source) Close() error {
	if err := os.Remove(s.exportPath); err != nil && !os.IsNotExist(err) {
		sylog.Warningf("daemon: removing export %q: %v", s.exportPath, err)
		return err
	}
	return nil
}

func (s *Source) Digest() digest.Digest           { return s.inner.Digest() }
func (s *Source) Name() string                    { return s.inner.Name() }
func (s *Source) Layers() ([]source.Layer, error) { return s.inner.Layers() }

func (s *Source) ListFiles(l source.Layer) ([]string, error) {
	return s.inner.ListFiles(l)
}

func (s *Source) ApplyLayer(l source.Layer, dir string) error {
	return s.inner.ApplyLayer(l, dir)
}

func (s *Source) LayerPlainTarball(l source.Layer) (*tarproc.TempFile, error) {
	return s.inner.LayerPlainTarball(l)
}

func (s *Source) PullLayer(l source.Layer) (io.ReadCloser, error) {
	return s.inner.PullLayer(l)
}
