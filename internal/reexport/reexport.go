// Package reexport bundles an already-resolved Source back into a
// `docker save`-shaped tarball: one tar entry per layer, a config blob, and
// a legacy manifest.json describing them. It is the external collaborator
// spec.md calls "the re-export bundler that assembles a downstream-
// consumable tarball" and is grounded on the original Rust implementation's
// bin/src/reexport.rs, which builds the same archive shape by hand with
// tokio_tar rather than through an image library — this package does the
// Go-idiomatic equivalent with archive/tar, since circe's own Source
// contract (not go-containerregistry's v1.Image) is what produces the
// layer bytes.
package reexport

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fossas/circe/pkg/digest"
	"github.com/fossas/circe/pkg/source"
	"github.com/fossas/circe/pkg/sylog"
)

// manifestEntry mirrors the legacy `docker save` manifest.json shape: one
// object naming the config blob, any repo tags, and the ordered list of
// layer tar filenames.
type manifestEntry struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags,omitempty"`
	Layers   []string `json:"Layers"`
}

// rootFS is the minimal OCI image config this bundler writes: just enough
// to name the layers that make up the filesystem, since circe doesn't
// retain the original image's full config JSON (spec.md's Non-goals
// exclude "modifying image config", and this repo never had it to begin
// with for a synthesized re-export).
type rootFS struct {
	Type    string   `json:"type"`
	DiffIDs []string `json:"diff_ids"`
}

type imageConfig struct {
	RootFS rootFS `json:"rootfs"`
}

// Write reads layers from src in order, writes each as a plain tar entry,
// and assembles a manifest.json plus a synthesized config blob, all inside
// outputPath. Foreign layers (no plain tarball available) are skipped with
// a warning, matching the Rust original's behavior.
func Write(src source.Source, layers []source.Layer, repoTag, outputPath string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("reexport: create %q: %w", outputPath, err)
	}
	defer out.Close()

	tw := tar.NewWriter(out)

	var written []digest.Digest
	for i, l := range layers {
		tmp, err := src.LayerPlainTarball(l)
		if err != nil {
			return fmt.Errorf("reexport: layer %d (%s): %w", i+1, l.Digest, err)
		}
		if tmp == nil {
			sylog.Warningf("reexport: layer %d (%s) has no plain tarball representation, skipping", i+1, l.Digest)
			continue
		}

		if err := appendFile(tw, l.Digest.TarballFilename(), tmp.File); err != nil {
			tmp.Close()
			return fmt.Errorf("reexport: add layer %s: %w", l.Digest, err)
		}
		tmp.Close()
		written = append(written, l.Digest)

		sylog.Infof("reexport: added layer %d/%d (%s)", i+1, len(layers), l.Digest)
	}

	imgDigest := src.Digest()
	configName := imgDigest.Hex() + ".json"

	diffIDs := make([]string, len(written))
	layerNames := make([]string, len(written))
	for i, d := range written {
		diffIDs[i] = d.String()
		layerNames[i] = d.TarballFilename()
	}

	cfg := imageConfig{RootFS: rootFS{Type: "layers", DiffIDs: diffIDs}}
	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("reexport: marshal config: %w", err)
	}
	if err := appendBytes(tw, configName, cfgBytes); err != nil {
		return fmt.Errorf("reexport: add config: %w", err)
	}

	var repoTags []string
	if repoTag != "" {
		repoTags = []string{repoTag}
	}
	manifest := []manifestEntry{{
		Config:   configName,
		RepoTags: repoTags,
		Layers:   layerNames,
	}}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("reexport: marshal manifest: %w", err)
	}
	if err := appendBytes(tw, "manifest.json", manifestBytes); err != nil {
		return fmt.Errorf("reexport: add manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("reexport: finalize tarball: %w", err)
	}
	return nil
}

// appendFile streams f's contents into tw rather than buffering the whole
// layer in memory: layers can run into the hundreds of megabytes.
func appendFile(tw *tar.Writer, name string, f *os.File) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: fi.Size(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

func appendBytes(tw *tar.Writer, name string, b []byte) error {
	hdr := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(b)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(b)
	return err
}
