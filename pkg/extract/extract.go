// Package extract implements the extraction orchestrator: it drives a
// Source through an ordered list of Strategy values, materializes each into
// its own target directory, and assembles the resulting Report, per
// spec.md §4.8.
package extract

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fossas/circe/pkg/digest"
	"github.com/fossas/circe/pkg/source"
)

// Strategy is either Squash(layers), which applies N layers in order into
// one target directory, or Separate(layer), which applies one layer into
// its own directory.
type Strategy struct {
	Layers []source.Layer
}

// Squash builds a Strategy that applies layers, in order, into one target
// directory.
func Squash(layers []source.Layer) Strategy { return Strategy{Layers: layers} }

// Separate builds a Strategy that applies a single layer into its own
// target directory.
func Separate(l source.Layer) Strategy { return Strategy{Layers: []source.Layer{l}} }

// Placement is one (layer digest, target directory) pair in a Report. The
// same directory can repeat across placements when several layers squash
// into it.
type Placement struct {
	Digest    digest.Digest
	Directory string
}

// Report is the manifest of an extraction run, persisted as image.json in
// the output directory per spec.md §3/§6.
type Report struct {
	Reference   string      `json:"reference"`
	ImageName   string      `json:"name"`
	ImageDigest string      `json:"digest"`
	Layers      []reportRow `json:"layers"`
}

type reportRow [2]string

// Placements reconstructs the Placement list from the report's layers rows.
func (r Report) Placements() ([]Placement, error) {
	out := make([]Placement, 0, len(r.Layers))
	for _, row := range r.Layers {
		d, err := digest.Parse(row[0])
		if err != nil {
			return nil, fmt.Errorf("extract: report: %w", err)
		}
		out = append(out, Placement{Digest: d, Directory: row[1]})
	}
	return out, nil
}

// Run drives src through strategies in order, applying each into a target
// directory under outputDir, and returns the accumulated placement list.
// Strategies never interleave and layers within one Squash are applied
// strictly in order, since later layers must overwrite earlier ones
// (spec.md §5).
func Run(src source.Source, outputDir string, strategies []Strategy) ([]Placement, error) {
	var placements []Placement

	for _, strat := range strategies {
		if len(strat.Layers) == 0 {
			return nil, fmt.Errorf("extract: strategy has zero layers")
		}

		target, err := targetDirName(strat.Layers)
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(outputDir, target)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("extract: create %q: %w", dir, err)
		}

		for _, l := range strat.Layers {
			if err := src.ApplyLayer(l, dir); err != nil {
				return nil, fmt.Errorf("extract: apply layer %s to %q: %w", l.Digest, dir, err)
			}
			placements = append(placements, Placement{Digest: l.Digest, Directory: target})
		}
	}

	return placements, nil
}

// targetDirName computes the directory name for one strategy's layer set,
// per spec.md §4.8: a single layer (whether Separate or a one-layer Squash)
// gets "si_<hex>"; a multi-layer Squash gets "sq_<hex>" where hex is the
// hash over the concatenation of every participating layer's raw hash
// bytes, in order.
func targetDirName(layers []source.Layer) (string, error) {
	if len(layers) == 0 {
		return "", fmt.Errorf("extract: squash of zero layers")
	}
	if len(layers) == 1 {
		return "si_" + layers[0].Digest.Hex(), nil
	}

	h := sha256.New()
	for _, l := range layers {
		h.Write(l.Digest.Hash)
	}
	d, err := digest.New("sha256", h.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	return "sq_" + d.Hex(), nil
}

// BuildReport assembles a Report from a resolved reference string, source
// identity, and the placements Run produced, in application order. ref is
// typically an ociref.Reference's String() form, but callers that couldn't
// parse the input as a registry reference (a tarball path, say) may pass the
// raw input through unchanged instead of forcing it into that shape.
func BuildReport(ref string, imageDigest digest.Digest, imageName string, placements []Placement) Report {
	rows := make([]reportRow, len(placements))
	for i, p := range placements {
		rows[i] = reportRow{p.Digest.String(), p.Directory}
	}
	return Report{
		Reference:   ref,
		ImageName:   imageName,
		ImageDigest: imageDigest.String(),
		Layers:      rows,
	}
}

// WriteReport marshals r as image.json in outputDir.
func WriteReport(r Report, outputDir string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("extract: marshal report: %w", err)
	}
	path := filepath.Join(outputDir, "image.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("extract: write %q: %w", path, err)
	}
	return nil
}

// PrepareOutputDir creates outputDir fresh, per overwrite policy: if it
// already exists and overwrite is false, this is an error; if overwrite is
// true, any existing content is removed first.
func PrepareOutputDir(outputDir string, overwrite bool) error {
	if _, err := os.Stat(outputDir); err == nil {
		if !overwrite {
			return fmt.Errorf("extract: %q already exists (pass --overwrite to replace it)", outputDir)
		}
		if err := os.RemoveAll(outputDir); err != nil {
			return fmt.Errorf("extract: remove existing %q: %w", outputDir, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("extract: stat %q: %w", outputDir, err)
	}
	return os.MkdirAll(outputDir, 0o755)
}
