// Package tarball implements the Source contract (pkg/source) against a
// `docker save` archive, per spec.md §4.6. Docker save archives wrap the
// OCI content in nested index files; this package peels those layers by
// walking every entry and keeping the first one that parses as an OCI image
// manifest, rather than hunting for a specific file name.
package tarball

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	imagespec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/fossas/circe/pkg/digest"
	"github.com/fossas/circe/pkg/filter"
	"github.com/fossas/circe/pkg/mediatype"
	"github.com/fossas/circe/pkg/source"
	"github.com/fossas/circe/pkg/sylog"
	"github.com/fossas/circe/pkg/tarproc"
)

// maxManifestBytes bounds in-memory JSON parsing while peeling the archive
// for a manifest, per spec.md §4.2/§5.
const maxManifestBytes = 100 << 20

// Source reads a docker-save-shaped tarball, per spec.md §4.6.
type Source struct {
	path        string
	name        string
	digest      digest.Digest
	manifest    imagespec.Manifest
	layerFilter filter.Filters
	fileFilter  filter.Filters
}

// New validates archivePath exists, computes the image digest, and locates
// the archive's OCI manifest via the peel-walk described in spec.md §4.6.
func New(archivePath, name string, layerFilter, fileFilter filter.Filters) (*Source, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return nil, fmt.Errorf("tarball: %w", err)
	}

	d, err := computeDigest(archivePath)
	if err != nil {
		return nil, fmt.Errorf("tarball: compute digest: %w", err)
	}

	manifest, err := peelManifest(archivePath)
	if err != nil {
		return nil, fmt.Errorf("tarball: %w", err)
	}

	return &Source{
		path:        archivePath,
		name:        name,
		digest:      d,
		manifest:    manifest,
		layerFilter: layerFilter,
		fileFilter:  fileFilter,
	}, nil
}

// computeDigest searches the archive for index.json and uses its first
// listed manifest digest; if absent or malformed, falls back to a SHA-256
// over the whole archive, per spec.md §4.6.
func computeDigest(archivePath string) (digest.Digest, error) {
	if idx, err := readIndex(archivePath); err == nil && len(idx.Manifests) > 0 {
		if d, derr := digest.Parse(idx.Manifests[0].Digest.String()); derr == nil {
			return d, nil
		}
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return digest.Digest{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return digest.Digest{}, err
	}
	return digest.New("sha256", h.Sum(nil))
}

func readIndex(archivePath string) (imagespec.Index, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return imagespec.Index{}, err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return imagespec.Index{}, fmt.Errorf("no index.json entry found")
		}
		if err != nil {
			return imagespec.Index{}, err
		}
		if hdr.Name != "index.json" && !strings.HasSuffix(hdr.Name, "/index.json") {
			continue
		}
		var idx imagespec.Index
		dec := json.NewDecoder(io.LimitReader(tr, maxManifestBytes))
		if err := dec.Decode(&idx); err != nil {
			return imagespec.Index{}, fmt.Errorf("parse index.json: %w", err)
		}
		return idx, nil
	}
}

// peelManifest walks every entry in the archive, attempting to parse each
// as an OCI image manifest; the first entry whose content parses with a
// non-empty Layers list wins. Subsequent successful parses are logged, not
// erroring, since which manifest is "the" one is ambiguous when a tarball
// nests more than one (spec.md §9 open question 4; first-wins is the
// adopted resolution).
func peelManifest(archivePath string) (imagespec.Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return imagespec.Manifest{}, err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	var found imagespec.Manifest
	haveFound := false

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imagespec.Manifest{}, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		var m imagespec.Manifest
		dec := json.NewDecoder(io.LimitReader(tr, maxManifestBytes))
		if err := dec.Decode(&m); err != nil {
			continue
		}
		if len(m.Layers) == 0 {
			continue
		}

		if !haveFound {
			found = m
			haveFound = true
		} else {
			sylog.Warningf("tarball: %s: entry %q also parses as an OCI manifest; ignoring in favor of the first found", archivePath, hdr.Name)
		}
	}

	if !haveFound {
		return imagespec.Manifest{}, fmt.Errorf("no OCI manifest found in %q", archivePath)
	}
	return found, nil
}

func (s *Source) Digest() digest.Digest { return s.digest }
func (s *Source) Name() string          { return s.name }

// Layers returns the manifest's layers in order, with the source's layer
// filter excluding matches (spec.md §4.6's "same exclude semantics as the
// registry").
func (s *Source) Layers() ([]source.Layer, error) {
	layers := make([]source.Layer, 0, len(s.manifest.Layers))
	for _, desc := range s.manifest.Layers {
		d, err := digest.Parse(desc.Digest.String())
		if err != nil {
			return nil, fmt.Errorf("tarball: layer digest: %w", err)
		}
		mt, err := mediatype.Parse(string(desc.MediaType))
		if err != nil {
			sniffed, serr := s.sniffLayerMediaType(d)
			if serr != nil {
				return nil, fmt.Errorf("tarball: layer %s: media type %q: %w", d, desc.MediaType, err)
			}
			sylog.Warningf("tarball: layer %s: media type %q unrecognized, using sniffed %s", d, desc.MediaType, sniffed)
			mt = sniffed
		}
		if s.layerFilter.ExcludesLayer(d.String()) {
			continue
		}
		layers = append(layers, source.Layer{Digest: d, Size: desc.Size, MediaType: mt})
	}
	return layers, nil
}

// PullLayer scans the archive for an entry whose path ends with l.Digest's
// hex and returns a reader over its content. The archive is reopened for
// each call since it is read serially and does not support cheap random
// access (spec.md §4.6/§5).
func (s *Source) PullLayer(l source.Layer) (io.ReadCloser, error) {
	digestHex := l.Digest.Hex()
	rc, err := tarproc.ExtractFile(s.path, func(name string) bool {
		return strings.HasSuffix(name, digestHex) || strings.HasSuffix(name, digestHex+".tar")
	})
	if err != nil {
		return nil, fmt.Errorf("tarball: pull %s: %w", l.Digest, err)
	}
	return rc, nil
}

// sniffLayerMediaType is the Layers fallback for an entry whose recorded
// media type string didn't parse: it pulls the blob's first few bytes and
// guesses its compression via SniffMediaType.
func (s *Source) sniffLayerMediaType(d digest.Digest) (mediatype.LayerMediaType, error) {
	rc, err := tarproc.ExtractFile(s.path, func(name string) bool {
		return strings.HasSuffix(name, d.Hex()) || strings.HasSuffix(name, d.Hex()+".tar")
	})
	if err != nil {
		return mediatype.LayerMediaType{}, err
	}
	defer rc.Close()

	peek := make([]byte, 4)
	n, err := io.ReadFull(rc, peek)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return mediatype.LayerMediaType{}, err
	}
	return SniffMediaType(peek[:n]), nil
}

func (s *Source) ListFiles(l source.Layer) ([]string, error) {
	blob, err := s.PullLayer(l)
	if err != nil {
		return nil, err
	}
	return source.ListFiles(blob, l)
}

func (s *Source) ApplyLayer(l source.Layer, dir string) error {
	blob, err := s.PullLayer(l)
	if err != nil {
		return err
	}
	return source.ApplyLayer(blob, l, dir, s.fileFilter)
}

func (s *Source) LayerPlainTarball(l source.Layer) (*tarproc.TempFile, error) {
	blob, err := s.PullLayer(l)
	if err != nil {
		return nil, err
	}
	return source.LayerPlainTarball(blob, l)
}

// SniffMediaType inspects the first bytes of a blob to guess its
// compression when the manifest's recorded media type is missing or
// ambiguous, per spec.md §4.6's optional content-sniffing hardening.
func SniffMediaType(peek []byte) mediatype.LayerMediaType {
	switch {
	case len(peek) >= 2 && peek[0] == 0x1F && peek[1] == 0x8B:
		return mediatype.LayerMediaType{Flags: []mediatype.Flag{mediatype.Gzip}}
	case len(peek) >= 4 && peek[0] == 0x28 && peek[1] == 0xB5 && peek[2] == 0x2F && peek[3] == 0xFD:
		return mediatype.LayerMediaType{Flags: []mediatype.Flag{mediatype.Zstd}}
	default:
		return mediatype.LayerMediaType{}
	}
}
