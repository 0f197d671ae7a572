// Package source defines the Layer descriptor and the Source contract that
// circe's three concrete sources (registry, tarball, daemon) implement, per
// spec.md §3/§4.4. It also holds the decode-and-dispatch helper shared by
// all three: given a raw blob stream and a Layer, pick the transform chain
// its media type dictates and hand the decoded tar stream to whichever
// pkg/tarproc operation the caller asked for.
package source

import (
	"fmt"
	"io"

	"github.com/fossas/circe/pkg/digest"
	"github.com/fossas/circe/pkg/filter"
	"github.com/fossas/circe/pkg/mediatype"
	"github.com/fossas/circe/pkg/tarproc"
	"github.com/fossas/circe/pkg/transform"
)

// Layer is a content-addressed layer descriptor. It is displayed as its
// digest and cloned freely as an immutable value.
type Layer struct {
	Digest    digest.Digest
	Size      int64
	MediaType mediatype.LayerMediaType
}

func (l Layer) String() string { return l.Digest.String() }

// Source is the polymorphic contract spec.md §4.4 assigns to the registry,
// tarball, and daemon sources: one interface, three very different
// transports underneath.
type Source interface {
	// Digest identifies the image's content; stable across calls.
	Digest() digest.Digest
	// Name is a human-readable identifier, e.g. "library/ubuntu".
	Name() string
	// Layers returns the image's layers in base-to-application order,
	// filtered by the source's layer filter.
	Layers() ([]Layer, error)
	// PullLayer returns the layer's raw blob bytes as the source transports
	// them, still compressed per its media type. The caller owns the
	// returned ReadCloser.
	PullLayer(l Layer) (io.ReadCloser, error)
	// ListFiles returns the decoded tar's entry paths, or nil for a
	// foreign layer.
	ListFiles(l Layer) ([]string, error)
	// ApplyLayer unpacks the layer's changeset into dir, per pkg/tarproc's
	// overlay semantics. A foreign layer is a no-op.
	ApplyLayer(l Layer, dir string) error
	// LayerPlainTarball fully decompresses the layer to a temp file and
	// returns it, or nil for a foreign layer. The caller owns the
	// returned file and must Close it to release the backing storage.
	LayerPlainTarball(l Layer) (*tarproc.TempFile, error)
}

// Decode opens blob through the transform chain l.MediaType's flags dictate
// and returns the resulting plain tar stream, or (nil, nil) if the layer is
// foreign (spec.md §4.3's "skip foreign layers entirely" policy). The
// returned Decoder must be closed by the caller; blob is closed here on the
// foreign and error paths only, since otherwise its lifetime is now owned by
// the returned Decoder (closing it also closes blob).
func Decode(blob io.ReadCloser, l Layer) (transform.Decoder, error) {
	if l.MediaType.IsForeign() {
		blob.Close()
		return nil, nil
	}
	dec, err := transform.Sequence(blob, l.MediaType.Flags)
	if err != nil {
		blob.Close()
		return nil, fmt.Errorf("source: decode %s: %w", l.Digest, err)
	}
	return decoderClosingBlob{Decoder: dec, blob: blob}, nil
}

// decoderClosingBlob closes the underlying blob stream once the decompressor
// chain built on top of it is itself closed, so callers only need to manage
// one Closer.
type decoderClosingBlob struct {
	transform.Decoder
	blob io.Closer
}

func (d decoderClosingBlob) Close() error {
	derr := d.Decoder.Close()
	berr := d.blob.Close()
	if derr != nil {
		return derr
	}
	return berr
}

// ListFiles is the shared ListFiles implementation: decode blob per l's
// media type and enumerate the resulting tar. Returns nil, nil for a
// foreign layer.
func ListFiles(blob io.ReadCloser, l Layer) ([]string, error) {
	dec, err := Decode(blob, l)
	if err != nil {
		return nil, err
	}
	if dec == nil {
		return nil, nil
	}
	defer dec.Close()
	return tarproc.Enumerate(dec)
}

// ApplyLayer is the shared ApplyLayer implementation: decode blob per l's
// media type and apply the resulting tar to dir. A foreign layer is a no-op.
func ApplyLayer(blob io.ReadCloser, l Layer, dir string, fileFilter filter.Filters) error {
	dec, err := Decode(blob, l)
	if err != nil {
		return err
	}
	if dec == nil {
		return nil
	}
	defer dec.Close()
	return tarproc.Apply(dec, dir, fileFilter)
}

// LayerPlainTarball is the shared LayerPlainTarball implementation: decode
// blob per l's media type and sink the result to a temp file. Returns nil,
// nil for a foreign layer.
func LayerPlainTarball(blob io.ReadCloser, l Layer) (*tarproc.TempFile, error) {
	dec, err := Decode(blob, l)
	if err != nil {
		return nil, err
	}
	if dec == nil {
		return nil, nil
	}
	defer dec.Close()
	return tarproc.SinkToTemp(dec)
}
