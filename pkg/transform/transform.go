// Package transform implements the decompression pipeline applied to a
// layer's raw blob before it reaches pkg/tarproc, per spec.md §4.1. A layer's
// media type (pkg/mediatype) carries zero or more flags describing the
// stacked encodings a blob was written with; Sequence builds the matching
// chain of io.Readers.
package transform

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/fossas/circe/pkg/mediatype"
)

// Decoder wraps a layer of decompression around an underlying reader. Close
// releases any resources the decoder itself allocated (e.g. a zstd decoder's
// background goroutines); it does not close the underlying reader.
type Decoder interface {
	io.Reader
	io.Closer
}

// identity passes bytes through unchanged; Close is a no-op.
type identity struct {
	io.Reader
}

func (identity) Close() error { return nil }

// gzipDecoder adapts *gzip.Reader to Decoder.
type gzipDecoder struct {
	*gzip.Reader
}

// zstdDecoder adapts *zstd.Decoder to Decoder; zstd.Decoder.Close returns
// nothing, so Close always reports nil.
type zstdDecoder struct {
	*zstd.Decoder
}

func (z zstdDecoder) Close() error {
	z.Decoder.Close()
	return nil
}

// newGzip constructs a gzip decoder over r.
func newGzip(r io.Reader) (Decoder, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("transform: gzip: %w", err)
	}
	return gzipDecoder{gz}, nil
}

// newZstd constructs a zstd decoder over r.
func newZstd(r io.Reader) (Decoder, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("transform: zstd: %w", err)
	}
	return zstdDecoder{dec}, nil
}

// Sequence builds the Decoder chain for a layer's media type flags. Flags
// are applied in the order the media type lists them, outermost first: each
// decoding flag wraps the decoder built for the flags before it. Two flags
// are recognized for decoding purposes: Gzip and Zstd. Foreign carries no
// decoding behavior of its own — it only marks the layer as one pkg/source
// must skip rather than apply (spec.md §4.5) — so it is ignored here.
//
// With zero applicable flags, Sequence returns an identity Decoder over r;
// with exactly one, it returns that flag's decoder itself. Only sequences of
// two or more decoding flags go through chain.
func Sequence(r io.Reader, flags []mediatype.Flag) (Decoder, error) {
	cur := r
	var closers []io.Closer

	for _, f := range flags {
		switch f {
		case mediatype.Gzip:
			d, err := newGzip(cur)
			if err != nil {
				closeAll(closers)
				return nil, err
			}
			closers = append(closers, d)
			cur = d
		case mediatype.Zstd:
			d, err := newZstd(cur)
			if err != nil {
				closeAll(closers)
				return nil, err
			}
			closers = append(closers, d)
			cur = d
		case mediatype.Foreign:
			// no decoding behavior; handled by the caller before layer application.
		default:
			closeAll(closers)
			return nil, fmt.Errorf("transform: unsupported flag %v", f)
		}
	}

	switch len(closers) {
	case 0:
		return identity{cur}, nil
	case 1:
		return cur.(Decoder), nil
	}
	return &chain{Reader: cur, closers: closers}, nil
}

// chain is the Decoder returned for a multi-stage sequence; Close closes
// every stage in reverse order (innermost first), matching how each stage's
// Close may depend on having fully drained its own reader.
type chain struct {
	io.Reader
	closers []io.Closer
}

func (c *chain) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if cerr := c.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
