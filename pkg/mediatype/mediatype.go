// Package mediatype parses OCI/Docker layer media-type strings into a base
// type plus an ordered set of transform flags, per spec.md §3/§4.3.
package mediatype

import (
	"fmt"
	"strings"
)

// Flag names a transform that must be applied to a layer blob before it is
// a valid tar stream, or (for Foreign) that the blob isn't stored at all.
type Flag int

const (
	Gzip Flag = iota
	Zstd
	Foreign
)

func (f Flag) String() string {
	switch f {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case Foreign:
		return "foreign"
	default:
		return "unknown"
	}
}

const (
	ociTarBase        = "application/vnd.oci.image.layer.v1.tar"
	ociNondistBase    = "application/vnd.oci.image.layer.nondistributable.v1.tar"
	dockerDiffGzip    = "application/vnd.docker.image.rootfs.diff.tar.gzip"
	dockerForeignGzip = "application/vnd.docker.image.rootfs.foreign.diff.tar.gzip"
)

// LayerMediaType is the only base type this package recognizes (the OCI tar
// layer) plus an ordered list of transform flags.
type LayerMediaType struct {
	Flags []Flag
}

// Parse parses a canonical OCI layer media type, or one of the legacy
// Docker types, which are mapped into the OCI flag space per spec.md §3.
func Parse(s string) (LayerMediaType, error) {
	switch s {
	case dockerDiffGzip:
		return LayerMediaType{Flags: []Flag{Gzip}}, nil
	case dockerForeignGzip:
		return LayerMediaType{Flags: []Flag{Gzip, Foreign}}, nil
	}

	head, tail, hasTail := strings.Cut(s, "+")

	base := head
	if base != ociTarBase && base != ociNondistBase {
		return LayerMediaType{}, fmt.Errorf("mediatype %q: unrecognized base type %q", s, head)
	}

	var flags []Flag
	if hasTail {
		for _, seg := range strings.Split(tail, "+") {
			flag, err := parseFlag(seg)
			if err != nil {
				return LayerMediaType{}, fmt.Errorf("mediatype %q: %w", s, err)
			}
			flags = append(flags, flag)
		}
	}

	return LayerMediaType{Flags: flags}, nil
}

func parseFlag(s string) (Flag, error) {
	switch s {
	case "gzip":
		return Gzip, nil
	case "zstd":
		return Zstd, nil
	case "foreign":
		return Foreign, nil
	default:
		return 0, fmt.Errorf("unknown flag %q", s)
	}
}

// String formats back to the canonical OCI form; Parse(m.String()) == m.
func (m LayerMediaType) String() string {
	var b strings.Builder
	b.WriteString(ociTarBase)
	for _, f := range m.Flags {
		b.WriteString("+")
		b.WriteString(f.String())
	}
	return b.String()
}

// HasFlag reports whether m carries the given flag.
func (m LayerMediaType) HasFlag(f Flag) bool {
	for _, have := range m.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// IsForeign reports whether the registry does not store this blob, per
// spec.md §4.3: the core's policy is to skip foreign layers entirely.
func (m LayerMediaType) IsForeign() bool {
	return m.HasFlag(Foreign)
}
