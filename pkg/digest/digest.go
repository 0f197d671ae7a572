// Package digest provides the content-addressed identifier used throughout
// circe to name blobs and manifests.
package digest

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Digest is an algorithm identifier paired with raw hash bytes. Its textual
// form is "algorithm:hex", e.g. "sha256:abc123...".
type Digest struct {
	Algorithm string
	Hash      []byte
}

// Parse parses a digest string of the form "algorithm:hex". It rejects an
// empty algorithm, empty hex, a missing separator, or non-hex characters.
func Parse(s string) (Digest, error) {
	alg, hex, ok := strings.Cut(s, ":")
	if !ok {
		return Digest{}, fmt.Errorf("digest %q: missing ':' separator", s)
	}
	if alg == "" {
		return Digest{}, fmt.Errorf("digest %q: empty algorithm", s)
	}
	if hex == "" {
		return Digest{}, fmt.Errorf("digest %q: empty hash", s)
	}
	return newFromHex(alg, hex)
}

// New builds a Digest from raw hash bytes under the given algorithm.
func New(algorithm string, hash []byte) (Digest, error) {
	if algorithm == "" {
		return Digest{}, fmt.Errorf("digest: empty algorithm")
	}
	if len(hash) == 0 {
		return Digest{}, fmt.Errorf("digest: empty hash")
	}
	out := make([]byte, len(hash))
	copy(out, hash)
	return Digest{Algorithm: algorithm, Hash: out}, nil
}

func newFromHex(algorithm, hexStr string) (Digest, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return Digest{}, fmt.Errorf("digest: invalid hex %q: %w", hexStr, err)
	}
	return New(algorithm, raw)
}

// String returns the canonical "algorithm:hex" textual form.
func (d Digest) String() string {
	return fmt.Sprintf("%s:%s", d.Algorithm, hex.EncodeToString(d.Hash))
}

// Hex returns the lowercase hex encoding of the hash bytes alone.
func (d Digest) Hex() string {
	return hex.EncodeToString(d.Hash)
}

// TarballFilename returns the filename form used inside docker-save style
// archives: "<hex>.tar".
func (d Digest) TarballFilename() string {
	return d.Hex() + ".tar"
}

// Equal reports structural equality between two digests.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && string(d.Hash) == string(other.Hash)
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d.Algorithm == "" && len(d.Hash) == 0
}
