// Package registry implements the Source contract (pkg/source) against the
// OCI Distribution protocol, per spec.md §4.5. It builds on
// google/go-containerregistry's remote package rather than reimplementing
// manifest/index resolution and the registry auth-challenge flow.
package registry

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/fossas/circe/pkg/digest"
	"github.com/fossas/circe/pkg/filter"
	"github.com/fossas/circe/pkg/mediatype"
	"github.com/fossas/circe/pkg/ociref"
	"github.com/fossas/circe/pkg/source"
	"github.com/fossas/circe/pkg/tarproc"
)

// Config carries the optional inputs to New, per spec.md §4.5's
// "(reference, optional platform, optional credentials, optional layer/file
// filters)" constructor shape.
type Config struct {
	// Platform, when set, is matched against candidate manifests in a
	// multi-arch index (first match on OS and architecture, and on variant
	// when Platform names one, wins). When nil, the
	// priority search in selectManifest runs instead.
	Platform *ociref.Platform
	// Keychain resolves credentials per registry host. Defaults to
	// authn.Anonymous if both this and Auth are left unset; callers
	// normally pass internal/ociauth's docker-config-backed keychain.
	Keychain authn.Keychain
	// Auth, when set, is used directly instead of consulting Keychain.
	Auth          authn.Authenticator
	LayerFilter   filter.Filters
	FileFilter    filter.Filters
	RemoteOptions []remote.Option
}

func (c Config) options(ctx context.Context) []remote.Option {
	opts := append([]remote.Option{remote.WithContext(ctx)}, c.RemoteOptions...)
	switch {
	case c.Auth != nil:
		opts = append(opts, remote.WithAuth(c.Auth))
	case c.Keychain != nil:
		opts = append(opts, remote.WithAuthFromKeychain(c.Keychain))
	}
	return opts
}

// Source talks the OCI distribution protocol for one resolved image.
type Source struct {
	ref         name.Reference
	img         v1.Image
	digest      digest.Digest
	name        string
	layerFilter filter.Filters
	fileFilter  filter.Filters
}

// New resolves ref against the registry, authenticates for pull scope, and
// selects a platform-specific manifest if ref names a multi-arch index.
// Authentication failure is fatal, per spec.md §4.5 — there is no anonymous
// retry once a credentialed attempt has been made.
func New(ctx context.Context, ref ociref.Reference, cfg Config) (*Source, error) {
	nref, err := name.ParseReference(ref.String())
	if err != nil {
		return nil, fmt.Errorf("registry: parse reference %q: %w", ref.String(), err)
	}

	opts := cfg.options(ctx)

	desc, err := remote.Get(nref, opts...)
	if err != nil {
		return nil, fmt.Errorf("registry: resolve %q: %w", ref.String(), err)
	}

	resolvedRef := nref
	if desc.MediaType.IsIndex() {
		idx, err := desc.ImageIndex()
		if err != nil {
			return nil, fmt.Errorf("registry: read index for %q: %w", ref.String(), err)
		}
		im, err := idx.IndexManifest()
		if err != nil {
			return nil, fmt.Errorf("registry: read index manifest for %q: %w", ref.String(), err)
		}
		chosen, err := selectManifest(im.Manifests, cfg.Platform)
		if err != nil {
			return nil, fmt.Errorf("registry: %q: %w", ref.String(), err)
		}
		resolvedRef = nref.Context().Digest(chosen.Digest.String())
		desc, err = remote.Get(resolvedRef, opts...)
		if err != nil {
			return nil, fmt.Errorf("registry: fetch platform manifest %s: %w", chosen.Digest, err)
		}
	}

	img, err := desc.Image()
	if err != nil {
		return nil, fmt.Errorf("registry: read image manifest for %q: %w", ref.String(), err)
	}

	d, err := digest.Parse(desc.Digest.String())
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	return &Source{
		ref:         resolvedRef,
		img:         img,
		digest:      d,
		name:        fmt.Sprintf("%s/%s", ref.Namespace, ref.Name),
		layerFilter: cfg.LayerFilter,
		fileFilter:  cfg.FileFilter,
	}, nil
}

// selectManifest implements spec.md §4.5's platform-priority search. When
// platform is non-nil, the first candidate matching both OS and
// architecture (and variant, when platform names one) wins. Otherwise candidates are ranked by lowestPriority:
// platform-independent entries first, then the current process's OS/arch,
// then linux on the current arch, then linux/amd64, then simply the first
// entry.
func selectManifest(candidates []v1.Descriptor, platform *ociref.Platform) (v1.Descriptor, error) {
	if len(candidates) == 0 {
		return v1.Descriptor{}, fmt.Errorf("index has no manifests")
	}

	if platform != nil {
		for _, c := range candidates {
			if c.Platform == nil {
				continue
			}
			cp := ociref.PlatformFromGGCR(*c.Platform)
			if cp.Satisfies(*platform) {
				return c, nil
			}
		}
		return v1.Descriptor{}, fmt.Errorf("no manifest matches platform %s", platform)
	}

	hostOS, hostArch := currentOSArch()
	idx := lowestPriority(candidates, func(c v1.Descriptor) int {
		switch {
		case c.Platform == nil:
			return 0
		case c.Platform.OS == hostOS && c.Platform.Architecture == hostArch:
			return 1
		case c.Platform.OS == "linux" && c.Platform.Architecture == hostArch:
			return 2
		case c.Platform.OS == "linux" && c.Platform.Architecture == "amd64":
			return 3
		default:
			return 4
		}
	})
	return candidates[idx], nil
}

// lowestPriority returns the index of the candidate with the lowest
// priority score, short-circuiting as soon as a priority-0 candidate is
// seen and otherwise breaking ties by input order. This generalizes the
// platform-selection rule of spec.md §4.5 to any ranked-candidate search.
func lowestPriority[T any](candidates []T, priority func(T) int) int {
	best := 0
	bestScore := priority(candidates[0])
	for i := 1; i < len(candidates) && bestScore != 0; i++ {
		if s := priority(candidates[i]); s < bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func (s *Source) Digest() digest.Digest { return s.digest }
func (s *Source) Name() string          { return s.name }

// Layers returns the manifest's layers in manifest order (base-to-
// application), with the source's layer filter excluding matches. Foreign
// layers remain in the list; they are dropped later, when applied.
func (s *Source) Layers() ([]source.Layer, error) {
	ggcrLayers, err := s.img.Layers()
	if err != nil {
		return nil, fmt.Errorf("registry: read layers: %w", err)
	}

	layers := make([]source.Layer, 0, len(ggcrLayers))
	for _, gl := range ggcrLayers {
		l, err := toLayer(gl)
		if err != nil {
			return nil, err
		}
		if s.layerFilter.ExcludesLayer(l.Digest.String()) {
			continue
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func toLayer(gl v1.Layer) (source.Layer, error) {
	h, err := gl.Digest()
	if err != nil {
		return source.Layer{}, fmt.Errorf("registry: layer digest: %w", err)
	}
	d, err := digest.Parse(h.String())
	if err != nil {
		return source.Layer{}, fmt.Errorf("registry: %w", err)
	}
	mtRaw, err := gl.MediaType()
	if err != nil {
		return source.Layer{}, fmt.Errorf("registry: layer media type: %w", err)
	}
	mt, err := mediatype.Parse(string(mtRaw))
	if err != nil {
		return source.Layer{}, fmt.Errorf("registry: layer %s: %w", d, err)
	}
	size, err := gl.Size()
	if err != nil {
		return source.Layer{}, fmt.Errorf("registry: layer size: %w", err)
	}
	return source.Layer{Digest: d, Size: size, MediaType: mt}, nil
}

func (s *Source) layerByDigest(l source.Layer) (v1.Layer, error) {
	gl, err := s.img.LayerByDigest(v1.Hash{Algorithm: l.Digest.Algorithm, Hex: l.Digest.Hex()})
	if err != nil {
		return nil, fmt.Errorf("registry: layer %s: %w", l.Digest, err)
	}
	return gl, nil
}

// PullLayer opens a streaming blob fetch for l's compressed content.
func (s *Source) PullLayer(l source.Layer) (io.ReadCloser, error) {
	gl, err := s.layerByDigest(l)
	if err != nil {
		return nil, err
	}
	rc, err := gl.Compressed()
	if err != nil {
		return nil, fmt.Errorf("registry: pull %s: %w", l.Digest, err)
	}
	return rc, nil
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

func currentOSArch() (string, string) {
	return runtime.GOOS, runtime.GOARCH
}
