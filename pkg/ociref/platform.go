package ociref

import (
	"fmt"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
)

// Platform identifies the OS/architecture (and optional variant) a layer's
// content targets, per spec.md §3.
type Platform struct {
	OS           string
	Architecture string
	Variant      string
	OSVersion    string
	OSFeatures   []string
}

// ParsePlatform parses "os/arch[/variant]". Empty components are rejected.
func ParsePlatform(s string) (Platform, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Platform{}, fmt.Errorf("platform %q: expected os/arch[/variant]", s)
	}
	for _, p := range parts {
		if p == "" {
			return Platform{}, fmt.Errorf("platform %q: empty component", s)
		}
	}
	p := Platform{OS: parts[0], Architecture: parts[1]}
	if len(parts) == 3 {
		p.Variant = parts[2]
	}
	return p, nil
}

// String formats back to "os/arch[/variant]"; ParsePlatform(p.String()) == p.
func (p Platform) String() string {
	if p.Variant == "" {
		return fmt.Sprintf("%s/%s", p.OS, p.Architecture)
	}
	return fmt.Sprintf("%s/%s/%s", p.OS, p.Architecture, p.Variant)
}

// PlatformFromGGCR converts from the go-containerregistry platform type.
func PlatformFromGGCR(gp v1.Platform) Platform {
	return Platform{
		OS:           gp.OS,
		Architecture: gp.Architecture,
		Variant:      gp.Variant,
		OSVersion:    gp.OSVersion,
		OSFeatures:   gp.OSFeatures,
	}
}

// Satisfies reports whether p matches want on OS and Architecture (and
// Variant, when want specifies one) — used by the registry source's
// explicit-platform selection path (spec.md §4.5).
func (p Platform) Satisfies(want Platform) bool {
	if p.OS != want.OS || p.Architecture != want.Architecture {
		return false
	}
	if want.Variant != "" && p.Variant != want.Variant {
		return false
	}
	return true
}
