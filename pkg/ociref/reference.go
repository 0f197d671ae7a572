// Package ociref implements the structured image reference used by circe's
// sources: (host, namespace, name, version), per spec.md §3.
package ociref

import (
	"fmt"
	"strings"

	"github.com/fossas/circe/pkg/digest"
)

// Version is either a tag or a digest. Exactly one of Tag/Digest is set;
// IsDigest reports which.
type Version struct {
	Tag      string
	Digest   digest.Digest
	isDigest bool
}

// DefaultTag is the conventional default tag when a reference names neither
// a tag nor a digest.
const DefaultTag = "latest"

// TagVersion builds a tag-flavored Version.
func TagVersion(tag string) Version { return Version{Tag: tag} }

// DigestVersion builds a digest-flavored Version.
func DigestVersion(d digest.Digest) Version { return Version{Digest: d, isDigest: true} }

// IsDigest reports whether this Version pins a digest rather than a tag.
func (v Version) IsDigest() bool { return v.isDigest }

// String renders ":tag" or "@algorithm:hex".
func (v Version) String() string {
	if v.isDigest {
		return "@" + v.Digest.String()
	}
	return ":" + v.Tag
}

// Reference is a fully-qualified image reference: host/namespace/name[:tag|@digest].
type Reference struct {
	Host      string
	Namespace string
	Name      string
	Version   Version
}

// Defaults carries the two overridable expansion defaults from spec.md §6
// (CIRCE_DEFAULT_BASE / CIRCE_DEFAULT_NAMESPACE). Threaded explicitly into
// Parse rather than read from process-global state, per spec.md §9.
type Defaults struct {
	Base      string
	Namespace string
}

// DefaultDefaults mirrors Docker Hub's conventional expansion.
var DefaultDefaults = Defaults{Base: "docker.io", Namespace: "library"}

// Parse parses a textual reference, expanding short forms per spec.md §3:
//
//   - a bare name expands to "{base}/{namespace}/name"
//   - "a/b" expands to "{base}/a/b", unless a equals the configured base, in
//     which case a is itself the host and the configured namespace is used
//   - "host/ns/a/b/c" keeps the full tail "a/b/c" as a multi-segment name
func Parse(s string, d Defaults) (Reference, error) {
	if s == "" {
		return Reference{}, fmt.Errorf("reference: empty string")
	}

	path, version, err := splitVersion(s)
	if err != nil {
		return Reference{}, fmt.Errorf("reference %q: %w", s, err)
	}

	segments := strings.Split(path, "/")
	for _, seg := range segments {
		if seg == "" {
			return Reference{}, fmt.Errorf("reference %q: empty path segment", s)
		}
	}

	var ref Reference
	switch len(segments) {
	case 1:
		ref = Reference{Host: d.Base, Namespace: d.Namespace, Name: segments[0]}
	case 2:
		if segments[0] == d.Base {
			ref = Reference{Host: segments[0], Namespace: d.Namespace, Name: segments[1]}
		} else {
			ref = Reference{Host: d.Base, Namespace: segments[0], Name: segments[1]}
		}
	default:
		ref = Reference{Host: segments[0], Namespace: segments[1], Name: strings.Join(segments[2:], "/")}
	}
	ref.Version = version

	if ref.Host == "" || ref.Namespace == "" || ref.Name == "" {
		return Reference{}, fmt.Errorf("reference %q: host, namespace, and name must be non-empty", s)
	}

	return ref, nil
}

// splitVersion splits "path[:tag|@digest]" into the path and a Version,
// defaulting to DefaultTag when neither is present. A digest ("@...") is
// recognized by the last "@" in the string, since "@" never appears in a
// host or path segment. A tag is recognized by the last ":" only when it
// occurs after the last "/", so that a host:port prefix (e.g.
// "localhost:5000/name") is not mistaken for a tag.
func splitVersion(s string) (path string, v Version, err error) {
	if idx := strings.LastIndex(s, "@"); idx >= 0 {
		d, derr := digest.Parse(s[idx+1:])
		if derr != nil {
			return "", Version{}, fmt.Errorf("invalid digest: %w", derr)
		}
		return s[:idx], DigestVersion(d), nil
	}

	lastSlash := strings.LastIndex(s, "/")
	lastColon := strings.LastIndex(s, ":")
	if lastColon > lastSlash {
		tag := s[lastColon+1:]
		if tag == "" {
			return "", Version{}, fmt.Errorf("empty tag")
		}
		return s[:lastColon], TagVersion(tag), nil
	}

	return s, TagVersion(DefaultTag), nil
}

// String renders the canonical textual form; Parse(r.String(), d) == r for
// any Defaults d equal to the ones r was parsed with (round-trip only holds
// for the fully-qualified form, since short-form expansion is lossy by
// design).
func (r Reference) String() string {
	return fmt.Sprintf("%s/%s/%s%s", r.Host, r.Namespace, r.Name, r.Version.String())
}
