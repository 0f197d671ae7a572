// Package filter implements the glob/regex predicate engine used to exclude
// layers and files, per spec.md §4.9. A Filters value is a set of Filters;
// the zero value (Filters{}) is the empty set and therefore matches nothing,
// per spec.md §4.9's empty-set semantics — callers apply that as "excludes
// nothing" for both layer and file filters (spec.md §9's resolved polarity).
package filter

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter is a single compiled predicate: a glob or a regex.
type Filter struct {
	raw   string
	isRE  bool
	re    *regexp.Regexp
	glob  string
}

// ParseGlob compiles s as a doublestar glob pattern ("**" matches across path
// separators, unlike path/filepath.Match).
func ParseGlob(s string) (Filter, error) {
	if _, err := doublestar.Match(s, ""); err != nil {
		return Filter{}, fmt.Errorf("filter: invalid glob %q: %w", s, err)
	}
	return Filter{raw: s, glob: s}, nil
}

// ParseRegex compiles s as a regular expression.
func ParseRegex(s string) (Filter, error) {
	re, err := regexp.Compile(s)
	if err != nil {
		return Filter{}, fmt.Errorf("filter: invalid regex %q: %w", s, err)
	}
	return Filter{raw: s, isRE: true, re: re}, nil
}

// Matches reports whether this Filter matches value. Non-UTF-8 bytes in
// value are not specially decoded here; callers that read such values from
// tar headers are expected to have already substituted U+FFFD per spec.md
// §4.9 before calling in, via Sanitize.
func (f Filter) Matches(value string) bool {
	if f.isRE {
		return f.re.MatchString(value)
	}
	ok, _ := doublestar.Match(f.glob, value)
	return ok
}

func (f Filter) String() string { return f.raw }

// Filters is a set of Filter values, summable by +-like union (Union/Add).
type Filters struct {
	items []Filter
}

// ParseGlobs builds a Filters value from a list of glob patterns.
func ParseGlobs(patterns []string) (Filters, error) {
	var fs Filters
	for _, p := range patterns {
		f, err := ParseGlob(p)
		if err != nil {
			return Filters{}, err
		}
		fs.items = append(fs.items, f)
	}
	return fs, nil
}

// ParseRegexes builds a Filters value from a list of regex patterns.
func ParseRegexes(patterns []string) (Filters, error) {
	var fs Filters
	for _, p := range patterns {
		f, err := ParseRegex(p)
		if err != nil {
			return Filters{}, err
		}
		fs.items = append(fs.items, f)
	}
	return fs, nil
}

// Union returns the set union of fs and other.
func (fs Filters) Union(other Filters) Filters {
	out := Filters{items: make([]Filter, 0, len(fs.items)+len(other.items))}
	out.items = append(out.items, fs.items...)
	out.items = append(out.items, other.items...)
	return out
}

// Add returns fs with f unioned in.
func (fs Filters) Add(f Filter) Filters {
	out := Filters{items: make([]Filter, 0, len(fs.items)+1)}
	out.items = append(out.items, fs.items...)
	out.items = append(out.items, f)
	return out
}

// Empty reports whether the set has no members.
func (fs Filters) Empty() bool { return len(fs.items) == 0 }

// MatchesAny reports whether any filter in the set matches value. An empty
// set matches nothing — per spec.md §4.9, what an empty result means
// ("excludes nothing") is the caller's responsibility, not this predicate's.
func (fs Filters) MatchesAny(value string) bool {
	for _, f := range fs.items {
		if f.Matches(value) {
			return true
		}
	}
	return false
}

// ExcludesLayer reports whether digestString should be dropped from a
// layer() listing: a layer is excluded iff the set is non-empty and some
// filter in it matches the digest string (spec.md §4.5/§9).
func (fs Filters) ExcludesLayer(digestString string) bool {
	return fs.MatchesAny(digestString)
}

// ExcludesFile reports whether path should be skipped by the tar processor:
// a file is excluded iff the set is non-empty and some filter in it matches
// the path (spec.md §9's resolved polarity — both layer and file filters
// exclude on match).
func (fs Filters) ExcludesFile(path string) bool {
	return fs.MatchesAny(Sanitize(path))
}

// Sanitize replaces invalid UTF-8 byte sequences in s with U+FFFD, per
// spec.md §4.9's comparison rule for file paths drawn from tar headers.
func Sanitize(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var out []rune
	for i, w := 0, 0; i < len(s); i += w {
		r, width := utf8.DecodeRuneInString(s[i:])
		w = width
		out = append(out, r)
	}
	return string(out)
}
