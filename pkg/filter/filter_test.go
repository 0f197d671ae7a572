package filter

import "testing"

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"*.txt", "a.txt", true},
		{"*.txt", "dir/a.txt", false},
		{"**/*.txt", "dir/a.txt", true},
		{"**/*.txt", "dir/sub/a.txt", true},
		{"etc/*", "etc/passwd", true},
		{"etc/*", "var/etc/passwd", false},
	}
	for _, tt := range tests {
		f, err := ParseGlob(tt.pattern)
		if err != nil {
			t.Fatalf("ParseGlob(%q): %v", tt.pattern, err)
		}
		if got := f.Matches(tt.value); got != tt.want {
			t.Errorf("glob %q matches %q = %v, want %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}

func TestRegexMatch(t *testing.T) {
	f, err := ParseRegex(`^sha256:[0-9a-f]{4}`)
	if err != nil {
		t.Fatalf("ParseRegex: %v", err)
	}
	if !f.Matches("sha256:abcd1234") {
		t.Fatalf("expected match")
	}
	if f.Matches("sha512:abcd1234") {
		t.Fatalf("expected no match")
	}
}

func TestEmptySetExcludesNothing(t *testing.T) {
	var fs Filters
	if fs.ExcludesLayer("sha256:whatever") {
		t.Fatalf("empty layer filter set should exclude nothing")
	}
	if fs.ExcludesFile("etc/passwd") {
		t.Fatalf("empty file filter set should exclude nothing")
	}
}

func TestExcludesOnMatch(t *testing.T) {
	fs, err := ParseGlobs([]string{"etc/**"})
	if err != nil {
		t.Fatalf("ParseGlobs: %v", err)
	}
	if !fs.ExcludesFile("etc/passwd") {
		t.Fatalf("expected exclusion for matching path")
	}
	if fs.ExcludesFile("var/log/syslog") {
		t.Fatalf("expected no exclusion for non-matching path")
	}
}

func TestUnion(t *testing.T) {
	a, _ := ParseGlobs([]string{"a/*"})
	b, _ := ParseGlobs([]string{"b/*"})
	u := a.Union(b)
	if !u.ExcludesFile("a/x") || !u.ExcludesFile("b/x") {
		t.Fatalf("union should exclude matches from either side")
	}
	if u.ExcludesFile("c/x") {
		t.Fatalf("union should not exclude non-matching path")
	}
}

func TestMonotonicity(t *testing.T) {
	var fs Filters
	if fs.ExcludesFile("x") {
		t.Fatalf("empty set excludes nothing")
	}
	f, _ := ParseGlob("x")
	fs = fs.Add(f)
	if !fs.ExcludesFile("x") {
		t.Fatalf("adding a matching filter must exclude what it matches")
	}
}

func TestSanitizeValidUTF8Unchanged(t *testing.T) {
	s := "clean/path/name.txt"
	if got := Sanitize(s); got != s {
		t.Fatalf("Sanitize(%q) = %q, want unchanged", s, got)
	}
}

func TestSanitizeInvalidUTF8Replaced(t *testing.T) {
	s := "bad\xffname"
	got := Sanitize(s)
	if got == s {
		t.Fatalf("expected Sanitize to alter invalid UTF-8 input")
	}
}
