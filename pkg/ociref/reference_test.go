package ociref

import "testing"

func TestParseExpansion(t *testing.T) {
	d := DefaultDefaults // base=docker.io, namespace=library

	tests := []struct {
		name string
		in   string
		want Reference
	}{
		{
			name: "BareName",
			in:   "ubuntu",
			want: Reference{Host: "docker.io", Namespace: "library", Name: "ubuntu", Version: TagVersion("latest")},
		},
		{
			name: "NamespaceAndName",
			in:   "myuser/myimage",
			want: Reference{Host: "docker.io", Namespace: "myuser", Name: "myimage", Version: TagVersion("latest")},
		},
		{
			name: "BaseAsFirstSegment",
			in:   "docker.io/ubuntu",
			want: Reference{Host: "docker.io", Namespace: "library", Name: "ubuntu", Version: TagVersion("latest")},
		},
		{
			name: "MultiSegmentName",
			in:   "ghcr.io/org/a/b/c",
			want: Reference{Host: "ghcr.io", Namespace: "org", Name: "a/b/c", Version: TagVersion("latest")},
		},
		{
			name: "WithTag",
			in:   "ghcr.io/org/name:v1.2.3",
			want: Reference{Host: "ghcr.io", Namespace: "org", Name: "name", Version: TagVersion("v1.2.3")},
		},
		{
			name: "HostWithPort",
			in:   "localhost:5000/org/name",
			want: Reference{Host: "localhost:5000", Namespace: "org", Name: "name", Version: TagVersion("latest")},
		},
		{
			name: "WithDigest",
			in:   "ghcr.io/org/name@sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			want: Reference{Host: "ghcr.io", Namespace: "org", Name: "name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in, d)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got.Host != tt.want.Host || got.Namespace != tt.want.Namespace || got.Name != tt.want.Name {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if tt.name == "WithDigest" {
				if !got.Version.IsDigest() {
					t.Fatalf("expected digest version")
				}
				return
			}
			if got.Version.IsDigest() != tt.want.Version.IsDigest() || got.Version.Tag != tt.want.Version.Tag {
				t.Fatalf("Parse(%q).Version = %+v, want %+v", tt.in, got.Version, tt.want.Version)
			}
		})
	}
}

func TestParseRejectsEmptyComponents(t *testing.T) {
	tests := []string{"", "host//name", "host/ns/", ":tag"}
	for _, in := range tests {
		if _, err := Parse(in, DefaultDefaults); err == nil {
			t.Fatalf("Parse(%q): expected error", in)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	refs := []Reference{
		{Host: "ghcr.io", Namespace: "org", Name: "name", Version: TagVersion("v1")},
		{Host: "docker.io", Namespace: "library", Name: "a/b/c", Version: TagVersion("latest")},
	}
	for _, r := range refs {
		got, err := Parse(r.String(), DefaultDefaults)
		if err != nil {
			t.Fatalf("Parse(%q): %v", r.String(), err)
		}
		if got.Host != r.Host || got.Namespace != r.Namespace || got.Name != r.Name || got.Version.Tag != r.Version.Tag {
			t.Fatalf("round trip %+v: got %+v", r, got)
		}
	}
}
