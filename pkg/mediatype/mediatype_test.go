package mediatype

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    LayerMediaType
		wantErr bool
	}{
		{
			name: "PlainTar",
			in:   "application/vnd.oci.image.layer.v1.tar",
			want: LayerMediaType{},
		},
		{
			name: "Gzip",
			in:   "application/vnd.oci.image.layer.v1.tar+gzip",
			want: LayerMediaType{Flags: []Flag{Gzip}},
		},
		{
			name: "GzipZstd",
			in:   "application/vnd.oci.image.layer.v1.tar+gzip+zstd",
			want: LayerMediaType{Flags: []Flag{Gzip, Zstd}},
		},
		{
			name: "Nondistributable",
			in:   "application/vnd.oci.image.layer.nondistributable.v1.tar+gzip",
			want: LayerMediaType{Flags: []Flag{Gzip}},
		},
		{
			name: "LegacyDockerDiffGzip",
			in:   "application/vnd.docker.image.rootfs.diff.tar.gzip",
			want: LayerMediaType{Flags: []Flag{Gzip}},
		},
		{
			name: "LegacyDockerForeignGzip",
			in:   "application/vnd.docker.image.rootfs.foreign.diff.tar.gzip",
			want: LayerMediaType{Flags: []Flag{Gzip, Foreign}},
		},
		{
			name:    "UnknownBase",
			in:      "application/vnd.other.thing",
			wantErr: true,
		},
		{
			name:    "UnknownFlag",
			in:      "application/vnd.oci.image.layer.v1.tar+bzip2",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	values := []LayerMediaType{
		{},
		{Flags: []Flag{Gzip}},
		{Flags: []Flag{Zstd}},
		{Flags: []Flag{Gzip, Zstd}},
		{Flags: []Flag{Foreign, Gzip}},
	}
	for _, v := range values {
		got, err := Parse(v.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", v.String(), err)
		}
		if !reflect.DeepEqual(got, v) {
			t.Fatalf("round trip %+v: got %+v", v, got)
		}
	}
}

func TestIsForeign(t *testing.T) {
	m, err := Parse("application/vnd.docker.image.rootfs.foreign.diff.tar.gzip")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !m.IsForeign() {
		t.Fatalf("expected foreign")
	}
	m2, _ := Parse("application/vnd.oci.image.layer.v1.tar+gzip")
	if m2.IsForeign() {
		t.Fatalf("expected not foreign")
	}
}
