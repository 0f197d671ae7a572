package tarball

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	godigest "github.com/opencontainers/go-digest"
	imagespec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/fossas/circe/pkg/filter"
)

// buildLayerTar builds a minimal plain tar archive containing one file.
func buildLayerTar(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func sha256Digest(b []byte) godigest.Digest {
	sum := sha256.Sum256(b)
	return godigest.NewDigestFromEncoded(godigest.SHA256, hex.EncodeToString(sum[:]))
}

// buildDockerSaveArchive synthesizes an outer tar containing index.json, a
// manifest blob, and one layer blob, mimicking a docker save archive's
// nested OCI index (spec.md §4.6).
func buildDockerSaveArchive(t *testing.T) (path string, layerDigest string, layerContent []byte) {
	t.Helper()

	layerTar := buildLayerTar(t, "hello.txt", "hello world")
	layerD := sha256Digest(layerTar)

	manifest := imagespec.Manifest{
		SchemaVersion: 2,
		MediaType:     imagespec.MediaTypeImageManifest,
		Config: imagespec.Descriptor{
			MediaType: imagespec.MediaTypeImageConfig,
			Digest:    sha256Digest([]byte("{}")),
			Size:      2,
		},
		Layers: []imagespec.Descriptor{
			{
				MediaType: imagespec.MediaTypeImageLayer,
				Digest:    layerD,
				Size:      int64(len(layerTar)),
			},
		},
	}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	manifestD := sha256Digest(manifestBytes)

	index := imagespec.Index{
		SchemaVersion: 2,
		Manifests: []imagespec.Descriptor{
			{
				MediaType: imagespec.MediaTypeImageManifest,
				Digest:    manifestD,
				Size:      int64(len(manifestBytes)),
			},
		},
	}
	indexBytes, err := json.Marshal(index)
	if err != nil {
		t.Fatalf("marshal index: %v", err)
	}

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "image.tar")
	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	writeEntry := func(name string, content []byte) {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
			t.Fatalf("WriteHeader %s: %v", name, err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatalf("Write %s: %v", name, err)
		}
	}
	writeEntry("index.json", indexBytes)
	writeEntry("blobs/sha256/"+manifestD.Encoded(), manifestBytes)
	writeEntry("blobs/sha256/"+layerD.Encoded(), layerTar)
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}

	return archivePath, layerD.String(), layerTar
}

func TestNewAndLayers(t *testing.T) {
	archivePath, wantDigest, _ := buildDockerSaveArchive(t)

	src, err := New(archivePath, "test/image", filter.Filters{}, filter.Filters{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	layers, err := src.Layers()
	if err != nil {
		t.Fatalf("Layers: %v", err)
	}
	if len(layers) != 1 {
		t.Fatalf("got %d layers, want 1", len(layers))
	}
	if layers[0].Digest.String() != wantDigest {
		t.Errorf("got digest %s, want %s", layers[0].Digest, wantDigest)
	}
}

func TestPullLayer(t *testing.T) {
	archivePath, _, wantContent := buildDockerSaveArchive(t)

	src, err := New(archivePath, "test/image", filter.Filters{}, filter.Filters{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	layers, err := src.Layers()
	if err != nil {
		t.Fatalf("Layers: %v", err)
	}

	rc, err := src.PullLayer(layers[0])
	if err != nil {
		t.Fatalf("PullLayer: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, wantContent) {
		t.Fatalf("got %d bytes, want %d matching content", len(got), len(wantContent))
	}
}

func TestListFiles(t *testing.T) {
	archivePath, _, _ := buildDockerSaveArchive(t)

	src, err := New(archivePath, "test/image", filter.Filters{}, filter.Filters{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	layers, err := src.Layers()
	if err != nil {
		t.Fatalf("Layers: %v", err)
	}

	files, err := src.ListFiles(layers[0])
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0] != "hello.txt" {
		t.Fatalf("got %v, want [hello.txt]", files)
	}
}

func TestApplyLayer(t *testing.T) {
	archivePath, _, _ := buildDockerSaveArchive(t)

	src, err := New(archivePath, "test/image", filter.Filters{}, filter.Filters{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	layers, err := src.Layers()
	if err != nil {
		t.Fatalf("Layers: %v", err)
	}

	dir := t.TempDir()
	if err := src.ApplyLayer(layers[0], dir); err != nil {
		t.Fatalf("ApplyLayer: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestLayerFilterExcludes(t *testing.T) {
	archivePath, wantDigest, _ := buildDockerSaveArchive(t)

	excl, err := filter.ParseGlobs([]string{wantDigest})
	if err != nil {
		t.Fatalf("ParseGlobs: %v", err)
	}

	src, err := New(archivePath, "test/image", excl, filter.Filters{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	layers, err := src.Layers()
	if err != nil {
		t.Fatalf("Layers: %v", err)
	}
	if len(layers) != 0 {
		t.Fatalf("got %d layers, want 0 (excluded by filter)", len(layers))
	}
}
