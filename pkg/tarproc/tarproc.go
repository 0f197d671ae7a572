// Package tarproc implements the three tar-stream operations that drive
// layer application: Enumerate, Apply, and SinkToTemp, plus the ExtractFile/
// ExtractJSON primitives the tarball source uses to read its own archive —
// per spec.md §4.2. Apply is original code: it is the one component spec.md
// explicitly assigns to this repo rather than to a library, since it must
// interleave whiteout/opaque-directory bookkeeping with per-entry writes
// rather than hand the whole stream to a black-box unpacker.
package tarproc

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fossas/circe/pkg/archive"
	"github.com/fossas/circe/pkg/filter"
	"github.com/fossas/circe/pkg/sylog"
)

const (
	whiteoutPrefix = ".wh."
	opaqueMarker   = ".wh..wh..opq"

	// maxJSONBytes bounds in-memory JSON parsing while searching an archive
	// for a manifest, per spec.md §4.2/§5.
	maxJSONBytes = 100 << 20
)

// Enumerate lists every entry path in the tar stream r, lossily converted to
// UTF-8. The scan stops at the first error the tar reader reports, which is
// returned together with the paths read before it; a malformed entry is not
// skipped.
func Enumerate(r io.Reader) ([]string, error) {
	tr := tar.NewReader(r)
	var paths []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, toValidUTF8(hdr.Name))
	}
	return paths, nil
}

func toValidUTF8(s string) string { return filter.Sanitize(s) }

// TempFile is an owned temporary file: its backing path is removed when
// Close is called, mirroring the "removed on drop" ownership spec.md
// assigns to SinkToTemp's result.
type TempFile struct {
	*os.File
}

// Close closes the underlying file and removes it from disk.
func (t *TempFile) Close() error {
	path := t.File.Name()
	cerr := t.File.Close()
	rerr := os.Remove(path)
	if cerr != nil {
		return cerr
	}
	if rerr != nil && !os.IsNotExist(rerr) {
		return rerr
	}
	return nil
}

// SinkToTemp copies r verbatim into a new temporary file and returns it,
// seeked back to the start.
func SinkToTemp(r io.Reader) (*TempFile, error) {
	f, err := os.CreateTemp("", "circe-sink-*")
	if err != nil {
		return nil, fmt.Errorf("tarproc: create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("tarproc: copy to temp file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("tarproc: seek temp file: %w", err)
	}
	return &TempFile{File: f}, nil
}

// Apply unpacks the tar stream r into outputDir, honoring OCI overlay
// semantics: whiteouts delete, an opaque-directory marker clears prior
// directory content, absolute symlinks are relativized, and any entry whose
// target would escape outputDir is skipped with a warning rather than
// aborting the run. fileFilter excludes matching paths (spec.md §9).
func Apply(r io.Reader, outputDir string, fileFilter filter.Filters) error {
	root, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("tarproc: resolve output dir: %w", err)
	}

	tr := tar.NewReader(r)
	var dirHeaders []*tar.Header

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		hdr.Name = filepath.Clean(hdr.Name)
		if hdr.Name == "." {
			continue
		}

		if fileFilter.ExcludesFile(hdr.Name) {
			continue
		}

		path := filepath.Join(root, hdr.Name)
		if rel, err := filepath.Rel(root, path); err != nil || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) || rel == ".." {
			sylog.Warningf("tarproc: skipping %q: escapes output directory", hdr.Name)
			continue
		}

		base := filepath.Base(hdr.Name)
		dir := filepath.Dir(hdr.Name)

		// dir and the whiteout/opaque targets derived from it are already
		// known to stay under root: hdr.Name itself was just checked above,
		// and dir is one of its ancestors.
		if base == opaqueMarker {
			if err := applyOpaque(root, dir); err != nil {
				sylog.Warningf("tarproc: opaque dir %q: %v", dir, err)
			}
			continue
		}
		if strings.HasPrefix(base, whiteoutPrefix) {
			target := filepath.Join(root, dir, strings.TrimPrefix(base, whiteoutPrefix))
			if err := os.RemoveAll(target); err != nil {
				sylog.Warningf("tarproc: whiteout %q: %v", hdr.Name, err)
			}
			continue
		}

		if hdr.Typeflag == tar.TypeSymlink && strings.HasPrefix(hdr.Linkname, "/") {
			hdr.Linkname = relativizeAbsoluteSymlink(hdr.Name, hdr.Linkname)
		}

		if err := archive.EnsureParentDirs(root, hdr); err != nil {
			sylog.Warningf("tarproc: %q: %v", hdr.Name, err)
			continue
		}

		if fi, err := os.Lstat(path); err == nil {
			if !fi.IsDir() || hdr.Typeflag != tar.TypeDir {
				if err := os.RemoveAll(path); err != nil {
					sylog.Warningf("tarproc: removing existing %q: %v", path, err)
					continue
				}
			} else if hdr.Name == "." {
				continue
			}
		}

		if err := archive.CreateEntry(path, root, root, hdr, tr, archive.WriteOptions{}); err != nil {
			sylog.Warningf("tarproc: applying %q: %v", hdr.Name, err)
			continue
		}

		if hdr.Typeflag == tar.TypeDir {
			dirHeaders = append(dirHeaders, hdr)
		}
	}

	return archive.FixDirTimes(root, dirHeaders)
}

// applyOpaque implements the corrected opaque-directory behavior: every
// pre-existing entry inside dir is removed, leaving the directory itself
// (and whatever entries this layer goes on to add after the marker) intact.
func applyOpaque(root, dir string) error {
	full := filepath.Join(root, dir)
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(full, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// relativizeAbsoluteSymlink rewrites an absolute symlink target into one
// relative to entryPath's parent directory that resolves, under outputDir,
// to the same absolute path — so the symlink stays meaningful once
// outputDir is not itself mounted at "/". See spec.md §4.2 step 4.
func relativizeAbsoluteSymlink(entryPath, absTarget string) string {
	sourceDir := filepath.Dir(entryPath)
	var sourceParts []string
	if sourceDir != "." {
		sourceParts = strings.Split(sourceDir, "/")
	}

	targetParts := strings.Split(strings.TrimPrefix(absTarget, "/"), "/")

	common := 0
	for common < len(sourceParts) && common < len(targetParts) && sourceParts[common] == targetParts[common] {
		common++
	}

	upCount := len(sourceParts) - common
	downParts := targetParts[common:]

	var b strings.Builder
	for i := 0; i < upCount; i++ {
		b.WriteString("../")
	}
	b.WriteString(strings.Join(downParts, "/"))

	result := b.String()
	result = strings.TrimSuffix(result, "/")
	if result == "" {
		return "."
	}
	return result
}

// ExtractFile scans the on-disk archive at archivePath for the first entry
// whose name satisfies predicate, and returns a reader over its content.
// The returned ReadCloser owns the underlying file handle.
func ExtractFile(archivePath string, predicate func(name string) bool) (io.ReadCloser, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("tarproc: open %q: %w", archivePath, err)
	}
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			f.Close()
			return nil, fmt.Errorf("tarproc: no entry in %q satisfies predicate", archivePath)
		}
		if err != nil {
			f.Close()
			return nil, err
		}
		if predicate(hdr.Name) {
			return entryReader{f: f, Reader: tr}, nil
		}
	}
}

type entryReader struct {
	f *os.File
	io.Reader
}

func (e entryReader) Close() error { return e.f.Close() }

// ExtractJSON is ExtractFile followed by a bounded JSON decode into v, per
// spec.md §4.2's 100 MiB cap on manifest search.
func ExtractJSON(archivePath string, predicate func(name string) bool, v interface{}) error {
	rc, err := ExtractFile(archivePath, predicate)
	if err != nil {
		return err
	}
	defer rc.Close()

	dec := json.NewDecoder(io.LimitReader(rc, maxJSONBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("tarproc: decode JSON from %q: %w", archivePath, err)
	}
	return nil
}
