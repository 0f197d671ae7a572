/*
Contains code adapted from:

   https://github.com/moby/moby/tree/master/pkg/archive

Copyright 2013-2018 Docker, Inc.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       https://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package archive contains the per-entry primitives used to write a single
// tar entry to disk under a confined root. pkg/tarproc.Apply calls these one
// entry at a time, interleaving whiteout and opaque-directory bookkeeping
// between entries, rather than handing an entire archive to one opaque
// unpacker the way the upstream moby/go-archive does — see spec.md §4.2.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/docker/docker/pkg/system"
	"github.com/moby/sys/sequential"
	"github.com/pkg/errors"

	"github.com/fossas/circe/pkg/sylog"
)

// WriteOptions controls ownership/xattr handling for CreateEntry.
type WriteOptions struct {
	// NoLchown skips the Lchown call circe would otherwise make to
	// preserve the tar entry's recorded UID/GID.
	NoLchown bool
	// BestEffortXattrs downgrades ENOTSUP/EPERM from xattr restoration to a
	// logged warning instead of a fatal error, for filesystems or
	// unprivileged namespaces that don't support them.
	BestEffortXattrs bool
}

const paxSchilyXattr = "SCHILY.xattr."

// EnsureParentDirs creates the parent directory of hdr's target path, if
// the tar stream didn't carry an explicit entry for it. The tar format
// allows such "implied" directories: their existence is inferred from the
// paths of files inside them, with no header entry of their own.
//
// hdr.Name must already be filepath.Clean'd by the caller.
func EnsureParentDirs(dest string, hdr *tar.Header) error {
	if strings.HasSuffix(hdr.Name, string(os.PathSeparator)) {
		return nil
	}
	parentPath := filepath.Join(dest, filepath.Dir(hdr.Name))
	if _, err := os.Lstat(parentPath); err != nil && os.IsNotExist(err) {
		if err := os.MkdirAll(parentPath, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// CreateEntry writes a single tar entry to path, the target of any symlink
// or hardlink it defines being required to resolve under extractRoot. This
// matches spec.md §4.2/§8's containment rule: a layer cannot place content,
// or point a link, outside the directory it is being applied into.
//
// reader supplies the entry's file content for tar.TypeReg entries; it is
// ignored for all other types.
func CreateEntry(path, extractDir, extractRoot string, hdr *tar.Header, reader io.Reader, opts WriteOptions) error {
	hdrInfo := hdr.FileInfo()

	switch hdr.Typeflag {
	case tar.TypeDir:
		if fi, err := os.Lstat(path); err != nil || !fi.IsDir() {
			if err := os.Mkdir(path, hdrInfo.Mode()); err != nil {
				return err
			}
		}

	case tar.TypeReg:
		file, err := sequential.OpenFile(path, os.O_CREATE|os.O_WRONLY, hdrInfo.Mode())
		if err != nil {
			return err
		}
		if _, err := io.Copy(file, reader); err != nil {
			file.Close()
			return err
		}
		file.Close()

	case tar.TypeBlock, tar.TypeChar:
		sylog.Warningf("skipping %s: block/char devices are not copied", path)
		return nil

	case tar.TypeFifo:
		sylog.Warningf("skipping %s: fifos are not copied", path)
		return nil

	case tar.TypeLink:
		// #nosec G305 -- targetPath is checked for containment below.
		targetPath := filepath.Join(extractDir, hdr.Linkname)
		if !strings.HasPrefix(targetPath, extractRoot) {
			return fmt.Errorf("invalid hardlink target %q: resolves to %q, outside root %q", hdr.Linkname, targetPath, extractRoot)
		}
		if err := os.Link(targetPath, path); err != nil {
			return err
		}

	case tar.TypeSymlink:
		// path -> hdr.Linkname, relative to path's own directory, e.g.
		// /root/a/link -> ../b/file resolves to /root/b/file.
		targetPath := filepath.Join(filepath.Dir(path), hdr.Linkname) // #nosec G305
		if !strings.HasPrefix(targetPath, extractRoot) {
			return fmt.Errorf("invalid symlink target %q: resolves to %q, outside root %q", hdr.Linkname, targetPath, extractRoot)
		}
		if err := os.Symlink(hdr.Linkname, path); err != nil {
			return err
		}

	case tar.TypeXGlobalHeader:
		sylog.Debugf("ignoring PAX global extended header for %s", hdr.Name)
		return nil

	default:
		return fmt.Errorf("unhandled tar header type %d for %s", hdr.Typeflag, hdr.Name)
	}

	if !opts.NoLchown && runtime.GOOS != "windows" {
		if err := os.Lchown(path, hdr.Uid, hdr.Gid); err != nil {
			return errors.Wrapf(err, "failed to Lchown %q for UID %d, GID %d", path, hdr.Uid, hdr.Gid)
		}
	}

	var xattrErrs []string
	for key, value := range hdr.PAXRecords {
		xattr, ok := strings.CutPrefix(key, paxSchilyXattr)
		if !ok {
			continue
		}
		if err := system.Lsetxattr(path, xattr, []byte(value), 0); err != nil {
			if opts.BestEffortXattrs && (errors.Is(err, syscall.ENOTSUP) || errors.Is(err, syscall.EPERM)) {
				xattrErrs = append(xattrErrs, err.Error())
				continue
			}
			return err
		}
	}
	if len(xattrErrs) > 0 {
		sylog.Warningf("ignored xattrs circe's filesystem doesn't support: %v", xattrErrs)
	}

	// No LChmod syscall exists, so symlink modes are left alone. This must
	// run after chown, since chown can clear setuid/setgid bits.
	if hdr.Typeflag != tar.TypeSymlink {
		if err := os.Chmod(path, hdrInfo.Mode()); err != nil {
			return err
		}
	}

	return setTimes(path, hdr)
}

func setTimes(path string, hdr *tar.Header) error {
	aTime := hdr.AccessTime
	if aTime.Before(hdr.ModTime) {
		aTime = hdr.ModTime
	}
	if hdr.Typeflag == tar.TypeSymlink {
		ts := []syscall.Timespec{timeToTimespec(aTime), timeToTimespec(hdr.ModTime)}
		if err := system.LUtimesNano(path, ts); err != nil && err != system.ErrNotSupportedPlatform {
			return err
		}
		return nil
	}
	return system.Chtimes(path, aTime, hdr.ModTime)
}

// FixDirTimes applies each directory header's recorded mtime after an
// entire layer has been unpacked. Directory mtimes must be fixed up last,
// since creating further entries inside a directory updates its mtime.
func FixDirTimes(dest string, dirs []*tar.Header) error {
	for _, hdr := range dirs {
		// #nosec G305 -- hdr was already checked for containment when created.
		path := filepath.Join(dest, hdr.Name)
		if err := system.Chtimes(path, hdr.AccessTime, hdr.ModTime); err != nil {
			return err
		}
	}
	return nil
}

func timeToTimespec(t time.Time) (ts syscall.Timespec) {
	if t.IsZero() {
		ts.Sec = 0
		ts.Nsec = (1 << 30) - 2 // UTIME_OMIT
		return
	}
	return syscall.NsecToTimespec(t.UnixNano())
}
