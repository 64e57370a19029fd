package fsops

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mirrorstore/internal/flock"
)

// ChunkSize is the transfer unit for file copies and network streaming.
const ChunkSize = 4096

// Errno returns the bare OS error text of err (e.g. "no such file or directory"),
// without the path or operation context that would expose on-disk locations.
func Errno(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, flock.ErrWouldBlock) {
		return syscall.EAGAIN.Error()
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno.Error()
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		return le.Err.Error()
	}
	return errors.Cause(err).Error()
}

// WriteFull writes all of b to w, resuming after short writes.
func WriteFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// CopyFile copies src to dst (created or truncated, mode 0644) under a read lock
// on src and a write lock on dst. Both locks are released before the
// descriptors are closed.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open src")
	}
	defer in.Close()

	rl, err := flock.ReadLock(in)
	if err != nil {
		return err
	}
	defer rl.Release()

	// Truncate only once the write lock is held.
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open dst")
	}
	defer out.Close()

	wl, err := flock.WriteLock(out)
	if err != nil {
		return err
	}
	defer wl.Release()

	if err := out.Truncate(0); err != nil {
		return errors.Wrap(err, "truncate dst")
	}

	buf := make([]byte, ChunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if err := WriteFull(out, buf[:n]); err != nil {
				return errors.Wrapf(err, "write %s", dst)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return errors.Wrapf(rerr, "read %s", src)
		}
	}
}

// CopyDir recursively copies the regular files and directories of src into dst.
// dst is created if absent. Symlinks and special files are skipped. A failing
// entry is logged and does not stop its siblings; the returned error aggregates
// every entry failure.
func CopyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrap(err, "read src dir")
	}
	if err := os.Mkdir(dst, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return errors.Wrap(err, "create dst dir")
	}

	var result *multierror.Error
	for _, e := range entries {
		s := filepath.Join(src, e.Name())
		d := filepath.Join(dst, e.Name())
		fi, err := os.Lstat(s)
		if err != nil {
			log.Warn().Err(err).Str("path", s).Msg("copy: lstat failed")
			result = multierror.Append(result, err)
			continue
		}
		switch {
		case fi.IsDir():
			err = CopyDir(s, d)
		case fi.Mode().IsRegular():
			err = CopyFile(s, d)
		default:
			log.Debug().Str("path", s).Str("mode", fi.Mode().String()).Msg("copy: skipping non-regular entry")
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("src", s).Str("dst", d).Msg("copy: entry failed")
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// RemoveFile unlinks a regular file while holding a write lock on it.
func RemoveFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	l, err := flock.WriteLock(f)
	if err != nil {
		return err
	}
	defer l.Release()

	return os.Remove(path)
}

// DeleteDir removes path and everything beneath it. Regular files go through
// RemoveFile; other non-directory entries are unlinked directly. Every entry is
// attempted even after a failure, and the directory itself is removed only when
// all of its entries were.
func DeleteDir(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, e := range entries {
		p := filepath.Join(path, e.Name())
		fi, err := os.Lstat(p)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		switch {
		case fi.IsDir():
			err = DeleteDir(p)
		case fi.Mode().IsRegular():
			err = RemoveFile(p)
		default:
			err = os.Remove(p)
		}
		if err != nil {
			log.Debug().Err(err).Str("path", p).Msg("delete: entry failed")
			result = multierror.Append(result, err)
		}
	}
	if result.ErrorOrNil() != nil {
		return result
	}
	return os.Remove(path)
}
