//go:build unix

package fsops

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Usage is the capacity of the filesystem holding a path, as seen by an
// unprivileged user.
type Usage struct {
	Total uint64
	Free  uint64
}

func (u Usage) Used() uint64 { return u.Total - u.Free }

// DiskUsage reports the filesystem capacity behind path (a device root).
func DiskUsage(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, errors.Wrapf(err, "statfs %s", path)
	}
	bs := uint64(st.Bsize)
	return Usage{Total: uint64(st.Blocks) * bs, Free: uint64(st.Bavail) * bs}, nil
}
