//go:build unix && !linux

package flock

import "golang.org/x/sys/unix"

// Classic POSIX record locks. These are per process, so they only exclude
// other processes.
func setlk(fd int, lk *unix.Flock_t) error {
	return unix.FcntlFlock(uintptr(fd), unix.F_SETLK, lk)
}
