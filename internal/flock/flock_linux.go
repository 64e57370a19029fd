package flock

import "golang.org/x/sys/unix"

// Open file description locks belong to the descriptor, not the process, so two
// goroutines holding separate descriptors on one file conflict as expected.
func setlk(fd int, lk *unix.Flock_t) error {
	return unix.FcntlFlock(uintptr(fd), unix.F_OFD_SETLK, lk)
}
