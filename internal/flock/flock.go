// Package flock provides whole-file advisory record locks.
//
// All requests are non-blocking: if the lock is held incompatibly by another
// descriptor the call fails at once with ErrWouldBlock. Callers treat that as an
// operation failure; nothing in this package retries.
package flock

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned when a lock is already held incompatibly elsewhere.
var ErrWouldBlock = errors.New("lock held by another descriptor")

// Kind selects the lock type.
type Kind int16

const (
	Read  Kind = unix.F_RDLCK
	Write Kind = unix.F_WRLCK
	none  Kind = unix.F_UNLCK
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unlock"
	}
}

// TryRead requests a shared lock over the whole file.
func TryRead(f *os.File) error { return set(f, Read) }

// TryWrite requests an exclusive lock over the whole file.
func TryWrite(f *os.File) error { return set(f, Write) }

// Unlock releases whatever lock the descriptor holds.
func Unlock(f *os.File) error { return set(f, none) }

func set(f *os.File, k Kind) error {
	lk := unix.Flock_t{
		Type:   int16(k),
		Whence: 0, // SEEK_SET
		Start:  0,
		Len:    0, // to end of file
	}
	if err := setlk(int(f.Fd()), &lk); err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
			return errors.Wrapf(ErrWouldBlock, "%s lock %s", k, f.Name())
		}
		return errors.Wrapf(err, "%s lock %s", k, f.Name())
	}
	return nil
}

// Lock is a held lock. Release must be called before the file is closed.
type Lock struct {
	f    *os.File
	kind Kind
	once sync.Once
	err  error
}

// ReadLock acquires a shared lock and returns it as a releasable value.
func ReadLock(f *os.File) (*Lock, error) { return acquire(f, Read) }

// WriteLock acquires an exclusive lock and returns it as a releasable value.
func WriteLock(f *os.File) (*Lock, error) { return acquire(f, Write) }

func acquire(f *os.File, k Kind) (*Lock, error) {
	if err := set(f, k); err != nil {
		return nil, err
	}
	return &Lock{f: f, kind: k}, nil
}

// Kind reports the lock type.
func (l *Lock) Kind() Kind { return l.kind }

// Release unlocks the file. Calling it more than once is harmless; the first
// result is returned every time.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		l.err = Unlock(l.f)
	})
	return l.err
}
