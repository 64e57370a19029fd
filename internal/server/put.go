package server

import (
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mirrorstore/internal/flock"
	"mirrorstore/internal/fsops"
	"mirrorstore/internal/proto"
)

// replica is one open, write-locked destination of a PUT.
type replica struct {
	idx  int
	f    *os.File
	lock *flock.Lock
	err  error
}

func (r *replica) close() {
	_ = r.lock.Release()
	_ = r.f.Close()
}

// openReplica opens rel for writing on device idx, locks it, then truncates.
func (s *Server) openReplica(idx int, rel string) (*replica, error) {
	f, err := os.OpenFile(s.reg.Path(idx, rel), os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	l, err := flock.WriteLock(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		_ = l.Release()
		_ = f.Close()
		return nil, errors.Wrap(err, "truncate")
	}
	return &replica{idx: idx, f: f, lock: l}, nil
}

// opPUT acks, reads the size field, then writes the incoming bytes to every
// device at once. Success means exactly the declared byte count arrived.
func (s *Server) opPUT(c io.ReadWriter, rel string) result {
	if err := proto.WriteStatus(c, proto.Ack); err != nil {
		return failed(err.Error())
	}
	size, err := proto.ReadSize(c)
	if err != nil {
		_ = proto.WriteStatus(c, proto.StatusFailure)
		return failed(err.Error())
	}

	var partial *multierror.Error
	replicas := make([]*replica, 0, s.reg.Len())
	for i := 0; i < s.reg.Len(); i++ {
		r, err := s.openReplica(i, rel)
		if err != nil {
			partial = multierror.Append(partial, errors.Wrapf(err, "device %s", s.reg.Device(i).Name()))
			continue
		}
		replicas = append(replicas, r)
	}

	buf := make([]byte, s.bufSize)
	var received uint64
	for received < size {
		want := uint64(len(buf))
		if rem := size - received; rem < want {
			want = rem
		}
		n, rerr := c.Read(buf[:want])
		if n > 0 {
			for _, r := range replicas {
				if r.err != nil {
					continue
				}
				if werr := fsops.WriteFull(r.f, buf[:n]); werr != nil {
					r.err = werr
					partial = multierror.Append(partial, errors.Wrapf(werr, "device %s", s.reg.Device(r.idx).Name()))
				}
			}
			received += uint64(n)
		}
		if rerr != nil {
			break
		}
	}

	for _, r := range replicas {
		r.close()
	}

	if partial.ErrorOrNil() != nil {
		log.Warn().Err(partial).Str("path", rel).Int("replicas", len(replicas)).Msg("put: partial replication")
	}

	if received != size {
		_ = proto.WriteStatus(c, proto.StatusFailure)
		return failed(errors.Errorf("received %d of %d bytes", received, size).Error())
	}
	if err := proto.WriteStatus(c, proto.StatusSuccess); err != nil {
		return failed(err.Error())
	}
	return succeeded()
}
