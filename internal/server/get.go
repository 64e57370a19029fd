package server

import (
	"io"
	"os"
	"syscall"

	"github.com/rs/zerolog/log"

	"mirrorstore/internal/flock"
	"mirrorstore/internal/fsops"
	"mirrorstore/internal/proto"
)

// openFirst opens rel read-only on the first device (registry order) that has
// it as a non-directory. It returns the last error when none does.
func (s *Server) openFirst(rel string) (*os.File, int, error) {
	var lastErr error = os.ErrNotExist
	for i := 0; i < s.reg.Len(); i++ {
		f, err := os.Open(s.reg.Path(i, rel))
		if err != nil {
			lastErr = err
			continue
		}
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			lastErr = err
			continue
		}
		if fi.IsDir() {
			_ = f.Close()
			lastErr = syscall.EISDIR
			continue
		}
		return f, i, nil
	}
	return nil, -1, lastErr
}

// opGET streams one device's copy of the file. The end of the transfer is the
// end of the connection.
func (s *Server) opGET(c io.ReadWriter, rel string) result {
	f, idx, err := s.openFirst(rel)
	if err != nil {
		msg := fsops.Errno(err)
		_ = proto.WriteFailure(c, msg)
		return failed(msg)
	}
	defer f.Close()

	l, err := flock.ReadLock(f)
	if err != nil {
		msg := fsops.Errno(err)
		_ = proto.WriteFailure(c, msg)
		return failed(msg)
	}
	defer l.Release()

	if err := proto.WriteStatus(c, proto.StatusSuccess); err != nil {
		return failed(err.Error())
	}

	buf := make([]byte, s.bufSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := c.Write(buf[:n]); werr != nil {
				log.Warn().Err(werr).Str("device", s.reg.Device(idx).Name()).Str("path", rel).Msg("get: send failed")
				return failed(werr.Error())
			}
		}
		if rerr == io.EOF {
			return succeeded()
		}
		if rerr != nil {
			// Status was already sent; the client sees a short file.
			log.Error().Err(rerr).Str("device", s.reg.Device(idx).Name()).Str("path", rel).Msg("get: read failed")
			return failed(rerr.Error())
		}
	}
}
