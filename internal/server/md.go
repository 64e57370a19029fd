package server

import (
	"io"
	"io/fs"
	"os"

	"github.com/pkg/errors"

	"mirrorstore/internal/fsops"
	"mirrorstore/internal/proto"
)

// opMD creates the directory on the first device that accepts it and stops
// there. A device that already has the directory counts as accepting it.
func (s *Server) opMD(c io.Writer, rel string) result {
	var lastErr error = os.ErrNotExist
	for i := 0; i < s.reg.Len(); i++ {
		p := s.reg.Path(i, rel)
		err := os.Mkdir(p, 0o755)
		if err == nil || (errors.Is(err, fs.ErrExist) && isDir(p)) {
			if werr := proto.WriteStatus(c, proto.StatusSuccess); werr != nil {
				return failed(werr.Error())
			}
			return succeeded()
		}
		lastErr = err
	}
	msg := fsops.Errno(lastErr)
	_ = proto.WriteFailure(c, msg)
	return failed(msg)
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
