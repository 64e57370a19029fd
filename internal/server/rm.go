package server

import (
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mirrorstore/internal/fsops"
	"mirrorstore/internal/pathutil"
	"mirrorstore/internal/proto"
)

// opRM deletes the path from every device that has it. The reported status is
// the outcome on the last device that had the path, so an earlier failure can
// be masked by a later success (and the other way round); masked failures are
// logged.
func (s *Server) opRM(c io.Writer, rel string) result {
	if err := pathutil.CheckTraversal(rel); err != nil {
		_ = proto.WriteFailure(c, proto.MsgInvalidArgument)
		return failed(err.Error())
	}

	var (
		found   bool
		lastErr error = os.ErrNotExist
		all     *multierror.Error
	)
	for i := 0; i < s.reg.Len(); i++ {
		p := s.reg.Path(i, rel)
		fi, err := os.Stat(p)
		if err != nil {
			if !found {
				lastErr = err
			}
			continue
		}
		found = true
		if fi.IsDir() {
			err = fsops.DeleteDir(p)
		} else {
			err = fsops.RemoveFile(p)
		}
		lastErr = err
		if err != nil {
			all = multierror.Append(all, errors.Wrapf(err, "device %s", s.reg.Device(i).Name()))
		}
	}

	if !found || lastErr != nil {
		msg := "Error: " + fsops.Errno(lastErr)
		_ = proto.WriteFailure(c, msg)
		return failed(msg)
	}
	if all.ErrorOrNil() != nil {
		log.Warn().Err(all).Str("path", rel).Msg("rm: earlier device failures masked by last device")
	}
	if err := proto.WriteStatus(c, proto.StatusSuccess); err != nil {
		return failed(err.Error())
	}
	return succeeded()
}
