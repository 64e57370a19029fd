package server

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mirrorstore/internal/proto"
)

func (s *Server) record(remote string, req proto.Request, res result, in, out int64, dur time.Duration) {
	if s.stats != nil {
		s.stats.add(req.Command, res.status, in, out, dur)
	}
	if s.history != nil {
		s.history.add(RequestRecord{
			Remote:     remote,
			Command:    req.Command,
			Path:       req.Path,
			Status:     res.status,
			Err:        res.errMsg,
			BytesIn:    in,
			BytesOut:   out,
			DurationMs: dur.Milliseconds(),
		})
	}
	var ev *zerolog.Event
	if res.status == proto.StatusSuccess {
		ev = log.Info()
	} else {
		ev = log.Warn().Str("err", res.errMsg)
	}
	ev.Str("remote", remote).
		Str("cmd", string(req.Command)).
		Str("path", req.Path).
		Str("status", proto.StatusName(res.status)).
		Int64("bytes_in", in).
		Int64("bytes_out", out).
		Dur("took", dur).
		Msg("request")
}
