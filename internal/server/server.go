package server

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"mirrorstore/internal/config"
	"mirrorstore/internal/fsops"
	"mirrorstore/internal/pathutil"
	"mirrorstore/internal/proto"
	"mirrorstore/internal/registry"
)

// Server serves the command protocol over a set of replicated devices.
//
// Every accepted connection carries exactly one request and is handled on its
// own goroutine, which is never joined. The registry is shared read-only.
type Server struct {
	reg *registry.Registry

	bufSize     int
	strictPaths bool

	// nil when connections are unbounded.
	sem *semaphore.Weighted

	stats   *statsHub
	history *history
}

func New(cfg config.Config, reg *registry.Registry) *Server {
	s := &Server{
		reg:         reg,
		bufSize:     cfg.BufferSize,
		strictPaths: cfg.StrictPaths,
		stats:       newStatsHub(),
		history:     newHistory(historySize),
	}
	if s.bufSize <= 0 {
		s.bufSize = fsops.ChunkSize
	}
	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}
	return s
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails for
// good. The listener is closed on return. In-flight connections are not waited
// for.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn().Err(err).Msg("accept: transient error")
				continue
			}
			return errors.Wrap(err, "accept")
		}

		if s.sem != nil {
			// Backpressure: wait for a free worker slot before reading.
			if err := s.sem.Acquire(ctx, 1); err != nil {
				_ = c.Close()
				return nil
			}
		}
		log.Debug().Str("remote", c.RemoteAddr().String()).Msg("client connected")
		go s.handleConn(c)
	}
}

// countingConn tracks bytes moved in each direction for stats.
type countingConn struct {
	net.Conn
	in, out atomic.Int64
}

func (c *countingConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.in.Add(int64(n))
	return n, err
}

func (c *countingConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.out.Add(int64(n))
	return n, err
}

// result is what a handler reports back to the dispatcher for logging.
type result struct {
	status byte
	errMsg string
}

func succeeded() result { return result{status: proto.StatusSuccess} }

func failed(msg string) result { return result{status: proto.StatusFailure, errMsg: msg} }

func (s *Server) handleConn(conn net.Conn) {
	if s.sem != nil {
		defer s.sem.Release(1)
	}
	defer conn.Close()

	start := time.Now()
	c := &countingConn{Conn: conn}
	remote := conn.RemoteAddr().String()

	buf := make([]byte, s.bufSize)
	n, err := c.Read(buf)
	if err != nil && n == 0 {
		if err != io.EOF {
			log.Warn().Err(err).Str("remote", remote).Msg("read request failed")
		}
		return
	}
	req, err := proto.ParseRequest(buf[:n])
	if err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("dropping connection")
		s.stats.addDropped()
		return
	}

	res := s.dispatch(c, req)
	s.record(remote, req, res, c.in.Load(), c.out.Load(), time.Since(start))
}

func (s *Server) dispatch(c io.ReadWriter, req proto.Request) result {
	if s.strictPaths {
		if err := pathutil.CheckStrict(req.Path); err != nil {
			_ = proto.WriteFailure(c, proto.MsgInvalidArgument)
			return failed(err.Error())
		}
	}
	switch req.Command {
	case proto.CmdGET:
		return s.opGET(c, req.Path)
	case proto.CmdINFO:
		return s.opINFO(c, req.Path)
	case proto.CmdMD:
		return s.opMD(c, req.Path)
	case proto.CmdPUT:
		return s.opPUT(c, req.Path)
	case proto.CmdRM:
		return s.opRM(c, req.Path)
	default:
		// ParseRequest only yields known commands.
		return failed("command not supported")
	}
}
