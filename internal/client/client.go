// Package client speaks the mirrorstore command protocol: one TCP connection
// per operation, a request line, then a status byte and a payload.
package client

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"

	"mirrorstore/internal/proto"
)

// ErrRemote marks failures reported by the server (status 0x00).
var ErrRemote = errors.New("server reported failure")

// RemoteError carries the server's failure message.
type RemoteError struct {
	Command proto.Command
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return string(e.Command) + ": " + ErrRemote.Error()
	}
	return e.Message
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

type Client struct {
	addr   string
	dialer net.Dialer
}

func New(addr string) *Client {
	return &Client{addr: addr, dialer: net.Dialer{Timeout: 10 * time.Second}}
}

// do dials, sends the request line and reads the status byte. The caller owns
// the returned connection.
func (c *Client) do(ctx context.Context, cmd proto.Command, remote string) (net.Conn, byte, error) {
	if strings.ContainsAny(remote, " \t\r\n") || remote == "" {
		return nil, 0, errors.Errorf("invalid remote path %q", remote)
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, 0, errors.Wrap(err, "connect")
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	req := proto.Request{Command: cmd, Path: remote}
	if _, err := conn.Write(req.Line()); err != nil {
		stop()
		_ = conn.Close()
		return nil, 0, errors.Wrap(err, "send request")
	}
	st, err := proto.ReadStatus(conn)
	if err != nil {
		stop()
		_ = conn.Close()
		return nil, 0, err
	}
	return &ctxConn{Conn: conn, stop: stop}, st, nil
}

type ctxConn struct {
	net.Conn
	stop func() bool
}

func (c *ctxConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

// remoteError reads the rest of the stream as the failure message.
func remoteError(cmd proto.Command, r io.Reader) error {
	b, err := io.ReadAll(io.LimitReader(r, proto.MaxLineLen))
	if err != nil && len(b) == 0 {
		return errors.Wrap(err, "read error message")
	}
	return &RemoteError{Command: cmd, Message: strings.TrimRight(string(b), "\x00\n")}
}

// Get copies the remote file into w and returns the number of bytes received.
func (c *Client) Get(ctx context.Context, remote string, w io.Writer) (int64, error) {
	conn, st, err := c.do(ctx, proto.CmdGET, remote)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	if st != proto.StatusSuccess {
		return 0, remoteError(proto.CmdGET, conn)
	}
	n, err := io.Copy(w, conn)
	if err != nil {
		return n, errors.Wrap(err, "receive file")
	}
	return n, nil
}

// Info returns the server's metadata block for remote.
func (c *Client) Info(ctx context.Context, remote string) (string, error) {
	conn, st, err := c.do(ctx, proto.CmdINFO, remote)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if st != proto.StatusSuccess {
		return "", remoteError(proto.CmdINFO, conn)
	}
	b, err := io.ReadAll(conn)
	if err != nil {
		return "", errors.Wrap(err, "receive info")
	}
	return string(b), nil
}

// Mkdir creates a remote directory.
func (c *Client) Mkdir(ctx context.Context, remote string) error {
	return c.simple(ctx, proto.CmdMD, remote)
}

// Remove deletes a remote file or directory tree.
func (c *Client) Remove(ctx context.Context, remote string) error {
	return c.simple(ctx, proto.CmdRM, remote)
}

func (c *Client) simple(ctx context.Context, cmd proto.Command, remote string) error {
	conn, st, err := c.do(ctx, cmd, remote)
	if err != nil {
		return err
	}
	defer conn.Close()
	if st != proto.StatusSuccess {
		return remoteError(cmd, conn)
	}
	return nil
}

// Put uploads size bytes from r to remote.
func (c *Client) Put(ctx context.Context, remote string, r io.Reader, size int64) error {
	if size < 0 {
		return errors.Errorf("negative size %d", size)
	}
	conn, ack, err := c.do(ctx, proto.CmdPUT, remote)
	if err != nil {
		return err
	}
	defer conn.Close()
	if ack != proto.Ack {
		return remoteError(proto.CmdPUT, conn)
	}
	if _, err := conn.Write(proto.EncodeSize(uint64(size))); err != nil {
		return errors.Wrap(err, "send size")
	}
	if _, err := io.CopyN(conn, r, size); err != nil {
		return errors.Wrap(err, "send file")
	}
	st, err := proto.ReadStatus(conn)
	if err != nil {
		return err
	}
	if st != proto.StatusSuccess {
		return remoteError(proto.CmdPUT, conn)
	}
	return nil
}
