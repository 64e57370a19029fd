package proto

import (
	"strings"

	"github.com/pkg/errors"
)

// Command is one of the five request verbs.
type Command string

const (
	CmdGET  Command = "GET"
	CmdINFO Command = "INFO"
	CmdMD   Command = "MD"
	CmdPUT  Command = "PUT"
	CmdRM   Command = "RM"
)

// Commands lists every verb in a stable order.
var Commands = []Command{CmdGET, CmdINFO, CmdMD, CmdPUT, CmdRM}

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedRequest = errors.New("malformed request")
)

// ParseCommand matches s exactly (verbs are case-sensitive on the wire).
func ParseCommand(s string) (Command, bool) {
	for _, c := range Commands {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Request is one parsed request line.
type Request struct {
	Command Command
	Path    string
}

// ParseRequest takes the first two whitespace-separated tokens of b as
// command and path. Anything after them is ignored.
func ParseRequest(b []byte) (Request, error) {
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return Request{}, errors.Wrap(ErrMalformedRequest, "empty request")
	}
	cmd, ok := ParseCommand(fields[0])
	if !ok {
		return Request{}, errors.Wrapf(ErrUnknownCommand, "%q", fields[0])
	}
	if len(fields) < 2 {
		return Request{}, errors.Wrapf(ErrMalformedRequest, "%s without path", cmd)
	}
	return Request{Command: cmd, Path: fields[1]}, nil
}

// Line renders the request as sent by clients: "<CMD> <path>", no terminator.
func (r Request) Line() []byte {
	return []byte(string(r.Command) + " " + r.Path)
}
