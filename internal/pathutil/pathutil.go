package pathutil

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidArgument is returned for paths that could reach outside a device root.
var ErrInvalidArgument = errors.New("invalid argument")

// CheckTraversal rejects ".", "./" and anything containing "..".
//
// This is the guard RM applies before touching any device: removing "." would
// wipe a whole device root and ".." could climb out of it.
func CheckTraversal(p string) error {
	if p == "." || p == "./" || strings.Contains(p, "..") {
		return ErrInvalidArgument
	}
	return nil
}

// CheckStrict is CheckTraversal plus a character check. It is used for every
// command when strict path checking is enabled.
//
// Rejected: NUL, ASCII control characters and DEL, and any path that names the
// device root itself ("", "/", "//", "/./").
func CheckStrict(p string) error {
	if path.Clean("/"+p) == "/" {
		return ErrInvalidArgument
	}
	if err := CheckTraversal(p); err != nil {
		return err
	}
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c < 0x20 || c == 0x7F {
			return fmt.Errorf("%w: control character 0x%02x", ErrInvalidArgument, c)
		}
	}
	return nil
}
