package proto

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// SizeFieldLen is the width of the PUT size field: an unsigned 64-bit integer
// in network byte order.
const SizeFieldLen = 8

// MaxLineLen bounds a request line; the server reads at most this much before
// parsing.
const MaxLineLen = 4096

// EncodeSize renders n as a PUT size field.
func EncodeSize(n uint64) []byte {
	var b [SizeFieldLen]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// ReadSize reads exactly one PUT size field from r.
func ReadSize(r io.Reader) (uint64, error) {
	var b [SizeFieldLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.Wrap(err, "read size field")
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// WriteStatus sends a bare status byte.
func WriteStatus(w io.Writer, st byte) error {
	_, err := w.Write([]byte{st})
	return err
}

// WriteFailure sends a failure status followed by a message.
func WriteFailure(w io.Writer, msg string) error {
	b := make([]byte, 0, 1+len(msg))
	b = append(b, StatusFailure)
	b = append(b, msg...)
	_, err := w.Write(b)
	return err
}

// ReadStatus reads the leading status byte of a response.
func ReadStatus(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.Wrap(err, "read status")
	}
	return b[0], nil
}
