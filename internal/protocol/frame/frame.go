// Package frame owns stream framing: a 4-byte big-endian length prefix
// followed by exactly that many body bytes.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const PrefixLen = 4

var (
	ErrConnectionClosed = errors.New("frame: connection closed mid-frame")
	ErrEmptyFrame       = errors.New("frame: zero-length frame")
	ErrFrameTooLarge    = errors.New("frame: frame too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxFrameBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 8 * 1024 * 1024,
	}
}

// Read consumes one length-prefixed frame body from r. Partial reads
// are retried until the full body arrives; a peer close before the
// prefix or body completes is ErrConnectionClosed.
func Read(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrConnectionClosed
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if length > limits.MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrConnectionClosed
		}
		return nil, err
	}
	return body, nil
}

// Write emits body as one length-prefixed frame. The prefix always
// equals the exact byte length of body.
func Write(w io.Writer, body []byte, limits Limits) error {
	if len(body) == 0 {
		return ErrEmptyFrame
	}
	if uint64(len(body)) > uint64(limits.MaxFrameBytes) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	buf := make([]byte, PrefixLen+len(body))
	binary.BigEndian.PutUint32(buf[0:PrefixLen], uint32(len(body)))
	copy(buf[PrefixLen:], body)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}
