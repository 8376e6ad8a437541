// Package wire implements the framed binary protocol spoken with the
// driver process: length-prefixed request messages in, tagged response
// messages out. The encoding is a fixed contract with the peer's reader
// and must not change.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNegativeLength is returned when a message declares a negative
	// length. The peer encodes lengths as signed 32-bit integers.
	ErrNegativeLength = errors.New("wire: negative message length")

	// ErrMessageTooLarge is returned when a payload does not fit the
	// signed 32-bit length prefix.
	ErrMessageTooLarge = errors.New("wire: message exceeds maximum length")
)

// ReadMessage reads one framed message: a 4-byte little-endian signed
// length followed by that many payload bytes. The payload is decoded as
// UTF-8 with invalid sequences replaced, so decoding never fails; short
// reads and negative lengths do.
func ReadMessage(r io.Reader) (string, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return "", fmt.Errorf("wire: read length: %w", err)
	}
	length := int32(binary.LittleEndian.Uint32(lengthBuf[:]))
	if length < 0 {
		return "", fmt.Errorf("%w: %d", ErrNegativeLength, length)
	}

	buf := make([]byte, int(length))
	if _, err := io.ReadFull(r, buf); err != nil {
		// ReadFull reports a close before the first body byte as plain
		// EOF, but the length prefix already committed the peer to a
		// body: this is a mid-message closure, not a frame boundary.
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", fmt.Errorf("wire: read body: %w", err)
	}
	return lossyString(buf), nil
}

// WriteMessage writes the 4-byte little-endian length of payload
// followed by the payload itself.
func WriteMessage(w io.Writer, payload []byte) error {
	if len(payload) > math.MaxInt32 {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	var lengthBuf [4]byte
	binary.LittleEndian.PutUint32(lengthBuf[:], uint32(int32(len(payload))))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("wire: write length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write body: %w", err)
	}
	return nil
}

// lossyString decodes UTF-8 with U+FFFD replacement for invalid bytes.
func lossyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
