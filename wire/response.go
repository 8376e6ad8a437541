package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Tag is the one-byte response discriminant. The values are fixed by
// the peer's reader and must never be renumbered.
type Tag byte

const (
	TagError       Tag = 0 // no payload
	TagVersion     Tag = 1 // length-prefixed version string
	TagStartTraces Tag = 2 // no payload
	TagTrace       Tag = 3 // outcome byte, then length-prefixed event bytes
	TagEndTraces   Tag = 4 // no payload
)

// ErrUnknownTag is returned by ReadResponse for a discriminant outside
// the closed set.
var ErrUnknownTag = errors.New("wire: unknown response tag")

// Response is one tagged response message. Only the fields relevant to
// the tag are meaningful.
type Response struct {
	Tag     Tag
	Version []byte // TagVersion
	Outcome bool   // TagTrace: set when the path ended at an assertion failure
	Events  []byte // TagTrace: serialized event trace, chronological order
}

// ErrorResponse builds the terminal error response.
func ErrorResponse() Response { return Response{Tag: TagError} }

// VersionResponse builds a version response.
func VersionResponse(version []byte) Response {
	return Response{Tag: TagVersion, Version: version}
}

// StartTraces builds the marker that opens a trace stream.
func StartTraces() Response { return Response{Tag: TagStartTraces} }

// TraceResponse builds one trace result.
func TraceResponse(outcome bool, events []byte) Response {
	return Response{Tag: TagTrace, Outcome: outcome, Events: events}
}

// EndTraces builds the marker that closes a successful trace stream.
func EndTraces() Response { return Response{Tag: TagEndTraces} }

// WriteResponse encodes one response. The trace encoding is the outcome
// byte first, then the length-prefixed events; the peer's reader
// depends on exactly this order.
func WriteResponse(w io.Writer, resp Response) error {
	switch resp.Tag {
	case TagError, TagStartTraces, TagEndTraces:
		_, err := w.Write([]byte{byte(resp.Tag)})
		return err
	case TagVersion:
		if _, err := w.Write([]byte{byte(TagVersion)}); err != nil {
			return err
		}
		return WriteMessage(w, resp.Version)
	case TagTrace:
		outcome := byte(0)
		if resp.Outcome {
			outcome = 1
		}
		if _, err := w.Write([]byte{byte(TagTrace), outcome}); err != nil {
			return err
		}
		return WriteMessage(w, resp.Events)
	}
	return fmt.Errorf("%w: %d", ErrUnknownTag, resp.Tag)
}

// ReadResponse decodes one response. The driver side of the protocol
// and the tests use it; the worker itself only writes.
func ReadResponse(r io.Reader) (Response, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Response{}, fmt.Errorf("wire: read tag: %w", err)
	}
	switch Tag(tag[0]) {
	case TagError:
		return ErrorResponse(), nil
	case TagStartTraces:
		return StartTraces(), nil
	case TagEndTraces:
		return EndTraces(), nil
	case TagVersion:
		version, err := readSlice(r)
		if err != nil {
			return Response{}, err
		}
		return VersionResponse(version), nil
	case TagTrace:
		var outcome [1]byte
		if _, err := io.ReadFull(r, outcome[:]); err != nil {
			return Response{}, fmt.Errorf("wire: read outcome: %w", err)
		}
		events, err := readSlice(r)
		if err != nil {
			return Response{}, err
		}
		return TraceResponse(outcome[0] != 0, events), nil
	}
	return Response{}, fmt.Errorf("%w: %d", ErrUnknownTag, tag[0])
}

// readSlice reads one length-prefixed byte slice without the lossy
// text decoding ReadMessage applies.
func readSlice(r io.Reader) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: read length: %w", err)
	}
	length := int32(binary.LittleEndian.Uint32(lengthBuf[:]))
	if length < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeLength, length)
	}
	buf := make([]byte, int(length))
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("wire: read body: %w", err)
	}
	return buf, nil
}
