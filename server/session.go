// Package server runs one client session over a framed duplex stream:
// it reads requests one at a time, dispatches them, and streams tagged
// responses back. All outbound writes for a session go through the one
// session goroutine, so responses are never interleaved on the wire
// even while trace production is concurrent.
package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/thud/isla/ir"
	"github.com/thud/isla/isa"
	"github.com/thud/isla/wire"
)

var log = commonlog.GetLogger("isla.server")

// CommandError is a protocol-level failure: the request was readable
// but could not be served. It terminates the session after one Error
// response, unlike an I/O error, which terminates it silently.
type CommandError struct {
	Reason string
}

func (e *CommandError) Error() string {
	return e.Reason
}

// Session serves one connected client over a duplex stream.
type Session struct {
	stream     io.ReadWriter
	numThreads int
	shared     *ir.SharedState
	regs       ir.Bindings
	lets       ir.Bindings
	isaConfig  *isa.ISAConfig
	version    string
}

// New builds a session over the given stream. The architecture state
// is shared by reference with every execution worker and must not be
// mutated once the session starts.
func New(stream io.ReadWriter, numThreads int, arch *ir.Initialized, cfg *isa.ISAConfig, version string) *Session {
	return &Session{
		stream:     stream,
		numThreads: numThreads,
		shared:     arch.Shared,
		regs:       arch.Regs,
		lets:       arch.Lets,
		isaConfig:  cfg,
		version:    version,
	}
}

// Interact runs the request loop until the client stops, disconnects,
// or a request fails. A nil return is a clean termination (a stop
// request or the stream closing between requests). A *CommandError is
// a protocol-level failure the caller should report to the peer with
// one Error response; any other error is an I/O failure and nothing
// more can be sent.
func (s *Session) Interact() error {
	for {
		message, err := wire.ReadMessage(s.stream)
		if err != nil {
			// Closure at a message boundary is a normal hangup.
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		command, arg, hasArg := strings.Cut(strings.TrimSpace(message), " ")
		switch {
		case command == "version" && !hasArg:
			if err := wire.WriteResponse(s.stream, wire.VersionResponse([]byte(s.version))); err != nil {
				return err
			}

		case command == "stop" && !hasArg:
			return nil

		case command == "execute" && hasArg:
			word, err := strconv.ParseUint(arg, 16, 32)
			if err != nil {
				return &CommandError{Reason: fmt.Sprintf("Could not parse opcode %s", arg)}
			}
			if err := s.executeOpcode(ir.FromU32(uint32(word))); err != nil {
				return err
			}

		case command == "execute_asm" && hasArg:
			raw, err := isa.AssembleInstruction(arg, s.isaConfig)
			if err != nil {
				return &CommandError{Reason: fmt.Sprintf("Could not parse opcode %s: %v", arg, err)}
			}
			if len(raw) != 4 {
				return &CommandError{Reason: fmt.Sprintf("Assembler produced %d bytes for %s, want 4", len(raw), arg)}
			}
			opcode := ir.FromU32(binary.LittleEndian.Uint32(raw))
			if err := s.executeOpcode(opcode); err != nil {
				return err
			}

		default:
			return &CommandError{Reason: "Invalid command"}
		}
	}
}
