package server

import (
	"slices"
	"time"

	"github.com/thud/isla/executor"
	"github.com/thud/isla/ir"
	"github.com/thud/isla/wire"
)

// clientEntry is the architecture's designated entry point: a function
// taking the opcode under analysis as its sole argument.
var clientEntry = ir.Zencode("isla_client")

// executeOpcode fans one opcode out to the worker pool and streams the
// resulting traces. The response stream is StartTraces, one Trace per
// completed path in completion order, then EndTraces — or, if any path
// reports an error, the drain stops there and the error becomes the
// session's terminal result. Results still queued or in flight at that
// point are discarded.
func (s *Session) executeOpcode(opcode ir.B64) error {
	entrySym, ok := s.shared.Symtab.Lookup(clientEntry)
	if !ok {
		return &CommandError{Reason: "Architecture does not define " + clientEntry}
	}
	fn, err := s.shared.Function(entrySym)
	if err != nil {
		return &CommandError{Reason: err.Error()}
	}

	task := executor.NewLocalFrame(fn, []ir.Val{ir.MakeBits(opcode)}).
		AddLets(s.lets).
		AddRegs(s.regs).
		Task(0)
	queue := executor.NewTraceQueue()

	// Sent before any result is known so the peer can start consuming
	// a streaming response.
	if err := wire.WriteResponse(s.stream, wire.StartTraces()); err != nil {
		return err
	}

	start := time.Now()
	go executor.Explore(s.numThreads, []executor.Task{task}, s.shared, queue)

	traces := 0
	for {
		result, ok := queue.Pop()
		if !ok {
			break
		}
		if result.Err != nil {
			return &CommandError{Reason: result.Err.Error()}
		}
		// The engine accumulates events newest-first; the peer wants
		// chronological order.
		events := slices.Clone(result.Events)
		slices.Reverse(events)
		buf, err := executor.WriteEvents(events, s.shared.Symtab)
		if err != nil {
			return &CommandError{Reason: err.Error()}
		}
		if err := wire.WriteResponse(s.stream, wire.TraceResponse(result.Failed, buf)); err != nil {
			return err
		}
		traces++
	}
	log.Infof("execution took %s, %d traces", time.Since(start), traces)

	return wire.WriteResponse(s.stream, wire.EndTraces())
}
