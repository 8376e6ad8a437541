// Package executor explores every architecturally possible outcome of
// running one instruction against a partially symbolic machine state.
// A bounded worker pool steps tasks through the architecture IR,
// forking a task whenever it branches on a symbolic value, and delivers
// one trace per completed path through a shared queue.
package executor

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/thud/isla/ir"
)

// EventKind discriminates trace events.
type EventKind byte

const (
	EventSmtDefine EventKind = iota // fresh symbolic variable defined by a primop
	EventReadReg                    // architectural register read
	EventWriteReg                   // architectural register write
	EventBranch                     // branch on a symbolic condition
)

// Event is one entry in an execution trace. Fields beyond Kind are
// meaningful only for the kinds that use them.
type Event struct {
	Kind  EventKind `cbor:"k"`
	Sym   ir.Sym    `cbor:"s,omitempty"` // register or primop symbol
	Var   ir.Var    `cbor:"x,omitempty"` // defined variable or branch condition
	Val   ir.Val    `cbor:"v,omitempty"` // value read or written
	Args  []ir.Val  `cbor:"a,omitempty"` // primop arguments
	Taken bool      `cbor:"t,omitempty"` // which branch arm this path took
}

// wireEvent is the serialized form: symbols resolved to their names so
// the driver does not need the symbol table.
type wireEvent struct {
	Kind  EventKind `cbor:"kind"`
	Name  string    `cbor:"name,omitempty"`
	Var   ir.Var    `cbor:"var,omitempty"`
	Val   ir.Val    `cbor:"val,omitempty"`
	Args  []ir.Val  `cbor:"args,omitempty"`
	Taken bool      `cbor:"taken,omitempty"`
}

var eventEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("executor: failed to create CBOR enc mode: %v", err))
	}
	eventEncMode = em
}

// WriteEvents serializes a chronological event slice to canonical CBOR,
// resolving symbols through the given table. This is the payload of one
// Trace response.
func WriteEvents(events []Event, symtab *ir.Symtab) ([]byte, error) {
	out := make([]wireEvent, len(events))
	for i, ev := range events {
		out[i] = wireEvent{
			Kind:  ev.Kind,
			Var:   ev.Var,
			Val:   ev.Val,
			Args:  ev.Args,
			Taken: ev.Taken,
		}
		if ev.Kind != EventBranch {
			out[i].Name = symtab.Name(ev.Sym)
		}
	}
	data, err := eventEncMode.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("executor: marshal events: %w", err)
	}
	return data, nil
}
