package executor

import (
	"github.com/thud/isla/ir"
)

// eventNode is one cell of the immutable event list. The list holds
// events newest-first so that forked frames share their common prefix
// instead of copying it; this is also why traces reach the consumer in
// reverse chronological order.
type eventNode struct {
	ev   Event
	next *eventNode
}

// activation is one entry of a frame's call stack.
type activation struct {
	body   []ir.Instr
	pc     int
	retDst ir.Sym // caller variable receiving the return value
}

// LocalFrame is the mutable state of one execution path: the variable
// environment, the call stack, and the accumulated events. Forking a
// frame copies the environment and stack but shares the event prefix.
type LocalFrame struct {
	vars   map[ir.Sym]ir.Val
	regs   map[ir.Sym]struct{} // symbols that are architectural registers
	stack  []activation
	events *eventNode
}

// NewLocalFrame builds a frame poised at the first instruction of fn
// with args bound to its parameters. Extra parameters are bound to
// unit; extra arguments are dropped.
func NewLocalFrame(fn *ir.Fn, args []ir.Val) *LocalFrame {
	f := &LocalFrame{
		vars: make(map[ir.Sym]ir.Val),
		regs: make(map[ir.Sym]struct{}),
	}
	for i, p := range fn.Params {
		if i < len(args) {
			f.vars[p] = args[i]
		} else {
			f.vars[p] = ir.Unit
		}
	}
	f.stack = []activation{{body: fn.Body}}
	return f
}

// AddLets seeds the frame with let bindings. Returns the frame for
// chaining.
func (f *LocalFrame) AddLets(lets ir.Bindings) *LocalFrame {
	for sym, val := range lets {
		f.vars[sym] = val
	}
	return f
}

// AddRegs seeds the frame with the initial register state. Reads and
// writes of these symbols are recorded as trace events. Returns the
// frame for chaining.
func (f *LocalFrame) AddRegs(regs ir.Bindings) *LocalFrame {
	for sym, val := range regs {
		f.vars[sym] = val
		f.regs[sym] = struct{}{}
	}
	return f
}

// Task wraps the frame as the pool's unit of work.
func (f *LocalFrame) Task(id int) Task {
	return Task{ID: id, frame: f}
}

// record prepends an event.
func (f *LocalFrame) record(ev Event) {
	f.events = &eventNode{ev: ev, next: f.events}
}

// collectEvents returns the accumulated events newest-first.
func (f *LocalFrame) collectEvents() []Event {
	var out []Event
	for n := f.events; n != nil; n = n.next {
		out = append(out, n.ev)
	}
	return out
}

// fork clones the frame for the untaken arm of a symbolic branch. The
// environment and call stack are copied; the event list is shared.
func (f *LocalFrame) fork() *LocalFrame {
	vars := make(map[ir.Sym]ir.Val, len(f.vars))
	for k, v := range f.vars {
		vars[k] = v
	}
	stack := make([]activation, len(f.stack))
	copy(stack, f.stack)
	return &LocalFrame{
		vars:   vars,
		regs:   f.regs, // register membership never changes after seeding
		stack:  stack,
		events: f.events,
	}
}

// Task is one schedulable execution path.
type Task struct {
	ID    int
	frame *LocalFrame
}
