package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/thud/isla/ir"
)

// stepLimit bounds the number of instructions one path may execute.
// An IR loop that never terminates becomes a per-path error instead of
// a hung session.
const stepLimit = 1 << 20

// ErrStepLimit is the per-path error for exceeding stepLimit.
var ErrStepLimit = errors.New("executor: step limit exceeded")

// pool is the shared state of one Explore call.
type pool struct {
	shared *ir.SharedState
	queue  *TraceQueue

	mu          sync.Mutex
	idle        *sync.Cond
	pending     []Task
	outstanding int // tasks queued or being executed
	nextID      int
}

// Explore runs the worker pool over the seed tasks until every path,
// including paths forked along the way, has completed. Each completed
// path pushes exactly one TraceResult; the queue is closed when no
// producer remains, which is the consumer's completion signal. Explore
// returns once the queue is closed.
func Explore(numThreads int, tasks []Task, shared *ir.SharedState, queue *TraceQueue) {
	if numThreads < 1 {
		numThreads = 1
	}
	p := &pool{
		shared:      shared,
		queue:       queue,
		pending:     append([]Task(nil), tasks...),
		outstanding: len(tasks),
	}
	p.idle = sync.NewCond(&p.mu)
	for _, t := range tasks {
		if t.ID >= p.nextID {
			p.nextID = t.ID + 1
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < numThreads; i++ {
		wg.Add(1)
		go p.worker(&wg)
	}
	wg.Wait()
	queue.Close()
}

func (p *pool) worker(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		t, ok := p.take()
		if !ok {
			return
		}
		p.queue.Push(p.exec(t))
		p.finish()
	}
}

// take blocks until a task is available or no task can ever arrive.
func (p *pool) take() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.pending) == 0 && p.outstanding > 0 {
		p.idle.Wait()
	}
	if len(p.pending) == 0 {
		return Task{}, false
	}
	t := p.pending[0]
	p.pending = p.pending[1:]
	return t, true
}

// spawn enqueues a forked task.
func (p *pool) spawn(f *LocalFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := Task{ID: p.nextID, frame: f}
	p.nextID++
	p.pending = append(p.pending, t)
	p.outstanding++
	p.idle.Signal()
}

// finish retires one task; the last one out wakes every waiter so the
// pool can drain.
func (p *pool) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outstanding--
	if p.outstanding == 0 {
		p.idle.Broadcast()
	}
}

// ---------------------------------------------------------------------------
// Interpreter
// ---------------------------------------------------------------------------

// primopCtx hands a primop its fresh-variable supply and records the
// definition event for anything it allocates.
type primopCtx struct {
	frame *LocalFrame
	op    ir.Sym
	args  []ir.Val
}

func (c *primopCtx) Fresh() ir.Var {
	v := ir.Var(freshVar())
	c.frame.record(Event{Kind: EventSmtDefine, Sym: c.op, Var: v, Args: c.args})
	return v
}

// exec runs one task to completion and builds its result. Panics in
// primops or the interpreter become per-path errors.
func (p *pool) exec(t Task) (res TraceResult) {
	res.TaskID = t.ID
	defer func() {
		if r := recover(); r != nil {
			res = TraceResult{TaskID: t.ID, Err: fmt.Errorf("executor: task %d: %v", t.ID, r)}
		}
	}()

	f := t.frame
	fail := func(err error) TraceResult {
		return TraceResult{TaskID: t.ID, Err: err}
	}
	complete := func(failed bool) TraceResult {
		return TraceResult{TaskID: t.ID, Failed: failed, Events: f.collectEvents()}
	}

	for steps := 0; ; steps++ {
		if steps >= stepLimit {
			return fail(fmt.Errorf("%w for task %d", ErrStepLimit, t.ID))
		}
		act := &f.stack[len(f.stack)-1]
		if act.pc >= len(act.body) {
			// Fell off the end of a body: an implicit unit return.
			if done := f.ret(ir.Unit); done {
				return complete(false)
			}
			continue
		}
		instr := &act.body[act.pc]

		switch instr.Op {
		case ir.OpDecl:
			f.assign(instr.Dst, ir.Unit)
			act.pc++

		case ir.OpCopy:
			v, err := f.eval(instr.Args[0])
			if err != nil {
				return fail(err)
			}
			f.assign(instr.Dst, v)
			act.pc++

		case ir.OpPrimop:
			op, ok := p.shared.Primops[instr.Fn]
			if !ok {
				return fail(fmt.Errorf("executor: no primop %s", p.shared.Symtab.Name(instr.Fn)))
			}
			args, err := f.evalAll(instr.Args)
			if err != nil {
				return fail(err)
			}
			v, err := op(&primopCtx{frame: f, op: instr.Fn, args: args}, args)
			if err != nil {
				return fail(err)
			}
			f.assign(instr.Dst, v)
			act.pc++

		case ir.OpCall:
			fn, err := p.shared.Function(instr.Fn)
			if err != nil {
				return fail(err)
			}
			args, err := f.evalAll(instr.Args)
			if err != nil {
				return fail(err)
			}
			act.pc++ // resume here on return
			f.stack = append(f.stack, activation{body: fn.Body, retDst: instr.Dst})
			for i, param := range fn.Params {
				if i < len(args) {
					f.vars[param] = args[i]
				} else {
					f.vars[param] = ir.Unit
				}
			}

		case ir.OpJump:
			if instr.Target < 0 || instr.Target > len(act.body) {
				return fail(fmt.Errorf("executor: jump target %d out of range", instr.Target))
			}
			act.pc = instr.Target

		case ir.OpBranch:
			if instr.Target < 0 || instr.Target > len(act.body) {
				return fail(fmt.Errorf("executor: branch target %d out of range", instr.Target))
			}
			cond, err := f.eval(instr.Args[0])
			if err != nil {
				return fail(err)
			}
			switch cond.Kind {
			case ir.ValBool:
				if cond.Bool {
					act.pc = instr.Target
				} else {
					act.pc++
				}
			case ir.ValSym:
				// Fork: this frame takes the branch, the clone falls
				// through, and both arms keep exploring.
				clone := f.fork()
				clone.stack[len(clone.stack)-1].pc = act.pc + 1
				clone.record(Event{Kind: EventBranch, Var: cond.Var, Taken: false})
				p.spawn(clone)
				f.record(Event{Kind: EventBranch, Var: cond.Var, Taken: true})
				act.pc = instr.Target
			default:
				return fail(fmt.Errorf("executor: branch on non-boolean %s", cond))
			}

		case ir.OpReturn:
			v := ir.Unit
			if len(instr.Args) > 0 {
				var err error
				if v, err = f.eval(instr.Args[0]); err != nil {
					return fail(err)
				}
			}
			if done := f.ret(v); done {
				return complete(false)
			}

		case ir.OpFail:
			return complete(true)

		default:
			return fail(fmt.Errorf("executor: unknown instruction op %d", instr.Op))
		}
	}
}

// ret pops the current activation, storing v into the caller's
// destination. It reports true when the root activation returned and
// the path is complete.
func (f *LocalFrame) ret(v ir.Val) bool {
	if len(f.stack) == 1 {
		f.stack[0].pc = len(f.stack[0].body)
		return true
	}
	retDst := f.stack[len(f.stack)-1].retDst
	f.stack = f.stack[:len(f.stack)-1]
	f.assign(retDst, v)
	return false
}

// eval computes one operand, recording a read event when it names an
// architectural register.
func (f *LocalFrame) eval(e ir.Exp) (ir.Val, error) {
	switch e.Kind {
	case ir.ExpLit:
		return e.Lit, nil
	case ir.ExpId:
		v, ok := f.vars[e.Id]
		if !ok {
			return ir.Unit, fmt.Errorf("executor: unbound variable symbol %d", e.Id)
		}
		if _, isReg := f.regs[e.Id]; isReg {
			f.record(Event{Kind: EventReadReg, Sym: e.Id, Val: v})
		}
		return v, nil
	}
	return ir.Unit, fmt.Errorf("executor: unknown operand kind %d", e.Kind)
}

func (f *LocalFrame) evalAll(exps []ir.Exp) ([]ir.Val, error) {
	vals := make([]ir.Val, len(exps))
	for i, e := range exps {
		v, err := f.eval(e)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// assign stores into the environment, recording a write event when the
// destination is an architectural register.
func (f *LocalFrame) assign(dst ir.Sym, v ir.Val) {
	f.vars[dst] = v
	if _, isReg := f.regs[dst]; isReg {
		f.record(Event{Kind: EventWriteReg, Sym: dst, Val: v})
	}
}
