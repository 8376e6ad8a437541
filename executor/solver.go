package executor

import "sync"

// Process-wide solver state. The executor only needs a fresh-variable
// supply from it, but the teardown must be explicit and run on every
// exit path of the process, so it is modeled as a finalizable global
// rather than left to garbage collection.
var solver struct {
	mu        sync.Mutex
	nextVar   uint32
	finalized bool
}

// freshVar allocates a process-unique symbolic variable.
func freshVar() uint32 {
	solver.mu.Lock()
	defer solver.mu.Unlock()
	if solver.finalized {
		panic("executor: fresh variable requested after Finalize")
	}
	v := solver.nextVar
	solver.nextVar++
	return v
}

// Finalize tears down the solver state. It is idempotent and must be
// called exactly once per process on the way out, whatever the exit
// path.
func Finalize() {
	solver.mu.Lock()
	defer solver.mu.Unlock()
	solver.finalized = true
}

// resetSolver reopens the solver state. Tests only.
func resetSolver() {
	solver.mu.Lock()
	defer solver.mu.Unlock()
	solver.nextVar = 0
	solver.finalized = false
}
