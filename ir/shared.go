package ir

import (
	"fmt"
)

// PrimopCtx is what a primop may ask of the executor while it runs.
type PrimopCtx interface {
	// Fresh allocates a new symbolic variable.
	Fresh() Var
}

// Primop is a primitive operation. A primop either computes a concrete
// result or, when its arguments are symbolic, returns a value built
// around a fresh variable from the context.
type Primop func(ctx PrimopCtx, args []Val) (Val, error)

// Bindings maps symbols to their initial values. Register and let
// bindings are built once at bootstrap and only read afterwards.
type Bindings map[Sym]Val

// Copy returns a shallow copy of the bindings.
func (b Bindings) Copy() Bindings {
	c := make(Bindings, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// SharedState is the immutable architecture description shared by
// reference across every execution worker: the symbol table, the
// function table, and the primop table. Nothing mutates it after
// InitializeArchitecture returns, so workers use it without locking.
type SharedState struct {
	Symtab    *Symtab
	Functions map[Sym]*Fn
	Primops   map[Sym]Primop
}

// Function returns the named function, or an error naming the missing
// symbol.
func (s *SharedState) Function(sym Sym) (*Fn, error) {
	fn, ok := s.Functions[sym]
	if !ok {
		return nil, fmt.Errorf("ir: no function %s", s.Symtab.Name(sym))
	}
	return fn, nil
}

// ---------------------------------------------------------------------------
// Standard primops
// ---------------------------------------------------------------------------

func wantArgs(name string, args []Val, n int) error {
	if len(args) != n {
		return fmt.Errorf("ir: primop %s wants %d arguments, got %d", name, n, len(args))
	}
	return nil
}

func anySymbolic(args []Val) bool {
	for _, a := range args {
		if a.IsSymbolic() {
			return true
		}
	}
	return false
}

// binaryBits lifts a concrete B64 operation into a primop that goes
// symbolic when either argument is symbolic.
func binaryBits(name string, op func(a, b B64) B64) Primop {
	return func(ctx PrimopCtx, args []Val) (Val, error) {
		if err := wantArgs(name, args, 2); err != nil {
			return Unit, err
		}
		if anySymbolic(args) {
			return MakeSym(ctx.Fresh()), nil
		}
		if args[0].Kind != ValBits || args[1].Kind != ValBits {
			return Unit, fmt.Errorf("ir: primop %s wants bit-vectors, got %s and %s", name, args[0], args[1])
		}
		return MakeBits(op(args[0].B, args[1].B)), nil
	}
}

// StandardPrimops builds the primop table, interning the primop names
// into the given symbol table.
func StandardPrimops(symtab *Symtab) map[Sym]Primop {
	ops := map[string]Primop{
		"eq_bits": func(ctx PrimopCtx, args []Val) (Val, error) {
			if err := wantArgs("eq_bits", args, 2); err != nil {
				return Unit, err
			}
			if anySymbolic(args) {
				return MakeSym(ctx.Fresh()), nil
			}
			return MakeBool(args[0].B == args[1].B), nil
		},
		"eq_bool": func(ctx PrimopCtx, args []Val) (Val, error) {
			if err := wantArgs("eq_bool", args, 2); err != nil {
				return Unit, err
			}
			if anySymbolic(args) {
				return MakeSym(ctx.Fresh()), nil
			}
			return MakeBool(args[0].Bool == args[1].Bool), nil
		},
		"not_bool": func(ctx PrimopCtx, args []Val) (Val, error) {
			if err := wantArgs("not_bool", args, 1); err != nil {
				return Unit, err
			}
			if anySymbolic(args) {
				return MakeSym(ctx.Fresh()), nil
			}
			return MakeBool(!args[0].Bool), nil
		},
		"and_bool": func(ctx PrimopCtx, args []Val) (Val, error) {
			if err := wantArgs("and_bool", args, 2); err != nil {
				return Unit, err
			}
			if anySymbolic(args) {
				return MakeSym(ctx.Fresh()), nil
			}
			return MakeBool(args[0].Bool && args[1].Bool), nil
		},
		"or_bool": func(ctx PrimopCtx, args []Val) (Val, error) {
			if err := wantArgs("or_bool", args, 2); err != nil {
				return Unit, err
			}
			if anySymbolic(args) {
				return MakeSym(ctx.Fresh()), nil
			}
			return MakeBool(args[0].Bool || args[1].Bool), nil
		},
		"add_bits": binaryBits("add_bits", B64.Add),
		"sub_bits": binaryBits("sub_bits", B64.Sub),
		"and_bits": binaryBits("and_bits", B64.And),
		"or_bits":  binaryBits("or_bits", B64.Or),
		"xor_bits": binaryBits("xor_bits", B64.Xor),
		"not_bits": func(ctx PrimopCtx, args []Val) (Val, error) {
			if err := wantArgs("not_bits", args, 1); err != nil {
				return Unit, err
			}
			if anySymbolic(args) {
				return MakeSym(ctx.Fresh()), nil
			}
			if args[0].Kind != ValBits {
				return Unit, fmt.Errorf("ir: primop not_bits wants a bit-vector, got %s", args[0])
			}
			return MakeBits(args[0].B.Not()), nil
		},
		"undefined_bool": func(ctx PrimopCtx, args []Val) (Val, error) {
			// An architecturally unconstrained boolean: always symbolic.
			return MakeSym(ctx.Fresh()), nil
		},
		"undefined_bits": func(ctx PrimopCtx, args []Val) (Val, error) {
			return MakeSym(ctx.Fresh()), nil
		},
	}
	table := make(map[Sym]Primop, len(ops))
	for name, op := range ops {
		table[symtab.Intern(Zencode(name))] = op
	}
	return table
}
