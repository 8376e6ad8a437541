package ir

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// An architecture snapshot is a CBOR-encoded file holding the interned
// symbol list, register and let-binding defaults, and function bodies.
// It is produced ahead of time from the ISA definition and loaded once
// per process at bootstrap.

// ArchMagic identifies an architecture snapshot file.
const ArchMagic = "ISLA"

// ArchVersion is the snapshot format version this code reads.
const ArchVersion uint32 = 1

var (
	ErrArchMagic    = errors.New("ir: not an architecture snapshot")
	ErrArchVersion  = errors.New("ir: architecture snapshot version mismatch")
	ErrArchSymbol   = errors.New("ir: architecture snapshot references an unknown symbol")
	ErrArchFunction = errors.New("ir: duplicate function in architecture snapshot")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ir: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Binding pairs a symbol with its initial value.
type Binding struct {
	Sym Sym `cbor:"sym"`
	Val Val `cbor:"val"`
}

// NamedFn pairs a function symbol with its definition.
type NamedFn struct {
	Name Sym `cbor:"name"`
	Fn   Fn  `cbor:"fn"`
}

// Arch is a decoded architecture snapshot.
type Arch struct {
	Magic     string    `cbor:"magic"`
	Version   uint32    `cbor:"version"`
	Symbols   []string  `cbor:"symbols"`
	Registers []Binding `cbor:"registers"`
	Lets      []Binding `cbor:"lets"`
	Functions []NamedFn `cbor:"functions"`
}

// MarshalArch serializes an architecture snapshot to canonical CBOR.
func MarshalArch(a *Arch) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// LoadArchitecture reads and validates an architecture snapshot file.
func LoadArchitecture(path string) (*Arch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ir: cannot read architecture %s: %w", path, err)
	}
	var a Arch
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("ir: cannot decode architecture %s: %w", path, err)
	}
	if a.Magic != ArchMagic {
		return nil, fmt.Errorf("%w: got magic %q", ErrArchMagic, a.Magic)
	}
	if a.Version != ArchVersion {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrArchVersion, ArchVersion, a.Version)
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return &a, nil
}

// check validates that every symbol reference is within the symbol list.
func (a *Arch) check() error {
	n := Sym(len(a.Symbols))
	bad := func(sym Sym) bool { return sym >= n }
	for _, b := range a.Registers {
		if bad(b.Sym) {
			return fmt.Errorf("%w: register %d", ErrArchSymbol, b.Sym)
		}
	}
	for _, b := range a.Lets {
		if bad(b.Sym) {
			return fmt.Errorf("%w: let %d", ErrArchSymbol, b.Sym)
		}
	}
	for _, f := range a.Functions {
		if bad(f.Name) {
			return fmt.Errorf("%w: function %d", ErrArchSymbol, f.Name)
		}
		for _, p := range f.Fn.Params {
			if bad(p) {
				return fmt.Errorf("%w: parameter of %d", ErrArchSymbol, f.Name)
			}
		}
	}
	return nil
}

// Initialized is the once-per-process architecture state handed to the
// session: the shared state plus the initial register and let bindings.
type Initialized struct {
	Regs   Bindings
	Lets   Bindings
	Shared *SharedState
}

// InitializeArchitecture builds the immutable shared state from a
// snapshot. The returned state is never mutated afterwards.
func InitializeArchitecture(a *Arch) (*Initialized, error) {
	symtab := NewSymtab()
	for _, name := range a.Symbols {
		symtab.Intern(name)
	}

	functions := make(map[Sym]*Fn, len(a.Functions))
	for i := range a.Functions {
		f := &a.Functions[i]
		if _, dup := functions[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrArchFunction, symtab.Name(f.Name))
		}
		fn := f.Fn
		functions[f.Name] = &fn
	}

	regs := make(Bindings, len(a.Registers))
	for _, b := range a.Registers {
		regs[b.Sym] = b.Val
	}
	lets := make(Bindings, len(a.Lets))
	for _, b := range a.Lets {
		lets[b.Sym] = b.Val
	}

	return &Initialized{
		Regs: regs,
		Lets: lets,
		Shared: &SharedState{
			Symtab:    symtab,
			Functions: functions,
			Primops:   StandardPrimops(symtab),
		},
	}, nil
}
