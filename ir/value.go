package ir

import "fmt"

// B64 is a bit-vector of up to 64 bits. Opcodes are 32-bit-valued B64s;
// register contents may use the full width.
type B64 struct {
	Bits uint64 `cbor:"b"`
	Len  uint32 `cbor:"l"`
}

// FromU32 builds a 32-bit B64, the width of one instruction word.
func FromU32(v uint32) B64 {
	return B64{Bits: uint64(v), Len: 32}
}

// FromU64 builds a full-width B64.
func FromU64(v uint64) B64 {
	return B64{Bits: v, Len: 64}
}

func (b B64) mask() uint64 {
	if b.Len >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << b.Len) - 1
}

// Add returns b + o truncated to b's width.
func (b B64) Add(o B64) B64 {
	return B64{Bits: (b.Bits + o.Bits) & b.mask(), Len: b.Len}
}

// Sub returns b - o truncated to b's width.
func (b B64) Sub(o B64) B64 {
	return B64{Bits: (b.Bits - o.Bits) & b.mask(), Len: b.Len}
}

// And returns the bitwise and of b and o at b's width.
func (b B64) And(o B64) B64 {
	return B64{Bits: b.Bits & o.Bits, Len: b.Len}
}

// Or returns the bitwise or of b and o at b's width.
func (b B64) Or(o B64) B64 {
	return B64{Bits: (b.Bits | o.Bits) & b.mask(), Len: b.Len}
}

// Xor returns the bitwise exclusive or of b and o at b's width.
func (b B64) Xor(o B64) B64 {
	return B64{Bits: (b.Bits ^ o.Bits) & b.mask(), Len: b.Len}
}

// Not returns the bitwise complement of b at b's width.
func (b B64) Not() B64 {
	return B64{Bits: ^b.Bits & b.mask(), Len: b.Len}
}

// ZeroExtend widens b to length n, which must be >= b.Len.
func (b B64) ZeroExtend(n uint32) B64 {
	return B64{Bits: b.Bits, Len: n}
}

func (b B64) String() string {
	return fmt.Sprintf("0x%x:%d", b.Bits, b.Len)
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// Var is a symbolic variable identifier, allocated by the executor's
// solver state.
type Var uint32

// ValKind discriminates Val.
type ValKind byte

const (
	ValUnit ValKind = iota
	ValBits         // concrete bit-vector in B
	ValBool         // concrete boolean in Bool
	ValSym          // symbolic variable in Var
	ValStr          // string in Str (error messages, tool output)
)

// Val is a machine value: either concrete (unit, bit-vector, boolean,
// string) or a reference to a symbolic variable. The zero Val is unit.
type Val struct {
	Kind ValKind `cbor:"k"`
	B    B64     `cbor:"b,omitempty"`
	Bool bool    `cbor:"o,omitempty"`
	Var  Var     `cbor:"v,omitempty"`
	Str  string  `cbor:"s,omitempty"`
}

// Unit is the unit value.
var Unit = Val{Kind: ValUnit}

// MakeBits wraps a bit-vector as a value.
func MakeBits(b B64) Val { return Val{Kind: ValBits, B: b} }

// MakeBool wraps a boolean as a value.
func MakeBool(b bool) Val { return Val{Kind: ValBool, Bool: b} }

// MakeSym wraps a symbolic variable as a value.
func MakeSym(v Var) Val { return Val{Kind: ValSym, Var: v} }

// MakeStr wraps a string as a value.
func MakeStr(s string) Val { return Val{Kind: ValStr, Str: s} }

// IsSymbolic reports whether the value is a symbolic variable.
func (v Val) IsSymbolic() bool { return v.Kind == ValSym }

func (v Val) String() string {
	switch v.Kind {
	case ValUnit:
		return "()"
	case ValBits:
		return v.B.String()
	case ValBool:
		return fmt.Sprintf("%t", v.Bool)
	case ValSym:
		return fmt.Sprintf("v%d", v.Var)
	case ValStr:
		return fmt.Sprintf("%q", v.Str)
	}
	return "?"
}
