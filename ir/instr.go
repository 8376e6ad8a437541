package ir

// The instruction set is a flat, serializable register-transfer form.
// Function bodies are instruction slices; jump targets are indices into
// the enclosing body. A branch whose condition is symbolic forks the
// executing task into both arms, which is where multiple traces for one
// opcode come from.

// Op identifies an instruction.
type Op byte

const (
	OpDecl   Op = 0x01 // declare local Dst, initialized to unit
	OpCopy   Op = 0x02 // Dst := Args[0]
	OpPrimop Op = 0x03 // Dst := primop Fn applied to Args
	OpCall   Op = 0x04 // Dst := call function Fn with Args
	OpJump   Op = 0x05 // goto Target
	OpBranch Op = 0x06 // if Args[0] goto Target; forks on symbolic condition
	OpReturn Op = 0x07 // path completes normally with Args[0] (or unit)
	OpFail   Op = 0x08 // path completes at an assertion failure, Msg describes it
)

// ExpKind discriminates Exp.
type ExpKind byte

const (
	ExpId  ExpKind = iota // read the variable named by Id
	ExpLit                // the literal value Lit
)

// Exp is an instruction operand.
type Exp struct {
	Kind ExpKind `cbor:"k"`
	Id   Sym     `cbor:"i,omitempty"`
	Lit  Val     `cbor:"v,omitempty"`
}

// Id builds a variable-reference operand.
func Id(sym Sym) Exp { return Exp{Kind: ExpId, Id: sym} }

// Lit builds a literal operand.
func Lit(v Val) Exp { return Exp{Kind: ExpLit, Lit: v} }

// Instr is one instruction. Fields beyond Op are meaningful only for
// the opcodes that use them.
type Instr struct {
	Op     Op     `cbor:"op"`
	Dst    Sym    `cbor:"d,omitempty"`
	Fn     Sym    `cbor:"f,omitempty"`
	Args   []Exp  `cbor:"a,omitempty"`
	Target int    `cbor:"t,omitempty"`
	Msg    string `cbor:"m,omitempty"`
}

// Fn is a function definition: parameter symbols and a body executed
// from index zero.
type Fn struct {
	Params []Sym   `cbor:"p"`
	Body   []Instr `cbor:"b"`
}
