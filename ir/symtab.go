package ir

// Sym is an interned symbol. Symbols are dense indices into the symbol
// table, assigned in interning order.
type Sym uint32

// Symtab interns identifier strings to symbols. It is written to only
// during architecture initialization; afterwards every worker reads it
// concurrently without locking.
type Symtab struct {
	names []string
	table map[string]Sym
}

// NewSymtab creates an empty symbol table.
func NewSymtab() *Symtab {
	return &Symtab{table: make(map[string]Sym)}
}

// Intern returns the symbol for name, adding it if not present.
func (s *Symtab) Intern(name string) Sym {
	if sym, ok := s.table[name]; ok {
		return sym
	}
	sym := Sym(len(s.names))
	s.names = append(s.names, name)
	s.table[name] = sym
	return sym
}

// Lookup returns the symbol for name if it has been interned.
func (s *Symtab) Lookup(name string) (Sym, bool) {
	sym, ok := s.table[name]
	return sym, ok
}

// Name returns the string for sym, or "?" for an unknown symbol.
func (s *Symtab) Name(sym Sym) string {
	if int(sym) >= len(s.names) {
		return "?"
	}
	return s.names[sym]
}

// Len returns the number of interned symbols.
func (s *Symtab) Len() int {
	return len(s.names)
}
