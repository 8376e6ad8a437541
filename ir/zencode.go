package ir

import (
	"fmt"
	"strings"
)

// Source-level identifiers are mangled into the symbol namespace with a
// "z" prefix so that generated names can never collide with user names.
// Alphanumerics and underscores pass through, a literal 'z' doubles to
// "zz", and any other byte escapes to "zXX" with two uppercase hex
// digits. Register names from the ISA config and the client entry point
// both go through this mangling before symbol lookup.

// Zencode mangles a source identifier into symbol-table form.
func Zencode(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 1)
	b.WriteByte('z')
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == 'z':
			b.WriteString("zz")
		case c == '_' || c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'y':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "z%02X", c)
		}
	}
	return b.String()
}

// Zdecode reverses Zencode. It returns an error if the input is not a
// well-formed mangled name.
func Zdecode(mangled string) (string, error) {
	if len(mangled) == 0 || mangled[0] != 'z' {
		return "", fmt.Errorf("ir: %q is not a mangled name", mangled)
	}
	var b strings.Builder
	rest := mangled[1:]
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c != 'z' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(rest) && rest[i+1] == 'z' {
			b.WriteByte('z')
			i++
			continue
		}
		if i+2 >= len(rest) {
			return "", fmt.Errorf("ir: truncated escape in %q", mangled)
		}
		var v byte
		if _, err := fmt.Sscanf(rest[i+1:i+3], "%02X", &v); err != nil {
			return "", fmt.Errorf("ir: bad escape in %q: %w", mangled, err)
		}
		b.WriteByte(v)
		i += 2
	}
	return b.String(), nil
}
