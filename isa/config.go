// Package isa handles ISA configuration: the TOML config file naming
// the program counter register and the assembler/objdump toolchain,
// and the bridge that turns instruction mnemonics into opcodes through
// those tools.
package isa

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/BurntSushi/toml"

	"github.com/thud/isla/ir"
)

var (
	// ErrMissingOption is returned when a required config key is absent.
	ErrMissingOption = errors.New("isa: configuration option must be specified")

	// ErrUnknownRegister is returned when the configured program counter
	// does not exist in the loaded architecture.
	ErrUnknownRegister = errors.New("isa: register does not exist in supplied architecture")

	// ErrToolNotFound is returned when a configured tool is not on $PATH.
	ErrToolNotFound = errors.New("isa: tool not found in $PATH")
)

// ISAConfig is the validated configuration: the program counter mapped
// to its symbol, and resolved tool paths.
type ISAConfig struct {
	PC        ir.Sym
	Assembler string
	Objdump   string
}

// rawConfig is the TOML shape of the config file.
type rawConfig struct {
	PC        string `toml:"pc"`
	Assembler string `toml:"assembler"`
	Objdump   string `toml:"objdump"`
}

// findToolPath resolves a program name against $PATH.
func findToolPath(program string) (string, error) {
	path, err := exec.LookPath(program)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, program)
	}
	return path, nil
}

// LoadConfig reads and validates the ISA config file against the
// loaded architecture. The config names the program counter register
// by its source name; it is mangled and looked up in the shared
// state's symbol table.
func LoadConfig(path string, shared *ir.SharedState) (*ISAConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("isa: error when loading config %s: %w", path, err)
	}
	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("isa: error when parsing config %s: %w", path, err)
	}

	if raw.PC == "" {
		return nil, fmt.Errorf("%w: pc", ErrMissingOption)
	}
	pc, ok := shared.Symtab.Lookup(ir.Zencode(raw.PC))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegister, raw.PC)
	}

	if raw.Assembler == "" {
		return nil, fmt.Errorf("%w: assembler", ErrMissingOption)
	}
	assembler, err := findToolPath(raw.Assembler)
	if err != nil {
		return nil, err
	}

	if raw.Objdump == "" {
		return nil, fmt.Errorf("%w: objdump", ErrMissingOption)
	}
	objdump, err := findToolPath(raw.Objdump)
	if err != nil {
		return nil, err
	}

	return &ISAConfig{PC: pc, Assembler: assembler, Objdump: objdump}, nil
}
