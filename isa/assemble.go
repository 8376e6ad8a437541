package isa

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoInstruction is returned when the assembled object contains no
// decodable instruction word.
var ErrNoInstruction = errors.New("isa: no instruction in assembler output")

// objdump prints one encoded instruction word per line of the .text
// disassembly, e.g. "   0:\td503201f \tnop".
var instrLine = regexp.MustCompile(`^\s*[0-9a-fA-F]+:\s+([0-9a-fA-F]{8})\b`)

// AssembleInstruction runs the configured assembler on one instruction
// mnemonic and returns the encoded instruction as raw little-endian
// bytes. A bad mnemonic surfaces as the assembler's own diagnostic.
func AssembleInstruction(instruction string, cfg *ISAConfig) ([]byte, error) {
	dir, err := os.MkdirTemp("", "isla-asm")
	if err != nil {
		return nil, fmt.Errorf("isa: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "instr.s")
	obj := filepath.Join(dir, "instr.o")
	if err := os.WriteFile(src, []byte("\t"+instruction+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("isa: write assembly source: %w", err)
	}

	asm := exec.Command(cfg.Assembler, "-o", obj, src)
	var asmErr strings.Builder
	asm.Stderr = &asmErr
	if err := asm.Run(); err != nil {
		diag := strings.TrimSpace(asmErr.String())
		if diag == "" {
			diag = err.Error()
		}
		return nil, fmt.Errorf("isa: could not assemble %q: %s", instruction, diag)
	}

	dump := exec.Command(cfg.Objdump, "-d", obj)
	out, err := dump.Output()
	if err != nil {
		return nil, fmt.Errorf("isa: objdump failed on %q: %w", instruction, err)
	}
	return extractOpcode(string(out))
}

// extractOpcode pulls the first encoded instruction word out of an
// objdump disassembly and returns it as little-endian bytes.
func extractOpcode(disassembly string) ([]byte, error) {
	for _, line := range strings.Split(disassembly, "\n") {
		m := instrLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		word, err := strconv.ParseUint(m[1], 16, 32)
		if err != nil {
			continue
		}
		bytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(bytes, uint32(word))
		return bytes, nil
	}
	return nil, ErrNoInstruction
}
