package server

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thud/isla/ir"
	"github.com/thud/isla/isa"
	"github.com/thud/isla/wire"
)

// ---------------------------------------------------------------------------
// Test fixtures
// ---------------------------------------------------------------------------

// testInit builds architecture state whose client entry function is
// the given body.
func testInit(body func(s *ir.Symtab) ([]ir.Sym, []ir.Instr)) *ir.Initialized {
	symtab := ir.NewSymtab()
	entry := symtab.Intern(ir.Zencode("isla_client"))
	primops := ir.StandardPrimops(symtab)
	params, instrs := body(symtab)
	return &ir.Initialized{
		Regs: ir.Bindings{},
		Lets: ir.Bindings{},
		Shared: &ir.SharedState{
			Symtab:    symtab,
			Functions: map[ir.Sym]*ir.Fn{entry: {Params: params, Body: instrs}},
			Primops:   primops,
		},
	}
}

// singlePathInit: one trace per execute.
func singlePathInit() *ir.Initialized {
	return testInit(func(s *ir.Symtab) ([]ir.Sym, []ir.Instr) {
		opcode := s.Intern(ir.Zencode("opcode"))
		return []ir.Sym{opcode}, []ir.Instr{
			{Op: ir.OpReturn, Args: []ir.Exp{ir.Id(opcode)}},
		}
	})
}

// forkingInit: two traces per execute, one of them a failure path.
func forkingInit() *ir.Initialized {
	return testInit(func(s *ir.Symtab) ([]ir.Sym, []ir.Instr) {
		opcode := s.Intern(ir.Zencode("opcode"))
		cond := s.Intern(ir.Zencode("cond"))
		undef, _ := s.Lookup(ir.Zencode("undefined_bool"))
		return []ir.Sym{opcode}, []ir.Instr{
			{Op: ir.OpPrimop, Dst: cond, Fn: undef},
			{Op: ir.OpBranch, Args: []ir.Exp{ir.Id(cond)}, Target: 3},
			{Op: ir.OpReturn, Args: []ir.Exp{ir.Id(opcode)}},
			{Op: ir.OpFail, Msg: "assertion failed"},
		}
	})
}

// brokenInit: every path reports an error.
func brokenInit() *ir.Initialized {
	return testInit(func(s *ir.Symtab) ([]ir.Sym, []ir.Instr) {
		missing := s.Intern(ir.Zencode("no_such_primop"))
		return nil, []ir.Instr{
			{Op: ir.OpPrimop, Dst: missing, Fn: missing},
			{Op: ir.OpReturn},
		}
	})
}

// dummyISAConfig fills the config for sessions that never assemble.
func dummyISAConfig() *isa.ISAConfig {
	return &isa.ISAConfig{Assembler: "/nonexistent/as", Objdump: "/nonexistent/objdump"}
}

// startSession wires a session to one end of a pipe and runs Interact.
func startSession(t *testing.T, arch *ir.Initialized, cfg *isa.ISAConfig) (net.Conn, <-chan error) {
	t.Helper()
	client, srv := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		srv.Close()
	})
	sess := New(srv, 2, arch, cfg, "dev-test")
	done := make(chan error, 1)
	go func() {
		done <- sess.Interact()
	}()
	return client, done
}

func send(t *testing.T, conn net.Conn, request string) {
	t.Helper()
	if err := wire.WriteMessage(conn, []byte(request)); err != nil {
		t.Fatalf("WriteMessage(%q) returned error: %v", request, err)
	}
}

func recv(t *testing.T, conn net.Conn) wire.Response {
	t.Helper()
	resp, err := wire.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse returned error: %v", err)
	}
	return resp
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
		return nil
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestInteract_Version(t *testing.T) {
	client, done := startSession(t, singlePathInit(), dummyISAConfig())

	send(t, client, "version")
	resp := recv(t, client)
	if resp.Tag != wire.TagVersion {
		t.Fatalf("response tag = %d, want TagVersion", resp.Tag)
	}
	if string(resp.Version) != "dev-test" {
		t.Errorf("version = %q, want %q", resp.Version, "dev-test")
	}

	send(t, client, "stop")
	if err := waitDone(t, done); err != nil {
		t.Errorf("Interact returned %v, want nil", err)
	}
}

func TestInteract_Stop(t *testing.T) {
	client, done := startSession(t, singlePathInit(), dummyISAConfig())

	send(t, client, "stop")
	if err := waitDone(t, done); err != nil {
		t.Errorf("Interact returned %v, want nil", err)
	}
}

func TestInteract_Disconnect(t *testing.T) {
	client, done := startSession(t, singlePathInit(), dummyISAConfig())

	client.Close()
	if err := waitDone(t, done); err != nil {
		t.Errorf("Interact after hangup returned %v, want nil", err)
	}
}

func TestInteract_DisconnectMidMessage(t *testing.T) {
	client, done := startSession(t, singlePathInit(), dummyISAConfig())

	// Length prefix for an 8-byte body, then hangup before the body.
	// Unlike a close between requests, this is an I/O failure.
	if _, err := client.Write([]byte{8, 0, 0, 0}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	client.Close()

	err := waitDone(t, done)
	if err == nil {
		t.Fatal("Interact returned nil for a stream closed mid-message, want an I/O error")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Interact returned %v, want ErrUnexpectedEOF", err)
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		t.Errorf("Interact returned *CommandError %v, want an I/O error", cmdErr)
	}
}

func TestInteract_InvalidCommand(t *testing.T) {
	client, done := startSession(t, singlePathInit(), dummyISAConfig())

	send(t, client, "frobnicate")
	err := waitDone(t, done)
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Interact returned %v, want *CommandError", err)
	}
	if cmdErr.Reason != "Invalid command" {
		t.Errorf("reason = %q, want %q", cmdErr.Reason, "Invalid command")
	}
}

func TestInteract_RequestWhitespaceTrimmed(t *testing.T) {
	client, done := startSession(t, singlePathInit(), dummyISAConfig())

	send(t, client, "  version \n")
	if resp := recv(t, client); resp.Tag != wire.TagVersion {
		t.Errorf("response tag = %d, want TagVersion", resp.Tag)
	}
	send(t, client, "stop")
	waitDone(t, done)
}

// ---------------------------------------------------------------------------
// execute
// ---------------------------------------------------------------------------

func TestInteract_ExecuteSinglePath(t *testing.T) {
	client, done := startSession(t, singlePathInit(), dummyISAConfig())

	send(t, client, "execute d503201f")
	if resp := recv(t, client); resp.Tag != wire.TagStartTraces {
		t.Fatalf("first response tag = %d, want TagStartTraces", resp.Tag)
	}
	trace := recv(t, client)
	if trace.Tag != wire.TagTrace {
		t.Fatalf("second response tag = %d, want TagTrace", trace.Tag)
	}
	if trace.Outcome {
		t.Error("single straight-line path should not report a failure outcome")
	}
	if resp := recv(t, client); resp.Tag != wire.TagEndTraces {
		t.Fatalf("final response tag = %d, want TagEndTraces", resp.Tag)
	}

	// The session stays usable after a successful pipeline.
	send(t, client, "version")
	if resp := recv(t, client); resp.Tag != wire.TagVersion {
		t.Errorf("post-execute response tag = %d, want TagVersion", resp.Tag)
	}
	send(t, client, "stop")
	if err := waitDone(t, done); err != nil {
		t.Errorf("Interact returned %v, want nil", err)
	}
}

func TestInteract_ExecuteForkingPaths(t *testing.T) {
	client, done := startSession(t, forkingInit(), dummyISAConfig())

	send(t, client, "execute 14000000")
	if resp := recv(t, client); resp.Tag != wire.TagStartTraces {
		t.Fatalf("first response tag = %d, want TagStartTraces", resp.Tag)
	}
	var failures, completions int
	for i := 0; i < 2; i++ {
		trace := recv(t, client)
		if trace.Tag != wire.TagTrace {
			t.Fatalf("response #%d tag = %d, want TagTrace", i+1, trace.Tag)
		}
		if len(trace.Events) == 0 {
			t.Error("forked trace should carry event bytes")
		}
		if trace.Outcome {
			failures++
		} else {
			completions++
		}
	}
	if failures != 1 || completions != 1 {
		t.Errorf("failures=%d completions=%d, want 1 and 1", failures, completions)
	}
	if resp := recv(t, client); resp.Tag != wire.TagEndTraces {
		t.Fatalf("final response tag = %d, want TagEndTraces", resp.Tag)
	}
	send(t, client, "stop")
	waitDone(t, done)
}

func TestInteract_ExecuteBadHex(t *testing.T) {
	client, done := startSession(t, singlePathInit(), dummyISAConfig())

	send(t, client, "execute xyzzy")
	err := waitDone(t, done)
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Interact returned %v, want *CommandError", err)
	}
}

func TestInteract_ExecutePathError(t *testing.T) {
	client, done := startSession(t, brokenInit(), dummyISAConfig())

	send(t, client, "execute 0")
	if resp := recv(t, client); resp.Tag != wire.TagStartTraces {
		t.Fatalf("first response tag = %d, want TagStartTraces", resp.Tag)
	}
	err := waitDone(t, done)
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Interact returned %v, want *CommandError", err)
	}
}

// ---------------------------------------------------------------------------
// execute_asm
// ---------------------------------------------------------------------------

func asmISAConfig(t *testing.T, asBody, objdumpBody string) *isa.ISAConfig {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
			t.Fatal(err)
		}
		return path
	}
	return &isa.ISAConfig{
		Assembler: write("as", asBody),
		Objdump:   write("objdump", objdumpBody),
	}
}

func TestInteract_ExecuteAsm(t *testing.T) {
	cfg := asmISAConfig(t, "exit 0\n",
		"printf '   0:\\td503201f \\tnop\\n'\n")
	client, done := startSession(t, singlePathInit(), cfg)

	send(t, client, "execute_asm nop")
	if resp := recv(t, client); resp.Tag != wire.TagStartTraces {
		t.Fatalf("first response tag = %d, want TagStartTraces", resp.Tag)
	}
	if resp := recv(t, client); resp.Tag != wire.TagTrace {
		t.Fatalf("second response tag = %d, want TagTrace", resp.Tag)
	}
	if resp := recv(t, client); resp.Tag != wire.TagEndTraces {
		t.Fatalf("final response tag = %d, want TagEndTraces", resp.Tag)
	}
	send(t, client, "stop")
	waitDone(t, done)
}

func TestInteract_ExecuteAsmBadMnemonic(t *testing.T) {
	cfg := asmISAConfig(t, "echo 'unknown mnemonic' >&2\nexit 1\n", "exit 0\n")
	client, done := startSession(t, singlePathInit(), cfg)

	send(t, client, "execute_asm frobnicate x0")
	err := waitDone(t, done)
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Interact returned %v, want *CommandError", err)
	}
	// No StartTraces may have been sent before the failure: the next
	// thing on the wire after the session ends is nothing at all.
	if n := pendingBytes(client); n != 0 {
		t.Errorf("%d unread bytes on the wire, want 0", n)
	}
}

// pendingBytes drains whatever the session wrote before terminating.
func pendingBytes(conn net.Conn) int {
	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 256)
	total := 0
	for {
		n, err := conn.Read(buf)
		total += n
		if err != nil {
			return total
		}
	}
}
