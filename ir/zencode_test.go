package ir

import "testing"

func TestZencode_PlainIdentifier(t *testing.T) {
	got := Zencode("isla_client")
	if got != "zisla_client" {
		t.Errorf("Zencode(isla_client) = %q, want %q", got, "zisla_client")
	}
}

func TestZencode_DoublesZ(t *testing.T) {
	got := Zencode("zero")
	if got != "zzzero" {
		t.Errorf("Zencode(zero) = %q, want %q", got, "zzzero")
	}
}

func TestZencode_EscapesPunctuation(t *testing.T) {
	got := Zencode("R.EL1")
	if got != "zRz2EEL1" {
		t.Errorf("Zencode(R.EL1) = %q, want %q", got, "zRz2EEL1")
	}
}

func TestZdecode_RoundTrip(t *testing.T) {
	names := []string{"isla_client", "zero", "R.EL1", "_PC", "zz", "a-b#c"}
	for _, name := range names {
		decoded, err := Zdecode(Zencode(name))
		if err != nil {
			t.Fatalf("Zdecode(Zencode(%q)) returned error: %v", name, err)
		}
		if decoded != name {
			t.Errorf("Zdecode(Zencode(%q)) = %q", name, decoded)
		}
	}
}

func TestZdecode_RejectsUnmangled(t *testing.T) {
	if _, err := Zdecode("plain"); err == nil {
		t.Error("Zdecode should reject a name without the z prefix")
	}
	if _, err := Zdecode(""); err == nil {
		t.Error("Zdecode should reject the empty string")
	}
}
