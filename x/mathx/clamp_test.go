package mathx

import "testing"

func TestClamp(t *testing.T) {
	if got := Clamp(70000, 0, 65535); got != 65535 {
		t.Fatalf("Clamp high: %d", got)
	}
	if got := Clamp(-5, 0, 65535); got != 0 {
		t.Fatalf("Clamp low: %d", got)
	}
	if got := Clamp(42, 0, 65535); got != 42 {
		t.Fatalf("Clamp pass-through: %d", got)
	}
	// swapped bounds
	if got := Clamp(42, 65535, 0); got != 42 {
		t.Fatalf("Clamp swapped bounds: %d", got)
	}
}

func TestBetween(t *testing.T) {
	if !Between(0x20, 0x08, 0x77) {
		t.Fatal("0x20 should be inside the scan window")
	}
	if Between(0x78, 0x08, 0x77) {
		t.Fatal("0x78 should be outside the scan window")
	}
}
