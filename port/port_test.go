package port

import "testing"

func TestSimRoundTrip(t *testing.T) {
	s := NewSim()
	s.Out8(0x20, 0x11)
	if got := s.In8(0x20); got != 0x11 {
		t.Fatalf("In8(0x20) = %#x, want 0x11", got)
	}
}

func TestSimUnwrittenPortReadsZero(t *testing.T) {
	s := NewSim()
	if got := s.In8(0x3f8); got != 0 {
		t.Fatalf("In8 of untouched port = %#x, want 0", got)
	}
}

func TestSimLastWrite(t *testing.T) {
	s := NewSim()
	if _, ok := s.LastWrite(0x60); ok {
		t.Fatalf("LastWrite before any Out8 reported ok")
	}
	s.Out8(0x60, 0xaa)
	v, ok := s.LastWrite(0x60)
	if !ok || v != 0xaa {
		t.Fatalf("LastWrite(0x60) = (%#x, %v), want (0xaa, true)", v, ok)
	}
}
