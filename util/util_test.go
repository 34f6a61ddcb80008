package util

import "testing"

func TestMinMax(t *testing.T) {
	if Min(3, 5) != 3 {
		t.Fatal("Min(3, 5) != 3")
	}
	if Max(3, 5) != 5 {
		t.Fatal("Max(3, 5) != 5")
	}
	if Min(uint8(9), uint8(2)) != 2 {
		t.Fatal("Min on uint8 failed")
	}
}

func TestRoundupRounddown(t *testing.T) {
	cases := []struct{ v, b, down, up int }{
		{0, 4096, 0, 0},
		{1, 4096, 0, 4096},
		{4096, 4096, 4096, 4096},
		{4097, 4096, 4096, 8192},
	}
	for _, c := range cases {
		if got := Rounddown(c.v, c.b); got != c.down {
			t.Errorf("Rounddown(%d, %d) = %d, want %d", c.v, c.b, got, c.down)
		}
		if got := Roundup(c.v, c.b); got != c.up {
			t.Errorf("Roundup(%d, %d) = %d, want %d", c.v, c.b, got, c.up)
		}
	}
}

func TestAligned(t *testing.T) {
	if !Aligned(8192, 4096) {
		t.Fatal("8192 should be aligned to 4096")
	}
	if Aligned(8193, 4096) {
		t.Fatal("8193 should not be aligned to 4096")
	}
}

func TestLe32RoundTrip(t *testing.T) {
	buf := make([]uint8, 8)
	Writele32(buf, 2, 0xdeadbeef)
	if got := Readle32(buf, 2); got != 0xdeadbeef {
		t.Fatalf("Readle32 = %#x, want 0xdeadbeef", got)
	}
}

func TestReadle32OutOfBoundsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Readle32 past the end of the slice should panic")
		}
	}()
	Readle32(make([]uint8, 2), 0)
}

func TestReadnWritenSizes(t *testing.T) {
	buf := make([]uint8, 16)
	for _, sz := range []int{1, 2, 4, 8} {
		Writen(buf, sz, 0, 0xff)
		if got := Readn(buf, sz, 0); got != 0xff {
			t.Errorf("Readn(sz=%d) = %#x, want 0xff", sz, got)
		}
	}
}
