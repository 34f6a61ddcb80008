package circbuf

import "testing"

func TestPushPopOrder(t *testing.T) {
	cb := New(4)
	cb.Push(1)
	cb.Push(2)
	cb.Push(3)
	for _, want := range []uint8{1, 2, 3} {
		got, ok := cb.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
}

func TestFullDropsOnOverflow(t *testing.T) {
	cb := New(2)
	if !cb.Push(1) || !cb.Push(2) {
		t.Fatal("first two pushes into a capacity-2 buffer should succeed")
	}
	if cb.Push(3) {
		t.Fatal("push into a full buffer should be dropped")
	}
	if !cb.Full() {
		t.Fatal("buffer should report full")
	}
}

func TestEmptyPopFails(t *testing.T) {
	cb := New(2)
	if _, ok := cb.Pop(); ok {
		t.Fatal("Pop on an empty buffer should fail")
	}
}

func TestWraparound(t *testing.T) {
	cb := New(2)
	cb.Push(1)
	cb.Push(2)
	cb.Pop()
	cb.Push(3)
	got, _ := cb.Pop()
	if got != 2 {
		t.Fatalf("Pop() = %d, want 2", got)
	}
	got, _ = cb.Pop()
	if got != 3 {
		t.Fatalf("Pop() = %d, want 3", got)
	}
}

func TestUsedAndLeft(t *testing.T) {
	cb := New(4)
	cb.Push(1)
	cb.Push(2)
	if cb.Used() != 2 {
		t.Fatalf("Used() = %d, want 2", cb.Used())
	}
	if cb.Left() != 2 {
		t.Fatalf("Left() = %d, want 2", cb.Left())
	}
}
