package limits

import "testing"

func TestSysatomicTakenGiven(t *testing.T) {
	var s Sysatomic_t
	s.Set(2)
	if !s.Taken(1) {
		t.Fatal("first Taken(1) of budget 2 should succeed")
	}
	if !s.Taken(1) {
		t.Fatal("second Taken(1) of budget 2 should succeed")
	}
	if s.Taken(1) {
		t.Fatal("third Taken(1) of exhausted budget should fail")
	}
	if s.Remaining() != 0 {
		t.Fatalf("Remaining() = %d, want 0", s.Remaining())
	}
	s.Given(1)
	if s.Remaining() != 1 {
		t.Fatalf("Remaining() after Given(1) = %d, want 1", s.Remaining())
	}
}

func TestSysatomicTakenDoesNotGoNegative(t *testing.T) {
	var s Sysatomic_t
	s.Set(1)
	if s.Taken(5) {
		t.Fatal("Taken(5) of budget 1 should fail")
	}
	if s.Remaining() != 1 {
		t.Fatalf("failed Taken should not consume the budget, Remaining() = %d", s.Remaining())
	}
}

func TestNewKernelBudgets(t *testing.T) {
	k := NewKernel()
	want := int64(MaxTasks * (FDPerProc - 2))
	if k.OpenFiles.Remaining() != want {
		t.Fatalf("OpenFiles = %d, want %d", k.OpenFiles.Remaining(), want)
	}
}
