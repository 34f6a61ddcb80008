package current

import "testing"

func TestSetThenCurrentReturnsSameValue(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		SetCurrent(42)
		if v := Current(); v.(int) != 42 {
			t.Errorf("Current() = %v, want 42", v)
		}
		ClearCurrent()
	}()
	<-done
}

func TestCurrentWithoutSetPanics(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if recover() == nil {
				t.Error("Current() without SetCurrent should panic")
			}
		}()
		Current()
	}()
	<-done
}

func TestDoubleSetPanics(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		SetCurrent(1)
		defer ClearCurrent()
		defer func() {
			if recover() == nil {
				t.Error("second SetCurrent on the same goroutine should panic")
			}
		}()
		SetCurrent(2)
	}()
	<-done
}

func TestDistinctGoroutinesAreIsolated(t *testing.T) {
	const n = 8
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer func() { done <- struct{}{} }()
			SetCurrent(i)
			v := Current()
			if v.(int) != i {
				t.Errorf("goroutine %d saw Current() = %v", i, v)
			}
			ClearCurrent()
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
}

func TestClearWithoutSetPanics(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if recover() == nil {
				t.Error("ClearCurrent without SetCurrent should panic")
			}
		}()
		ClearCurrent()
	}()
	<-done
}
