package caller

import (
	"strings"
	"testing"
)

func TestDumpContainsThisFile(t *testing.T) {
	s := Dump(0)
	if !strings.Contains(s, "caller_test.go") {
		t.Fatalf("Dump should mention caller_test.go, got %q", s)
	}
}

func TestDistinctDisabledByDefault(t *testing.T) {
	var d Distinct_t
	seen, s := d.Seen()
	if seen || s != "" {
		t.Fatalf("Seen() on a disabled tracker = (%v, %q), want (false, \"\")", seen, s)
	}
}

func TestDistinctReportsOnlyOnce(t *testing.T) {
	d := Distinct_t{Enabled: true}

	first, s := d.Seen()
	if !first || s == "" {
		t.Fatal("first call from this chain should be newly seen")
	}
	second, s2 := d.Seen()
	if second || s2 != "" {
		t.Fatal("second call from the same chain should not be reported again")
	}
}

func callFromHelper(d *Distinct_t) (bool, string) {
	return d.Seen()
}

func TestDistinctTracksSeparateChains(t *testing.T) {
	d := Distinct_t{Enabled: true}
	first, _ := d.Seen()
	second, _ := callFromHelper(&d)
	if !first || !second {
		t.Fatal("two distinct call chains should each be newly seen")
	}
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
}
