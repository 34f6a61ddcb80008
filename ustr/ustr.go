// Package ustr provides a byte-slice string type used for filenames and
// shell command lines, avoiding an implicit NUL-termination assumption
// the way a raw Go string built from user memory would.
package ustr

/// Ustr is an immutable-by-convention byte string.
type Ustr []uint8

/// Eq compares two Ustr values for byte-for-byte equality.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

/// EqN compares up to n bytes of us and s, as read_dentry_by_name must:
/// names exactly n bytes wide have no trailing NUL, so a straight Eq
/// after truncation would wrongly reject them.
func (us Ustr) EqN(s Ustr, n int) bool {
	a := us
	if len(a) > n {
		a = a[:n]
	}
	b := s
	if len(b) > n {
		b = b[:n]
	}
	return a.Eq(b)
}

/// MkUstr creates an empty Ustr.
func MkUstr() Ustr {
	return Ustr{}
}

/// MkUstrSlice truncates buf at the first NUL byte, or returns it
/// unchanged if no NUL is present.
func MkUstrSlice(buf []uint8) Ustr {
	for i, b := range buf {
		if b == 0 {
			return buf[:i]
		}
	}
	return buf
}

/// IndexByte returns the index of the first occurrence of b in us, or -1.
func (us Ustr) IndexByte(b uint8) int {
	for i, v := range us {
		if v == b {
			return i
		}
	}
	return -1
}

/// String converts the Ustr to a Go string, for logging and tests.
func (us Ustr) String() string {
	return string(us)
}
