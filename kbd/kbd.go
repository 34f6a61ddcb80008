// Package kbd decodes raw keyboard scancodes into ASCII and recognizes
// the kernel's chord set, grounded on the original interrupt handler's
// scancode table and upcase_char shift map.
package kbd

// Scancodes for modifier keys and chords, matching the set-1 codes the
// original driver switches on.
const (
	leftShiftPress    = 0x2A
	rightShiftPress   = 0x36
	leftShiftRelease  = 0xAA
	rightShiftRelease = 0xB6
	controlPress      = 0x1D
	controlRelease    = 0x9D
	altPress          = 0x38
	altRelease        = 0xB8
	capsLockPress     = 0x3A

	f1 = 0x3B
	f2 = 0x3C
	f3 = 0x3D

	breakBit = 0x80
)

// scancodes maps a make-code (0x00..0x7F) to its unshifted ASCII
// character; 0x00 marks an unmapped code, reproduced verbatim from the
// original driver's table.
var scancodes = [128]byte{
	0x00, 0x00,
	'1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=',
	'\b', '\t',
	'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p',
	'[', ']', '\n', 0x00,
	'a', 's', 'd', 'f', 'g', 'h', 'j', 'k', 'l',
	';', '\'', '`', 0x00, 0x00,
	'z', 'x', 'c', 'v', 'b', 'n', 'm',
	',', '.', '/', 0x00, 0x00, 0x00, ' ', 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, '+', 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00,
}

// shiftPunct maps an unshifted punctuation character to its shifted
// form, exactly as the original upcase_char switch does.
var shiftPunct = map[byte]byte{
	'=': '+', '-': '_',
	'1': '!', '2': '@', '3': '#', '4': '$', '5': '%',
	'6': '^', '7': '&', '8': '*', '9': '(', '0': ')',
	'[': '{', ']': '}', '\\': '|',
	';': ':', '\'': '"', ',': '<', '.': '>', '/': '?', '`': '~',
}

func upcase(c byte) byte {
	if s, ok := shiftPunct[c]; ok {
		return s
	}
	return c
}

/// Modstate_t is the keyboard decoder's global modifier state: shift,
/// ctrl, alt, and caps are tracked process-wide, not per terminal.
type Modstate_t struct {
	leftShift, rightShift bool
	ctrl                  bool
	alt                   bool
	caps                  bool
}

/// Shifted reports whether letters should be produced uppercase and
/// punctuation in its shifted form.
func (m *Modstate_t) Shifted() bool {
	return m.leftShift || m.rightShift
}

/// Decoder_t turns scancodes into decoded keys and chord callbacks. It
/// holds no terminal-specific state — that lives in the term package —
/// only the global modifier bits and the registered chord handlers.
type Decoder_t struct {
	mod Modstate_t

	/// Sink receives every non-chord decoded key.
	Sink func(c byte)
	/// OnClear fires on Ctrl+L.
	OnClear func()
	/// OnInterrupt fires on Ctrl+C.
	OnInterrupt func()
	/// OnDebugPID fires on Ctrl+P.
	OnDebugPID func()
	/// OnSwitchTerm fires on Alt+F1..F3 with term in {0,1,2}.
	OnSwitchTerm func(term int)
}

/// Feed decodes one raw scancode byte, updating modifier state and
/// invoking the appropriate callback or Sink. It never blocks.
func (d *Decoder_t) Feed(sc uint8) {
	switch sc {
	case leftShiftPress:
		d.mod.leftShift = true
		return
	case rightShiftPress:
		d.mod.rightShift = true
		return
	case leftShiftRelease:
		d.mod.leftShift = false
		return
	case rightShiftRelease:
		d.mod.rightShift = false
		return
	case controlPress:
		d.mod.ctrl = true
		return
	case controlRelease:
		d.mod.ctrl = false
		return
	case altPress:
		d.mod.alt = true
		return
	case altRelease:
		d.mod.alt = false
		return
	case capsLockPress:
		d.mod.caps = !d.mod.caps
		return
	}

	if sc&breakBit != 0 {
		// Key release of a non-modifier key carries no ASCII meaning.
		return
	}

	if d.mod.alt {
		switch sc {
		case f1:
			if d.OnSwitchTerm != nil {
				d.OnSwitchTerm(0)
			}
			return
		case f2:
			if d.OnSwitchTerm != nil {
				d.OnSwitchTerm(1)
			}
			return
		case f3:
			if d.OnSwitchTerm != nil {
				d.OnSwitchTerm(2)
			}
			return
		}
	}

	if int(sc) >= len(scancodes) {
		return
	}
	key := scancodes[sc]
	if key == 0x00 {
		return
	}

	shifted := d.mod.Shifted()
	if (d.mod.caps || shifted) && key >= 'a' && key <= 'z' {
		key -= 'a' - 'A'
	}
	if shifted {
		key = upcase(key)
	}

	if d.mod.ctrl {
		switch key {
		case 'l', 'L':
			if d.OnClear != nil {
				d.OnClear()
			}
			return
		case 'c', 'C':
			if d.OnInterrupt != nil {
				d.OnInterrupt()
			}
			return
		case 'p', 'P':
			if d.OnDebugPID != nil {
				d.OnDebugPID()
			}
			return
		}
	}

	if d.Sink != nil {
		d.Sink(key)
	}
}
