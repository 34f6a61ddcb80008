package main

// This file turns a raw byte read from a terminal in character mode
// back into the make-code sequence kbd.Decoder_t.Feed expects, the
// inverse of kbd's scancodes/shiftPunct tables. Alt+F1..F3 terminal
// switching has no reliable single-byte representation across
// terminal emulators and is not reachable from this loader; it
// remains exercisable through Kernel_t.SwitchTerminal directly.
const (
	scLeftShiftPress   = 0x2A
	scLeftShiftRelease = 0xAA
	scControlPress     = 0x1D
	scControlRelease   = 0x9D
	scBackspace        = 0x0E
	scTab              = 0x0F
	scEnter            = 0x1C
	scSpace            = 0x39
)

// baseScancode maps the unshifted character kbd.go's scancodes table
// produces back to the make-code that produces it.
var baseScancode = map[byte]uint8{
	'1': 0x02, '2': 0x03, '3': 0x04, '4': 0x05, '5': 0x06,
	'6': 0x07, '7': 0x08, '8': 0x09, '9': 0x0A, '0': 0x0B,
	'-': 0x0C, '=': 0x0D,
	'q': 0x10, 'w': 0x11, 'e': 0x12, 'r': 0x13, 't': 0x14,
	'y': 0x15, 'u': 0x16, 'i': 0x17, 'o': 0x18, 'p': 0x19,
	'[': 0x1A, ']': 0x1B,
	'a': 0x1E, 's': 0x1F, 'd': 0x20, 'f': 0x21, 'g': 0x22,
	'h': 0x23, 'j': 0x24, 'k': 0x25, 'l': 0x26,
	';': 0x27, '\'': 0x28, '`': 0x29,
	'z': 0x2C, 'x': 0x2D, 'c': 0x2E, 'v': 0x2F, 'b': 0x30,
	'n': 0x31, 'm': 0x32,
	',': 0x33, '.': 0x34, '/': 0x35,
}

// shiftedToBase inverts kbd.go's shiftPunct table.
var shiftedToBase = map[byte]byte{
	'+': '=', '_': '-',
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5',
	'^': '6', '&': '7', '*': '8', '(': '9', ')': '0',
	'{': '[', '}': ']',
	':': ';', '"': '\'', '<': ',', '>': '.', '?': '/', '~': '`',
}

// asciiToScancodes translates one raw input byte into the scancode
// press (and, for anything needing the shift modifier, release)
// sequence that produces it.
func asciiToScancodes(c byte) []uint8 {
	switch c {
	case '\r', '\n':
		return []uint8{scEnter}
	case '\b', 0x7f: // backspace or DEL
		return []uint8{scBackspace}
	case '\t':
		return []uint8{scTab}
	case ' ':
		return []uint8{scSpace}
	case 0x03: // Ctrl+C
		return []uint8{scControlPress, baseScancode['c'], scControlRelease}
	case 0x0C: // Ctrl+L
		return []uint8{scControlPress, baseScancode['l'], scControlRelease}
	case 0x10: // Ctrl+P
		return []uint8{scControlPress, baseScancode['p'], scControlRelease}
	}

	if c >= 'A' && c <= 'Z' {
		lower := c + ('a' - 'A')
		return []uint8{scLeftShiftPress, baseScancode[lower], scLeftShiftRelease}
	}
	if base, ok := shiftedToBase[c]; ok {
		return []uint8{scLeftShiftPress, baseScancode[base], scLeftShiftRelease}
	}
	if sc, ok := baseScancode[c]; ok {
		return []uint8{sc}
	}
	return nil
}
