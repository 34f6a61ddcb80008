// Package term implements the per-terminal input line state and the
// VGA text-mode screen writer, grounded on the original terminal
// driver's keyboard_buffer/read_buffer/read_ready dance. Screen bytes
// are code page 437 (the character set a real VGA text-mode adapter
// glyphs), so writes of non-ASCII runes go through
// golang.org/x/text/encoding/charmap before landing in the video
// window.
package term

import (
	"sync"

	"golang.org/x/text/encoding/charmap"

	"github.com/bjackson/ece391mp/defs"
	"github.com/bjackson/ece391mp/limits"
)

const (
	/// Cols is the VGA text mode column count.
	Cols = 80
	/// Rows is the VGA text mode row count.
	Rows = 25
	/// CellBytes is the size of one text-mode cell: character + attribute.
	CellBytes = 2
	/// ScreenBytes is the size of one full screen in bytes.
	ScreenBytes = Cols * Rows * CellBytes

	/// DefaultAttr is the attribute byte used for every cell this
	/// module writes: light grey on black, the BIOS default.
	DefaultAttr = 0x07
)

var cp437 = charmap.CodePage437.NewEncoder()

// toCell encodes r as the CP437 byte a VGA adapter would glyph-render,
// falling back to '?' for runes the code page cannot represent.
func toCell(r rune) byte {
	b, err := cp437.Bytes([]byte(string(r)))
	if err != nil || len(b) == 0 {
		return '?'
	}
	return b[0]
}

/// Screen_t is a VGA text-mode writer over a caller-resolved byte
/// window. Window is re-invoked on every Putc because the window a
/// terminal writes to changes under remap_video — the screen itself
/// holds no physical address, only cursor state.
type Screen_t struct {
	mu     sync.Mutex
	Window func() []byte
	row    int
	col    int
}

func (s *Screen_t) cellOffset(row, col int) int {
	return (row*Cols + col) * CellBytes
}

func (s *Screen_t) scroll(win []byte) {
	copy(win, win[Cols*CellBytes:])
	blank := win[(Rows-1)*Cols*CellBytes:]
	for i := 0; i < len(blank); i += CellBytes {
		blank[i] = ' '
		blank[i+1] = DefaultAttr
	}
}

/// Putc writes one rune at the current cursor position, advancing the
/// cursor and scrolling when it runs off the bottom row. A newline
/// moves to column 0 of the next row without writing a cell.
func (s *Screen_t) Putc(r rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	win := s.Window()

	if r == '\n' {
		s.row++
		s.col = 0
	} else {
		off := s.cellOffset(s.row, s.col)
		win[off] = toCell(r)
		win[off+1] = DefaultAttr
		s.col++
		if s.col == Cols {
			s.col = 0
			s.row++
		}
	}
	if s.row == Rows {
		s.scroll(win)
		s.row = Rows - 1
	}
}

/// Cursor returns the screen's current (row, col), for a terminal
/// switch that needs to save and later restore cursor position.
func (s *Screen_t) Cursor() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row, s.col
}

/// SetCursor repositions the cursor without touching screen contents.
func (s *Screen_t) SetCursor(row, col int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.row, s.col = row, col
}

/// Clear blanks the screen and resets the cursor to the top-left cell.
func (s *Screen_t) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	win := s.Window()
	for i := 0; i < len(win); i += CellBytes {
		win[i] = ' '
		win[i+1] = DefaultAttr
	}
	s.row, s.col = 0, 0
}

/// Terminal_t is one virtual terminal's keyboard input state: the
/// in-progress line buffer, the last completed line, an insertion
/// index, and the ready flag terminal_read spins on.
type Terminal_t struct {
	Index defs.Term_t

	mu        sync.Mutex
	cond      *sync.Cond
	line      [limits.LineMax]byte
	insert    int
	completed []byte
	ready     bool
}

/// NewTerminal returns an empty terminal for the given index.
func NewTerminal(idx defs.Term_t) *Terminal_t {
	t := &Terminal_t{Index: idx}
	t.cond = sync.NewCond(&t.mu)
	return t
}

/// WriteKey implements terminal_write_key: backspace erases one
/// character if the buffer isn't empty, newline finalizes the line and
/// sets the ready flag, and any other printable is appended if room
/// remains for the trailing newline.
func (t *Terminal_t) WriteKey(scr *Screen_t, key byte) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch key {
	case '\b':
		if t.insert > 0 {
			t.insert--
			t.line[t.insert] = 0
			scr.Putc('\b')
		}
		return 0
	case '\n':
		t.line[t.insert] = '\n'
		t.completed = append([]byte(nil), t.line[:t.insert+1]...)
		for i := range t.line {
			t.line[i] = 0
		}
		t.insert = 0
		scr.Putc('\n')
		t.ready = true
		t.cond.Broadcast()
		return 0
	default:
		if t.insert == limits.LineMax-1 {
			return defs.EINVAL
		}
		t.line[t.insert] = key
		t.insert++
		scr.Putc(rune(key))
		return 0
	}
}

/// Read implements terminal_read: it blocks until a newline-terminated
/// line is ready, then copies up to min(len(buf), LineMax) bytes,
/// consuming the ready flag.
func (t *Terminal_t) Read(buf []byte) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.ready {
		t.cond.Wait()
	}
	n := len(buf)
	if n > limits.LineMax {
		n = limits.LineMax
	}
	if n > len(t.completed) {
		n = len(t.completed)
	}
	copy(buf, t.completed[:n])
	t.ready = false
	return n, 0
}

/// Clear resets the terminal's input state and blanks its screen.
func (t *Terminal_t) Clear(scr *Screen_t) {
	t.mu.Lock()
	for i := range t.line {
		t.line[i] = 0
	}
	t.insert = 0
	t.completed = nil
	t.ready = false
	t.mu.Unlock()
	scr.Clear()
}

/// Write implements terminal_write: every byte in buf is rendered to
/// the screen in order.
func Write(scr *Screen_t, buf []byte) (int, defs.Err_t) {
	for _, b := range buf {
		scr.Putc(rune(b))
	}
	return len(buf), 0
}
