package transport

import (
	"strings"

	"github.com/dbehnke/mcdu429/internal/a739"
)

const clrText = "CLR"

// Scratchpad is the line the crew types into. Keys arrive as DC1 words
// and the buffer is echoed back one character at a time.
type Scratchpad struct {
	buf     []byte
	showCLR bool
	sentLen int
	dirty   bool
}

func NewScratchpad() *Scratchpad {
	return &Scratchpad{}
}

// Apply edits the buffer for one keypress. Unknown key codes are
// ignored and reported as false.
func (p *Scratchpad) Apply(k a739.Keypress) bool {
	key, ok := a739.LookupKey(k.Key)
	if !ok {
		return false
	}
	if key.Code == a739.KeyCLR {
		switch {
		case p.showCLR:
			p.buf = p.buf[:0]
			p.showCLR = false
		case len(p.buf) == 0:
			p.buf = append(p.buf[:0], clrText...)
			p.showCLR = true
		default:
			p.buf = p.buf[:len(p.buf)-1]
		}
		p.dirty = true
		return true
	}

	if p.showCLR {
		p.buf = p.buf[:0]
		p.showCLR = false
	}
	pos := min(int(k.Sequence), len(p.buf))
	if pos >= a739.MaxColumn {
		return false
	}
	if pos < len(p.buf) {
		p.buf[pos] = key.Char
	} else {
		p.buf = append(p.buf, key.Char)
	}
	p.dirty = true
	return true
}

// Dirty reports whether the buffer changed since the last Take.
func (p *Scratchpad) Dirty() bool {
	return p.dirty
}

func (p *Scratchpad) Text() string {
	return string(p.buf)
}

// Take returns the characters to transmit and clears the dirty flag.
// The result is blank padded to the length of the previous
// transmission so deleted characters get overwritten on the display.
// An empty buffer still yields one blank.
func (p *Scratchpad) Take() []byte {
	n := max(len(p.buf), p.sentLen, 1)
	out := make([]byte, 0, n)
	out = append(out, p.buf...)
	out = append(out, strings.Repeat(" ", n-len(out))...)
	p.sentLen = len(p.buf)
	p.dirty = false
	return out
}
