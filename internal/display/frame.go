package display

import (
	"strings"

	"github.com/dbehnke/mcdu429/internal/a739"
)

// Screen geometry
const (
	LineCount    = 14
	Columns      = 24
	ContentLines = 12

	TitleLine      = 0
	ScratchpadLine = LineCount - 1
)

// LineRender is one fully laid out display line.
type LineRender struct {
	Text   string
	Color  uint8
	Column int
	Attr   uint8
}

// Frame is the complete display content, line 0 first.
type Frame struct {
	Lines [LineCount]LineRender
}

// BlankFrame returns a frame of white space-filled lines.
func BlankFrame() Frame {
	var f Frame
	for i := range f.Lines {
		f.Lines[i] = LineRender{Text: strings.Repeat(" ", Columns), Color: a739.ColorWhite, Column: 1}
	}
	return f
}

// TextRecord is one line update as handed to the record sender.
type TextRecord struct {
	Text   string
	Color  uint8
	Line   int
	Column int
	Attr   uint8
}

// NewTextRecord clamps line and column into range and masks color and
// attribute to three bits.
func NewTextRecord(text string, color uint8, line, column int, attr uint8) TextRecord {
	return TextRecord{
		Text:   text,
		Color:  color & 0x7,
		Line:   clamp(line, 1, a739.MaxLine),
		Column: clamp(column, 1, a739.MaxColumn),
		Attr:   attr & 0x7,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
