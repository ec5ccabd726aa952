package display

import (
	"regexp"
	"strings"

	"github.com/dbehnke/mcdu429/internal/a739"
)

// Snapshot is one page as supplied by the host.
type Snapshot struct {
	Title      string
	PageID     string
	Scratchpad string
	Lines      [ContentLines]string
}

// Segment markers used by host page markup
const (
	boxMarker     = "[]"
	degreeMarker  = "`"
	rightSplitter = "¨"
	italicOpen    = "[I]"
	italicClose   = "[/I]"
)

var centerSpan = regexp.MustCompile(`\[m\](.*?)\[/m\]`)

// ParsedLine is a content line split into its placed segments.
type ParsedLine struct {
	Left   string
	Center string
	Right  string
	Color  uint8
	Attr   uint8
}

// ParseLine decodes one content line of host markup.
func ParseLine(s string) ParsedLine {
	p := ParsedLine{Color: a739.ColorWhite}
	if s == "" {
		return p
	}
	s = strings.ReplaceAll(s, boxMarker, "#")
	s = strings.ReplaceAll(s, degreeMarker, "°")

	if m := centerSpan.FindStringSubmatchIndex(s); m != nil {
		p.Center = s[m[2]:m[3]]
		s = s[:m[0]] + s[m[1]:]
	}

	parts := strings.SplitN(s, rightSplitter, 3)
	p.Left = parts[0]
	if len(parts) >= 2 {
		p.Right = parts[1]
	}

	if strings.Contains(s, italicOpen) || strings.Contains(s, italicClose) {
		p.Attr = 1
	}
	strip := strings.NewReplacer(italicOpen, "", italicClose, "")
	p.Left = strip.Replace(p.Left)
	p.Right = strip.Replace(p.Right)
	p.Center = strip.Replace(p.Center)

	if strings.Contains(strings.ToLower(s), "cyan") {
		p.Color = a739.ColorCyan
	}
	return p
}

// FormatRow lays out left, center and right segments on one row of
// Columns characters. Right is placed first, then left, then center, so
// the center segment wins any overlap.
func FormatRow(left, center, right string) string {
	buf := []rune(strings.Repeat(" ", Columns))
	put := func(start int, s []rune) {
		for i, r := range s {
			if start+i >= 0 && start+i < Columns {
				buf[start+i] = r
			}
		}
	}
	rr := truncate([]rune(right))
	put(max(0, Columns-len(rr)), rr)
	put(0, truncate([]rune(left)))
	cr := truncate([]rune(center))
	put(max(0, (Columns-len(cr))/2), cr)
	return string(buf)
}

func truncate(r []rune) []rune {
	if len(r) > Columns {
		return r[:Columns]
	}
	return r
}

// PadRight left-justifies s in a row of Columns characters.
func PadRight(s string) string {
	r := truncate([]rune(s))
	return string(r) + strings.Repeat(" ", Columns-len(r))
}

// Render lays out a snapshot as a full frame.
func Render(s Snapshot) Frame {
	f := BlankFrame()
	f.Lines[TitleLine] = LineRender{
		Text:   FormatRow("", strings.TrimSpace(s.Title), strings.TrimSpace(s.PageID)),
		Color:  a739.ColorWhite,
		Column: 1,
	}
	for i, raw := range s.Lines {
		p := ParseLine(raw)
		f.Lines[i+1] = LineRender{
			Text:   FormatRow(p.Left, p.Center, p.Right),
			Color:  p.Color,
			Column: 1,
			Attr:   p.Attr,
		}
	}
	f.Lines[ScratchpadLine] = LineRender{
		Text:   PadRight(strings.TrimSpace(s.Scratchpad)),
		Color:  a739.ColorWhite,
		Column: 1,
	}
	return f
}
