package bus

import (
	"encoding/binary"
	"errors"

	"github.com/dbehnke/mcdu429/internal/arinc"
)

// SLIP framing bytes
const (
	slipEnd    = 0xC0
	slipEsc    = 0xDB
	slipEscEnd = 0xDC
	slipEscEsc = 0xDD
)

// Each frame on the serial adapter carries one word: channel byte plus
// the word, big-endian.
const framePayloadLen = 5

var errSlipEscape = errors.New("bus: bad SLIP escape sequence")

// stuffFrame encodes one channel/word pair as a SLIP frame.
func stuffFrame(ch int, w arinc.Word) []byte {
	var raw [framePayloadLen]byte
	raw[0] = byte(ch)
	binary.BigEndian.PutUint32(raw[1:], uint32(w))

	out := make([]byte, 0, 2*framePayloadLen+2)
	out = append(out, slipEnd)
	for _, b := range raw {
		switch b {
		case slipEnd:
			out = append(out, slipEsc, slipEscEnd)
		case slipEsc:
			out = append(out, slipEsc, slipEscEsc)
		default:
			out = append(out, b)
		}
	}
	return append(out, slipEnd)
}

// unstuff reverses SLIP escaping of a frame body (delimiters removed).
func unstuff(body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body))
	esc := false
	for _, b := range body {
		if !esc {
			if b == slipEsc {
				esc = true
			} else {
				out = append(out, b)
			}
			continue
		}
		switch b {
		case slipEscEnd:
			out = append(out, slipEnd)
		case slipEscEsc:
			out = append(out, slipEsc)
		default:
			return nil, errSlipEscape
		}
		esc = false
	}
	if esc {
		return nil, errSlipEscape
	}
	return out, nil
}

// frameDecoder accumulates serial bytes and yields complete frames.
type frameDecoder struct {
	buf []byte
}

// feed appends data and returns every complete, well-formed frame. Bad
// frames are counted and skipped.
func (d *frameDecoder) feed(data []byte, emit func(ch int, w arinc.Word)) (bad int) {
	for _, b := range data {
		if b != slipEnd {
			d.buf = append(d.buf, b)
			continue
		}
		if len(d.buf) == 0 {
			continue
		}
		raw, err := unstuff(d.buf)
		d.buf = d.buf[:0]
		if err != nil || len(raw) != framePayloadLen {
			bad++
			continue
		}
		emit(int(raw[0]), arinc.Word(binary.BigEndian.Uint32(raw[1:])))
	}
	return bad
}
