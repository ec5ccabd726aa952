package a739

import "github.com/dbehnke/mcdu429/internal/arinc"

// ControlOf returns the control code carried by w, or ControlUnknown.
func ControlOf(w arinc.Word) ControlCode {
	c := ControlCode(w.Payload() >> ControlShift & ControlMask)
	if !c.Known() {
		return ControlUnknown
	}
	return c
}

// Is reports whether w carries control code c.
func Is(w arinc.Word, c ControlCode) bool {
	return ControlOf(w) == c
}

// IsEnqFor reports whether w is an ENQ addressed to sal.
func IsEnqFor(w arinc.Word, sal uint32) bool {
	return w.Label() == sal&arinc.LabelMask && Is(w, ENQ)
}

// EnqRequest returns the mode requested by an ENQ word.
func EnqRequest(w arinc.Word) RequestType {
	return RequestType(w.Payload() >> RequestTypeShift & RequestTypeMask)
}

// EnqMAL returns the peer address an ENQ asks us to reply to.
func EnqMAL(w arinc.Word) uint32 {
	return uint32(arinc.ReverseBits(uint8(w.Payload() & AddressMask)))
}

// CTSMaxRecords returns the number of records the peer will accept.
func CTSMaxRecords(w arinc.Word) int {
	return int(w.Payload() & 0x7F)
}

// Keypress is a decoded DC1 word from the unit's keypad.
type Keypress struct {
	Key      uint8
	Sequence uint8
	Repeat   bool
}

// DecodeKeypress extracts key, sequence and repeat flag from a DC1 word.
func DecodeKeypress(w arinc.Word) Keypress {
	p := w.Payload()
	return Keypress{
		Key:      uint8(p >> 8 & 0x7F),
		Sequence: uint8(p & 0x7F),
		Repeat:   p>>15&1 == 1,
	}
}

// WordCount is the number of data words needed to carry n characters.
func WordCount(n int) int {
	return (n + 2) / 3
}

// Latin1 converts text to the unit's 8-bit character set. Runes
// outside Latin-1 become '?'.
func Latin1(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if r > 0xFF {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}

// RTSWord requests permission to send count records.
func RTSWord(mal uint32, req RequestType, count int) arinc.Word {
	payload := uint32(RTS)<<ControlShift |
		uint32(req)&RequestTypeMask<<RequestTypeShift |
		uint32(count)&0xFF
	return arinc.PackPayload(mal, payload)
}

// ACKWord acknowledges a keypress.
func ACKWord(mal uint32) arinc.Word {
	return arinc.PackPayload(mal, uint32(ACK)<<ControlShift)
}

// STXWord opens record recIdx. The count field covers CNTRL, the data
// words and the trailer.
func STXWord(mal uint32, recIdx, dataWords int) arinc.Word {
	count := uint32(dataWords+3) & 0xFF
	payload := uint32(STX)<<ControlShift | uint32(recIdx)&0xFF<<8 | count
	return arinc.PackPayload(mal, payload)
}

// EndWord closes record recIdx with ETX, or EOT when last is set.
func EndWord(mal uint32, recIdx int, last bool) arinc.Word {
	code := ETX
	if last {
		code = EOT
	}
	payload := uint32(code)<<ControlShift | uint32(recIdx)&0xFF<<8
	return arinc.PackPayload(mal, payload)
}

// DataWords packs text three characters per word, first character in
// the low byte. The final word is zero padded.
func DataWords(mal uint32, text string) []arinc.Word {
	b := Latin1(text)
	out := make([]arinc.Word, 0, WordCount(len(b)))
	for i := 0; i < len(b); i += 3 {
		var c1, c2, c3 uint32
		c1 = uint32(b[i])
		if i+1 < len(b) {
			c2 = uint32(b[i+1])
		}
		if i+2 < len(b) {
			c3 = uint32(b[i+2])
		}
		out = append(out, arinc.PackPayload(mal, c3<<16|c2<<8|c1))
	}
	return out
}

// ScratchpadWord carries one scratchpad character at 1-based position pos.
func ScratchpadWord(mal uint32, ch byte, pos int) arinc.Word {
	payload := uint32(DC1)<<ControlShift |
		uint32(ch)<<8 |
		ScratchpadAttr<<5 |
		uint32(pos)&0x1F
	return arinc.PackPayload(mal, payload)
}

// HeartbeatWord advertises sal on the heartbeat label.
func HeartbeatWord(sal uint32) arinc.Word {
	return arinc.PackPayload(HeartbeatLabel, uint32(arinc.ReverseBits(uint8(sal&arinc.LabelMask))))
}

// ENQWord builds an enquiry as the unit would send it. Used by the
// loopback peer and tests.
func ENQWord(sal, mal uint32, req RequestType) arinc.Word {
	payload := uint32(ENQ)<<ControlShift |
		uint32(req)&RequestTypeMask<<RequestTypeShift |
		uint32(arinc.ReverseBits(uint8(mal&AddressMask)))
	return arinc.PackPayload(sal, payload)
}

// CTSWord builds a clear-to-send advertising maxRecs.
func CTSWord(label uint32, maxRecs int) arinc.Word {
	return arinc.PackPayload(label, uint32(CTS)<<ControlShift|uint32(maxRecs)&0x7F)
}

// ResponseWord builds a bare ACK, NACK or SYN response.
func ResponseWord(label uint32, c ControlCode) arinc.Word {
	return arinc.PackPayload(label, uint32(c)<<ControlShift)
}

// KeypressWord builds a DC1 keypress as the unit would send it.
func KeypressWord(label uint32, k Keypress) arinc.Word {
	payload := uint32(DC1)<<ControlShift | uint32(k.Key&0x7F)<<8 | uint32(k.Sequence&0x7F)
	if k.Repeat {
		payload |= 1 << 15
	}
	return arinc.PackPayload(label, payload)
}
