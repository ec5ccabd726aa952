package arinc

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Word is a 32-bit ARINC-429 bus word as it appears on the wire.
//
//	bit  31     parity (odd)
//	bits 30..29 SSM
//	bits 28..10 data
//	bits  9..8  SDI
//	bits  7..0  label, bit-reversed
type Word uint32

// Field masks and shifts
const (
	LabelMask   = 0xFF
	SDIMask     = 0x3
	SDIShift    = 8
	DataMask    = 0x7FFFF
	DataShift   = 10
	SSMMask     = 0x3
	SSMShift    = 29
	ParityShift = 31

	// PayloadMask covers SDI, data and SSM taken together (bits 8..30).
	PayloadMask  = 0x7FFFFF
	PayloadShift = 8
)

// Fields is the unpacked form of a Word. Label holds the logical
// (de-reversed) label value.
type Fields struct {
	Parity uint32
	SSM    uint32
	Data   uint32
	SDI    uint32
	Label  uint32
}

// ReverseBits mirrors the bit order of an 8-bit value. Labels travel
// MSB-first on the bus so every label is reversed on the way out and
// back on the way in.
func ReverseBits(x uint8) uint8 {
	return bits.Reverse8(x)
}

// Parity returns the bit that makes the total number of set bits in
// the lower 31 bits of w, plus the parity bit itself, odd.
func Parity(w uint32) uint32 {
	if bits.OnesCount32(w&0x7FFFFFFF)%2 == 0 {
		return 1
	}
	return 0
}

func withParity(w uint32) Word {
	w &= 0x7FFFFFFF
	return Word(w | Parity(w)<<ParityShift)
}

// Pack composes a word from a logical label, SDI and 19-bit data
// field. SSM is zero. Values wider than their field are masked.
func Pack(label, sdi, data uint32) Word {
	return PackSSM(label, sdi, 0, data)
}

// PackSSM is Pack with an explicit sign/status matrix.
func PackSSM(label, sdi, ssm, data uint32) Word {
	w := uint32(ReverseBits(uint8(label & LabelMask)))
	w |= (sdi & SDIMask) << SDIShift
	w |= (data & DataMask) << DataShift
	w |= (ssm & SSMMask) << SSMShift
	return withParity(w)
}

// PackPayload packs a 23-bit payload directly above the label, with no
// separate SDI or SSM field.
func PackPayload(label, payload uint32) Word {
	w := uint32(ReverseBits(uint8(label & LabelMask)))
	w |= (payload & PayloadMask) << PayloadShift
	return withParity(w)
}

// Unpack splits w into its fields.
func Unpack(w Word) Fields {
	v := uint32(w)
	return Fields{
		Parity: v >> ParityShift & 1,
		SSM:    v >> SSMShift & SSMMask,
		Data:   v >> DataShift & DataMask,
		SDI:    v >> SDIShift & SDIMask,
		Label:  uint32(ReverseBits(uint8(v & LabelMask))),
	}
}

// Label returns the logical label.
func (w Word) Label() uint32 {
	return uint32(ReverseBits(uint8(w & LabelMask)))
}

// RawLabel returns the label bits exactly as transmitted.
func (w Word) RawLabel() uint32 {
	return uint32(w & LabelMask)
}

// Payload returns bits 8..30.
func (w Word) Payload() uint32 {
	return uint32(w) >> PayloadShift & PayloadMask
}

// HasOddParity reports whether the word carries valid odd parity.
func (w Word) HasOddParity() bool {
	return bits.OnesCount32(uint32(w))%2 == 1
}

func (w Word) String() string {
	return fmt.Sprintf("%s:%06X", FormatOctalLabel(w.Label()), w.Payload())
}

// ParseOctalLabel parses labels written the way they appear in ICDs,
// for example "172" or "0o172".
func ParseOctalLabel(s string) (uint32, error) {
	if len(s) > 2 && (s[:2] == "0o" || s[:2] == "0O") {
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, 8, 8)
	if err != nil {
		return 0, fmt.Errorf("arinc: bad octal label %q: %w", s, err)
	}
	return uint32(v), nil
}

// FormatOctalLabel renders a logical label as three octal digits.
func FormatOctalLabel(label uint32) string {
	return fmt.Sprintf("%03o", label&LabelMask)
}
