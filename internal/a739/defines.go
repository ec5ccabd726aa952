package a739

import "fmt"

// ControlCode is the 7-bit tag carried in the top byte of an A739
// payload. The set is closed; anything else decodes as ControlUnknown.
type ControlCode uint8

const (
	ControlUnknown ControlCode = 0x00
	CNTRL          ControlCode = 0x01 // line control word
	STX            ControlCode = 0x02 // start of record
	ETX            ControlCode = 0x03 // end of record, more follow
	EOT            ControlCode = 0x04 // end of record, last in batch
	ENQ            ControlCode = 0x05 // peer enquiry
	ACK            ControlCode = 0x06
	DC1            ControlCode = 0x11 // keypress / scratchpad character
	DC2            ControlCode = 0x12 // request to send
	DC3            ControlCode = 0x13 // clear to send
	NACK           ControlCode = 0x15
	SYN            ControlCode = 0x16
)

// RTS and CTS are the handshake names for DC2 and DC3.
const (
	RTS = DC2
	CTS = DC3
)

var controlNames = map[ControlCode]string{
	CNTRL: "CNTRL",
	STX:   "STX",
	ETX:   "ETX",
	EOT:   "EOT",
	ENQ:   "ENQ",
	ACK:   "ACK",
	DC1:   "DC1",
	DC2:   "RTS",
	DC3:   "CTS",
	NACK:  "NACK",
	SYN:   "SYN",
}

func (c ControlCode) String() string {
	if name, ok := controlNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CTRL(0x%02X)", uint8(c))
}

// Known reports whether c is one of the defined control codes.
func (c ControlCode) Known() bool {
	_, ok := controlNames[c]
	return ok
}

// RequestType is the mode requested by an ENQ.
type RequestType uint8

const (
	RequestData RequestType = 0
	RequestMenu RequestType = 1
)

func (r RequestType) String() string {
	switch r {
	case RequestData:
		return "Data"
	case RequestMenu:
		return "Menu"
	default:
		return fmt.Sprintf("Request(%d)", uint8(r))
	}
}

// Payload field layout, relative to the 23-bit no-SDI/no-SSM payload.
const (
	ControlShift = 16
	ControlMask  = 0x7F

	RequestTypeShift = 8
	RequestTypeMask  = 0xF

	AddressMask = 0xFF
)

// Well-known labels and display geometry
const (
	HeartbeatLabel = 0o172 // SAL advertisement label

	DefaultSAL = 0o004

	MaxLine   = 31
	MaxColumn = 24

	// ScratchpadAttr is the fixed display attribute sent with each
	// scratchpad character.
	ScratchpadAttr = 0x4
)

// Display colors
const (
	ColorCyan  = 1
	ColorAmber = 6
	ColorWhite = 7
)
