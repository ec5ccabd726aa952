package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/dbehnke/mcdu429/internal/arinc"
)

// Channel range supported by the interface cards in use.
const (
	MinChannel = 0
	MaxChannel = 4
	Channels   = MaxChannel + 1
)

var (
	ErrInvalidChannel = errors.New("bus: channel index out of range")
	ErrNotOpen        = errors.New("bus: driver not open")
	ErrTxFull         = errors.New("bus: transmit queue full")
)

// RxWord is one received word with its receive timestamp.
type RxWord struct {
	Word      arinc.Word
	Timestamp time.Time
}

// Driver is the physical or simulated bus the engine talks through.
// Drain never blocks and returns an empty slice when nothing arrived;
// Send is fire-and-forget.
type Driver interface {
	IsReady() bool
	Drain(channel int) ([]RxWord, error)
	Send(channel int, word arinc.Word) error
	Close() error
}

// ValidateChannel rejects channel indices the hardware does not have.
func ValidateChannel(ch int) error {
	if ch < MinChannel || ch > MaxChannel {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return nil
}
