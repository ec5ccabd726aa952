package bus

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RingBuffer is a fixed-capacity FIFO of received words. When full the
// newest word is dropped and counted so the oldest, already ordered
// words still reach the engine.
type RingBuffer struct {
	buffer  []RxWord
	head    int
	tail    int
	size    int
	dropped uint64
	name    string
	log     zerolog.Logger
}

// NewRingBuffer creates a ring buffer holding up to capacity words.
func NewRingBuffer(capacity int, name string, log zerolog.Logger) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		buffer: make([]RxWord, capacity),
		name:   name,
		log:    log,
	}
}

// Add appends w. It returns false when the buffer is full.
func (rb *RingBuffer) Add(w RxWord) bool {
	if rb.size == len(rb.buffer) {
		rb.dropped++
		if rb.dropped == 1 || rb.dropped%1000 == 0 {
			rb.log.Warn().Str("ring", rb.name).Uint64("dropped", rb.dropped).Msg("ring buffer full, dropping word")
		}
		return false
	}
	rb.buffer[rb.head] = w
	rb.head = (rb.head + 1) % len(rb.buffer)
	rb.size++
	return true
}

// DrainAll removes and returns every buffered word, oldest first.
func (rb *RingBuffer) DrainAll() []RxWord {
	out := make([]RxWord, 0, rb.size)
	for rb.size > 0 {
		out = append(out, rb.buffer[rb.tail])
		rb.tail = (rb.tail + 1) % len(rb.buffer)
		rb.size--
	}
	return out
}

// Clear empties the buffer.
func (rb *RingBuffer) Clear() {
	rb.head = 0
	rb.tail = 0
	rb.size = 0
}

func (rb *RingBuffer) Len() int {
	return rb.size
}

func (rb *RingBuffer) FreeSpace() int {
	return len(rb.buffer) - rb.size
}

// Dropped returns how many words were discarded because the buffer was full.
func (rb *RingBuffer) Dropped() uint64 {
	return rb.dropped
}

func (rb *RingBuffer) String() string {
	return fmt.Sprintf("RingBuffer[%s]: size=%d, capacity=%d, dropped=%d",
		rb.name, rb.size, len(rb.buffer), rb.dropped)
}
