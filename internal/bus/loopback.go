package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/dbehnke/mcdu429/internal/arinc"
	"github.com/rs/zerolog"
)

// Loopback is an in-memory driver. Words injected with Inject are
// returned by Drain; words passed to Send are recorded and, when a
// Responder is installed, answered on the same call.
type Loopback struct {
	mu        sync.Mutex
	ready     bool
	rx        [Channels]*RingBuffer
	sent      [Channels][]arinc.Word
	responder Responder
	now       func() time.Time
}

// Responder simulates the peer unit: it sees every transmitted word and
// returns the words the unit answers with on rxChannel.
type Responder func(txChannel int, w arinc.Word) (rxChannel int, replies []arinc.Word)

// NewLoopback returns a ready loopback driver with per-channel receive
// buffers of the given depth.
func NewLoopback(depth int, log zerolog.Logger) *Loopback {
	l := &Loopback{ready: true, now: time.Now}
	for ch := range l.rx {
		l.rx[ch] = NewRingBuffer(depth, fmt.Sprintf("loopback-rx%d", ch), log)
	}
	return l
}

// SetClock overrides the timestamp source for injected words.
func (l *Loopback) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// SetReady toggles IsReady.
func (l *Loopback) SetReady(ready bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready = ready
}

// SetResponder installs a simulated peer.
func (l *Loopback) SetResponder(r Responder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responder = r
}

func (l *Loopback) IsReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// Inject queues words as if they had been received on ch.
func (l *Loopback) Inject(ch int, words ...arinc.Word) error {
	if err := ValidateChannel(ch); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.injectLocked(ch, words)
	return nil
}

func (l *Loopback) injectLocked(ch int, words []arinc.Word) {
	ts := l.now()
	for _, w := range words {
		l.rx[ch].Add(RxWord{Word: w, Timestamp: ts})
	}
}

func (l *Loopback) Drain(ch int) ([]RxWord, error) {
	if err := ValidateChannel(ch); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rx[ch].DrainAll(), nil
}

func (l *Loopback) Send(ch int, w arinc.Word) error {
	if err := ValidateChannel(ch); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent[ch] = append(l.sent[ch], w)
	if l.responder != nil {
		if rxCh, replies := l.responder(ch, w); len(replies) > 0 && ValidateChannel(rxCh) == nil {
			l.injectLocked(rxCh, replies)
		}
	}
	return nil
}

// Sent returns a copy of every word transmitted on ch.
func (l *Loopback) Sent(ch int) []arinc.Word {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]arinc.Word(nil), l.sent[ch]...)
}

// TakeSent returns and forgets the words transmitted on ch.
func (l *Loopback) TakeSent(ch int) []arinc.Word {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.sent[ch]
	l.sent[ch] = nil
	return out
}

func (l *Loopback) Close() error {
	l.SetReady(false)
	return nil
}
