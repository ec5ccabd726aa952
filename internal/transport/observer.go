package transport

import (
	"time"

	"github.com/dbehnke/mcdu429/internal/a739"
	"github.com/dbehnke/mcdu429/internal/arinc"
)

// EventKind classifies engine events.
type EventKind uint8

const (
	EventWordSent EventKind = iota + 1
	EventWordReceived
	EventStateChange
	EventRecordSent
	EventRetry
	EventTimeout
	EventExhausted
	EventHeartbeat
	EventKeypress
	EventMALLocked
	EventMALReleased
	EventSendError
)

var eventNames = map[EventKind]string{
	EventWordSent:     "word_sent",
	EventWordReceived: "word_received",
	EventStateChange:  "state_change",
	EventRecordSent:   "record_sent",
	EventRetry:        "retry",
	EventTimeout:      "timeout",
	EventExhausted:    "exhausted",
	EventHeartbeat:    "heartbeat",
	EventKeypress:     "keypress",
	EventMALLocked:    "mal_locked",
	EventMALReleased:  "mal_released",
	EventSendError:    "send_error",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event describes something the engine did or saw. Fields that do not
// apply to a kind are left zero.
type Event struct {
	Kind     EventKind
	Endpoint string
	Channel  int
	Word     arinc.Word
	From     TransmissionState
	To       TransmissionState
	Layout   a739.Layout
	Detail   string
	At       time.Time
}

// Observer receives engine events. Implementations must not block;
// they run inside the tick.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers.
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
