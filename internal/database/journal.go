package database

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dbehnke/mcdu429/internal/a739"
	"github.com/dbehnke/mcdu429/internal/arinc"
	"github.com/dbehnke/mcdu429/internal/transport"
	"github.com/rs/zerolog"
)

const (
	journalFlushEvery = 250 * time.Millisecond
	journalBatchSize  = 64
)

// Journal persists engine events. Observe never blocks the tick: when
// the buffer is full the event is counted as dropped.
type Journal struct {
	repo    *TraceRepository
	events  chan transport.Event
	dropped atomic.Uint64
	written atomic.Uint64
	log     zerolog.Logger
}

// NewJournal returns a journal writing through repo with room for
// buffer pending events.
func NewJournal(repo *TraceRepository, buffer int, log zerolog.Logger) *Journal {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Journal{
		repo:   repo,
		events: make(chan transport.Event, buffer),
		log:    log.With().Str("component", "journal").Logger(),
	}
}

func (j *Journal) Observe(ev transport.Event) {
	select {
	case j.events <- ev:
	default:
		j.dropped.Add(1)
	}
}

// Dropped is the number of events lost to a full buffer.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Written is the number of events stored.
func (j *Journal) Written() uint64 { return j.written.Load() }

// Run writes batches until ctx is done, then flushes what is buffered.
func (j *Journal) Run(ctx context.Context) {
	ticker := time.NewTicker(journalFlushEvery)
	defer ticker.Stop()

	batch := make([]transport.Event, 0, journalBatchSize)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-j.events:
					batch = append(batch, ev)
					continue
				default:
				}
				break
			}
			j.flush(batch)
			return
		case ev := <-j.events:
			batch = append(batch, ev)
			if len(batch) >= journalBatchSize {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			j.flush(batch)
			batch = batch[:0]
		}
	}
}

func (j *Journal) flush(batch []transport.Event) {
	if len(batch) == 0 {
		return
	}
	var traces []BusTrace
	var events []SessionEvent
	for _, ev := range batch {
		if t, ok := traceFor(ev); ok {
			traces = append(traces, t)
		} else {
			events = append(events, sessionEventFor(ev))
		}
	}
	if err := j.repo.InsertBatch(traces, events); err != nil {
		j.log.Error().Err(err).Int("events", len(batch)).Msg("journal write failed")
		return
	}
	j.written.Add(uint64(len(batch)))
}

// traceFor maps word-level events to a BusTrace row.
func traceFor(ev transport.Event) (BusTrace, bool) {
	switch ev.Kind {
	case transport.EventWordSent, transport.EventWordReceived, transport.EventHeartbeat,
		transport.EventKeypress, transport.EventSendError:
	default:
		return BusTrace{}, false
	}
	t := BusTrace{
		At:       ev.At,
		Endpoint: ev.Endpoint,
		Kind:     ev.Kind.String(),
		Channel:  ev.Channel,
		Word:     uint32(ev.Word),
		Label:    arinc.FormatOctalLabel(ev.Word.Label()),
		Detail:   ev.Detail,
	}
	if c := a739.ControlOf(ev.Word); c != a739.ControlUnknown {
		t.Control = c.String()
	}
	return t, true
}

func sessionEventFor(ev transport.Event) SessionEvent {
	s := SessionEvent{
		At:       ev.At,
		Endpoint: ev.Endpoint,
		Kind:     ev.Kind.String(),
		Detail:   ev.Detail,
	}
	if ev.Kind == transport.EventStateChange {
		s.From = ev.From.String()
		s.To = ev.To.String()
	}
	if ev.Layout != a739.LayoutNone {
		s.Layout = ev.Layout.String()
	}
	return s
}
