package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbehnke/mcdu429/internal/a739"
	"github.com/dbehnke/mcdu429/internal/arinc"
	"github.com/dbehnke/mcdu429/internal/bus"
	"github.com/dbehnke/mcdu429/internal/display"
)

var ErrInvalidRecordIndex = errors.New("transport: record index must be positive")

// WordSink is where outbound words go. bus.Driver satisfies it.
type WordSink interface {
	Send(channel int, word arinc.Word) error
}

// Sender frames display records onto one transmit channel.
type Sender struct {
	sink       WordSink
	channel    int
	encoder    *a739.ControlEncoder
	padColumns bool
	lastLayout a739.Layout
	endpoint   string
	obs        Observer
	now        time.Time
	sendErr    error
}

// NewSender returns a sender for channel using encoder to pick the CNTRL layout.
func NewSender(sink WordSink, channel int, encoder *a739.ControlEncoder, padColumns bool) (*Sender, error) {
	if err := bus.ValidateChannel(channel); err != nil {
		return nil, err
	}
	return &Sender{
		sink:       sink,
		channel:    channel,
		encoder:    encoder,
		padColumns: padColumns,
		obs:        nopObserver{},
	}, nil
}

func (s *Sender) observe(obs Observer, endpoint string) {
	s.obs = obs
	s.endpoint = endpoint
}

// Encoder returns the layout encoder shared with the endpoint.
func (s *Sender) Encoder() *a739.ControlEncoder {
	return s.encoder
}

// LastLayout is the CNTRL layout most recently put on the wire.
func (s *Sender) LastLayout() a739.Layout {
	return s.lastLayout
}

func (s *Sender) send(w arinc.Word) {
	if err := s.sink.Send(s.channel, w); err != nil {
		if s.sendErr == nil {
			s.sendErr = err
		}
		s.obs.Observe(Event{Kind: EventSendError, Endpoint: s.endpoint, Channel: s.channel, Word: w, Detail: err.Error(), At: s.now})
		return
	}
	s.obs.Observe(Event{Kind: EventWordSent, Endpoint: s.endpoint, Channel: s.channel, Word: w, At: s.now})
}

// SendWord transmits a single word.
func (s *Sender) SendWord(w arinc.Word) error {
	s.sendErr = nil
	s.send(w)
	return s.sendErr
}

// SendRecord frames rec as STX, CNTRL, data words and ETX or EOT.
func (s *Sender) SendRecord(target uint32, rec display.TextRecord, recordIndex int, last bool, layout a739.Layout) error {
	if recordIndex <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRecordIndex, recordIndex)
	}
	text, col := rec.Text, rec.Column
	if s.padColumns && col > 1 {
		text = strings.Repeat(" ", col-1) + text
		col = 1
	}

	s.sendErr = nil
	s.send(a739.STXWord(target, recordIndex, a739.WordCount(len(a739.Latin1(text)))))
	ctrl := a739.Control{Color: rec.Color, Line: rec.Line, Column: col, Attr: rec.Attr}
	s.send(arinc.PackPayload(target, a739.Encode(layout, ctrl)))
	for _, w := range a739.DataWords(target, text) {
		s.send(w)
	}
	s.send(a739.EndWord(target, recordIndex, last))
	s.lastLayout = layout

	s.obs.Observe(Event{Kind: EventRecordSent, Endpoint: s.endpoint, Channel: s.channel, Layout: layout,
		Detail: fmt.Sprintf("rec=%d line=%d", recordIndex, rec.Line), At: s.now})
	return s.sendErr
}

// responses summarizes the control responses in one receive batch.
type responses struct {
	ack, nack, syn bool
}

func scanResponses(rx []bus.RxWord) responses {
	var r responses
	for _, w := range rx {
		switch a739.ControlOf(w.Word) {
		case a739.ACK:
			r.ack = true
		case a739.NACK:
			r.nack = true
		case a739.SYN:
			r.syn = true
		}
	}
	return r
}

func (r responses) rejected() bool { return r.nack || r.syn }

// SendAdaptive sends rec trying each CNTRL layout in the encoder's
// order. rx holds the words received in the current tick. An ACK with
// no SYN or NACK locks the layout just tried; a SYN or NACK moves on to
// the next layout; no response at all is provisionally accepted. It
// returns false only when every layout was rejected. Driver send
// failures are reported to the observer, not returned; the handshake
// recovers from lost words through its own timeout.
func (s *Sender) SendAdaptive(target uint32, rec display.TextRecord, recordIndex int, last bool, rx []bus.RxWord) (bool, error) {
	resp := scanResponses(rx)
	for _, layout := range s.encoder.SelectOrder() {
		if err := s.SendRecord(target, rec, recordIndex, last, layout); errors.Is(err, ErrInvalidRecordIndex) {
			return false, err
		}
		if resp.ack && !resp.rejected() {
			s.encoder.SetPreferred(layout)
			return true, nil
		}
		if resp.rejected() {
			continue
		}
		return true, nil
	}
	return false, nil
}
