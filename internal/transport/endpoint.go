package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/dbehnke/mcdu429/internal/a739"
	"github.com/dbehnke/mcdu429/internal/arinc"
	"github.com/dbehnke/mcdu429/internal/bus"
	"github.com/dbehnke/mcdu429/internal/display"
	"github.com/dbehnke/mcdu429/internal/timing"
	"github.com/rs/zerolog"
)

// Defaults applied to zero EndpointConfig fields.
const (
	DefaultRecordCap       = 4
	DefaultAckTimeout      = 1500 * time.Millisecond
	DefaultMaxRetries      = 3
	DefaultHeartbeatPeriod = 500 * time.Millisecond
)

var ErrInvalidEndpoint = errors.New("transport: invalid endpoint config")

// EndpointConfig describes one display unit as seen from this computer.
type EndpointConfig struct {
	Name string
	// SAL is the label the unit addresses us by, and the label our
	// heartbeat advertises.
	SAL        uint32
	TxChannel  int
	RxChannel  int
	RecordCap  int
	AckTimeout time.Duration
	MaxRetries int
	PadColumns bool
	// PreferredLayout pins the CNTRL layout. LayoutNone lets the unit
	// decide at runtime.
	PreferredLayout a739.Layout
	// DefaultMAL is the target for keypress ACKs before any ENQ has
	// locked a peer address.
	DefaultMAL      uint32
	HeartbeatPeriod time.Duration
}

// DefaultEndpointConfig returns a config with every tunable at its default.
func DefaultEndpointConfig(name string, sal uint32) EndpointConfig {
	return EndpointConfig{
		Name:            name,
		SAL:             sal,
		RecordCap:       DefaultRecordCap,
		AckTimeout:      DefaultAckTimeout,
		MaxRetries:      DefaultMaxRetries,
		HeartbeatPeriod: DefaultHeartbeatPeriod,
	}
}

func (c *EndpointConfig) applyDefaults() {
	if c.RecordCap <= 0 {
		c.RecordCap = DefaultRecordCap
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.HeartbeatPeriod <= 0 {
		c.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
}

func (c EndpointConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidEndpoint)
	}
	if c.SAL > arinc.LabelMask {
		return fmt.Errorf("%w: sal %o out of range", ErrInvalidEndpoint, c.SAL)
	}
	if c.RecordCap > display.LineCount {
		return fmt.Errorf("%w: record cap %d above %d", ErrInvalidEndpoint, c.RecordCap, display.LineCount)
	}
	if err := bus.ValidateChannel(c.TxChannel); err != nil {
		return err
	}
	return bus.ValidateChannel(c.RxChannel)
}

type options struct {
	log zerolog.Logger
	obs Observer
}

// Option customizes an Endpoint or Engine.
type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithObserver attaches obs to every event the component emits.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.obs = obs
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop(), obs: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// EndpointStatus is a point-in-time view of an endpoint.
type EndpointStatus struct {
	Name        string `json:"name"`
	SAL         string `json:"sal"`
	State       string `json:"state"`
	MAL         string `json:"mal,omitempty"`
	Request     string `json:"request"`
	Layout      string `json:"layout"`
	Pending     int    `json:"pending_lines"`
	Scratchpad  string `json:"scratchpad"`
	RecordsSent uint64 `json:"records_sent"`
	Retries     uint64 `json:"retries"`
	Timeouts    uint64 `json:"timeouts"`
	Exhausted   uint64 `json:"exhausted"`
	Keypresses  uint64 `json:"keypresses"`
}

type counters struct {
	records, retries, timeouts, exhausted, keys uint64
}

// Endpoint runs the display handshake with one unit. It is driven by
// Tick and is not safe for concurrent use.
type Endpoint struct {
	cfg     EndpointConfig
	log     zerolog.Logger
	obs     Observer
	sender  *Sender
	encoder *a739.ControlEncoder
	diff    *display.DiffQueue
	pad     *Scratchpad

	state   TransmissionState
	next    TransmissionState
	queued  bool
	entered bool

	mal       uint32
	malLocked bool
	req       a739.RequestType

	rtsCount    int
	rtsSent     bool
	inflight    []display.TextRecord
	retrying    bool
	repeatCount int
	deadline    *timing.Timer

	scratch        []byte
	scratchPos     int
	scratchErrs    int
	restartScratch bool

	heartbeat *timing.Interval
	now       time.Time
	stats     counters
}

// NewEndpoint builds an endpoint that transmits through sink.
func NewEndpoint(cfg EndpointConfig, sink WordSink, opts ...Option) (*Endpoint, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	enc := a739.NewControlEncoder(cfg.PreferredLayout)
	s, err := NewSender(sink, cfg.TxChannel, enc, cfg.PadColumns)
	if err != nil {
		return nil, err
	}
	s.observe(o.obs, cfg.Name)

	return &Endpoint{
		cfg: cfg,
		log: o.log.With().
			Str("component", "endpoint").
			Str("endpoint", cfg.Name).
			Str("sal", arinc.FormatOctalLabel(cfg.SAL)).
			Logger(),
		obs:      o.obs,
		sender:   s,
		encoder:  enc,
		diff:     display.NewDiffQueue(),
		pad:      NewScratchpad(),
		state:    StateIdle,
		deadline: timing.NewTimer(cfg.AckTimeout),
	}, nil
}

func (e *Endpoint) Name() string { return e.cfg.Name }

func (e *Endpoint) Config() EndpointConfig { return e.cfg }

func (e *Endpoint) State() TransmissionState { return e.state }

// MAL returns the locked peer address, if any.
func (e *Endpoint) MAL() (uint32, bool) { return e.mal, e.malLocked }

func (e *Endpoint) Layout() a739.Layout { return e.encoder.Preferred() }

func (e *Endpoint) Scratchpad() *Scratchpad { return e.pad }

// PendingLines is the number of display lines waiting to be sent.
func (e *Endpoint) PendingLines() int { return e.diff.PendingCount() + len(e.inflight) }

// UpdatePage renders snap and queues the lines that differ from what
// was last rendered.
func (e *Endpoint) UpdatePage(snap display.Snapshot) {
	e.diff.Ingest(display.Render(snap))
}

func (e *Endpoint) Status() EndpointStatus {
	st := EndpointStatus{
		Name:        e.cfg.Name,
		SAL:         arinc.FormatOctalLabel(e.cfg.SAL),
		State:       e.state.String(),
		Request:     e.req.String(),
		Layout:      e.encoder.Preferred().String(),
		Pending:     e.PendingLines(),
		Scratchpad:  e.pad.Text(),
		RecordsSent: e.stats.records,
		Retries:     e.stats.retries,
		Timeouts:    e.stats.timeouts,
		Exhausted:   e.stats.exhausted,
		Keypresses:  e.stats.keys,
	}
	if e.malLocked {
		st.MAL = arinc.FormatOctalLabel(e.mal)
	}
	return st
}

func (e *Endpoint) emit(ev Event) {
	ev.Endpoint = e.cfg.Name
	ev.At = e.now
	e.obs.Observe(ev)
}

func (e *Endpoint) target() uint32 {
	if e.malLocked {
		return e.mal
	}
	return e.cfg.DefaultMAL
}

func (e *Endpoint) setNow(now time.Time) {
	e.now = now
	e.sender.now = now
}

// queue schedules the transition for ev. It takes effect at the start
// of the next tick.
func (e *Endpoint) queue(ev event) {
	next, ok := transition(e.state, ev)
	if !ok {
		e.log.Debug().Stringer("state", e.state).Stringer("event", ev).Msg("transition rejected")
		return
	}
	e.next = next
	e.queued = true
}

func (e *Endpoint) applyQueued() {
	if !e.queued {
		return
	}
	from := e.state
	e.state = e.next
	e.queued = false
	e.entered = false
	e.log.Debug().Stringer("from", from).Stringer("to", e.state).Msg("state change")
	e.emit(Event{Kind: EventStateChange, From: from, To: e.state})
}

// Heartbeat sends the label 172 announcement when its interval has
// elapsed. The interval starts on the first call and is held off while
// records are in flight.
func (e *Endpoint) Heartbeat(now time.Time) bool {
	e.setNow(now)
	if e.heartbeat == nil {
		e.heartbeat = timing.NewInterval(e.cfg.HeartbeatPeriod, now)
		return false
	}
	if e.sendingData() || !e.heartbeat.Due(now) {
		return false
	}
	w := a739.HeartbeatWord(e.cfg.SAL)
	e.sender.SendWord(w)
	e.heartbeat.Mark(now)
	e.emit(Event{Kind: EventHeartbeat, Channel: e.cfg.TxChannel, Word: w})
	return true
}

// sendingData reports whether records are on the wire now or will be
// framed later in this tick.
func (e *Endpoint) sendingData() bool {
	return e.state == StateSendData || (e.queued && e.next == StateSendData)
}

// Tick advances the handshake. rx holds every word received on the
// endpoint's receive channel since the previous tick; words not
// addressed to our SAL are ignored.
func (e *Endpoint) Tick(now time.Time, rx []bus.RxWord) {
	e.setNow(now)
	e.applyQueued()

	var mine []bus.RxWord
	for _, w := range rx {
		if w.Word.Label() != e.cfg.SAL {
			continue
		}
		mine = append(mine, w)
		e.emit(Event{Kind: EventWordReceived, Channel: e.cfg.RxChannel, Word: w.Word})
	}

	e.handleKeypresses(mine)

	switch e.state {
	case StateIdle:
		e.tickIdle(mine)
	case StateRTS:
		e.tickRTS(mine)
	case StateSendData:
		e.tickSendData(mine)
	case StateScratchpad:
		e.tickScratchpad(mine)
	}
}

func (e *Endpoint) handleKeypresses(rx []bus.RxWord) {
	for _, w := range rx {
		if !a739.Is(w.Word, a739.DC1) {
			continue
		}
		k := a739.DecodeKeypress(w.Word)
		e.sender.SendWord(a739.ACKWord(e.target()))
		applied := e.pad.Apply(k)
		e.stats.keys++

		name := fmt.Sprintf("%#02x", k.Key)
		if key, ok := a739.LookupKey(k.Key); ok {
			name = key.Name
		}
		e.log.Debug().Str("key", name).Uint8("seq", k.Sequence).Bool("repeat", k.Repeat).Bool("applied", applied).Msg("keypress")
		e.emit(Event{Kind: EventKeypress, Channel: e.cfg.RxChannel, Word: w.Word, Detail: name})

		if e.state == StateScratchpad {
			e.restartScratch = true
		}
	}
}

func (e *Endpoint) tickIdle(rx []bus.RxWord) {
	if !e.entered {
		e.entered = true
		e.repeatCount = 0
		e.retrying = false
	}
	for _, w := range rx {
		if !a739.IsEnqFor(w.Word, e.cfg.SAL) {
			continue
		}
		if !e.malLocked {
			e.mal = a739.EnqMAL(w.Word)
			e.malLocked = true
			e.log.Info().Str("mal", arinc.FormatOctalLabel(e.mal)).Msg("peer address locked")
			e.emit(Event{Kind: EventMALLocked, Word: w.Word, Detail: arinc.FormatOctalLabel(e.mal)})
		}
		e.req = a739.EnqRequest(w.Word)
		e.queue(evEnq)
		return
	}
	if e.pad.Dirty() {
		e.queue(evScratchPending)
	}
}

// requestCount is the record count the next RTS asks for.
func (e *Endpoint) requestCount() int {
	if e.req == a739.RequestMenu {
		return 1
	}
	if e.retrying && len(e.inflight) > 0 {
		return len(e.inflight)
	}
	return e.diff.PlannedRecordCount(e.cfg.RecordCap)
}

func (e *Endpoint) tickRTS(rx []bus.RxWord) {
	if !e.entered {
		e.entered = true
		e.rtsSent = false
		e.deadline.Stop()
	}
	if !e.rtsSent {
		count := e.requestCount()
		if count == 0 {
			return
		}
		e.sender.SendWord(a739.RTSWord(e.target(), e.req, count))
		e.rtsCount = count
		e.rtsSent = true
		e.deadline.Start(e.now)
		return
	}

	for _, w := range rx {
		if !a739.Is(w.Word, a739.CTS) {
			continue
		}
		n := max(1, min(e.rtsCount, a739.CTSMaxRecords(w.Word)))
		if e.req == a739.RequestData {
			if e.retrying && len(e.inflight) > 0 {
				if len(e.inflight) > n {
					e.diff.Requeue(e.inflight[n:])
					e.inflight = e.inflight[:n]
				}
			} else {
				e.inflight = e.diff.PrepareBatch(n)
			}
		}
		e.deadline.Stop()
		e.queue(evCTS)
		return
	}

	if e.deadline.HasExpired(e.now) {
		e.stats.timeouts++
		e.emit(Event{Kind: EventTimeout, Detail: "cts"})
		e.retry()
	}
}

func (e *Endpoint) tickSendData(rx []bus.RxWord) {
	if !e.entered {
		e.entered = true
		e.sendBatch(rx)
		return
	}

	resp := scanResponses(rx)
	switch {
	case resp.rejected():
		e.log.Warn().Bool("syn", resp.syn).Bool("nack", resp.nack).Stringer("layout", e.sender.LastLayout()).Msg("records rejected")
		e.encoder.Flip()
		e.retry()
	case resp.ack:
		if e.encoder.Preferred() == a739.LayoutNone {
			e.encoder.SetPreferred(e.sender.LastLayout())
			e.log.Info().Stringer("layout", e.encoder.Preferred()).Msg("control layout locked")
		}
		e.deadline.Stop()
		e.inflight = nil
		e.retrying = false
		e.repeatCount = 0
		if e.req == a739.RequestData && e.diff.HasMore() {
			e.queue(evAckMore)
		} else {
			e.queue(evAckDone)
		}
	case e.deadline.HasExpired(e.now):
		e.stats.timeouts++
		e.emit(Event{Kind: EventTimeout, Detail: "ack"})
		e.log.Warn().Stringer("layout", e.sender.LastLayout()).Msg("no response to records")
		e.encoder.Flip()
		e.retry()
	}
}

func (e *Endpoint) sendBatch(rx []bus.RxWord) {
	recs := e.inflight
	if e.req == a739.RequestMenu {
		recs = []display.TextRecord{display.NewTextRecord(e.cfg.Name, a739.ColorWhite, 1, 1, 0)}
	}
	if len(recs) == 0 {
		e.queue(evNothingToSend)
		return
	}
	target := e.target()
	for i, rec := range recs {
		ok, err := e.sender.SendAdaptive(target, rec, i+1, i == len(recs)-1, rx)
		if err != nil {
			e.log.Error().Err(err).Msg("record not sent")
			continue
		}
		if !ok {
			e.log.Warn().Int("record", i+1).Int("of", len(recs)).Msg("record rejected in every layout")
			e.encoder.Flip()
			e.retry()
			return
		}
		e.stats.records++
	}
	e.deadline.Start(e.now)
}

// retry reschedules the current request or, once the budget is spent,
// gives the lines back to the queue and drops the peer lock.
func (e *Endpoint) retry() {
	if e.repeatCount < e.cfg.MaxRetries {
		e.repeatCount++
		e.retrying = true
		e.stats.retries++
		e.log.Warn().Int("attempt", e.repeatCount).Int("max", e.cfg.MaxRetries).Stringer("state", e.state).Msg("retrying")
		e.emit(Event{Kind: EventRetry, Detail: fmt.Sprintf("attempt %d", e.repeatCount)})
		e.queue(evRetry)
		return
	}

	e.stats.exhausted++
	e.log.Warn().Int("retries", e.repeatCount).Int("lines", len(e.inflight)).Msg("retries exhausted")
	e.emit(Event{Kind: EventExhausted, Detail: fmt.Sprintf("%d lines requeued", len(e.inflight))})
	if len(e.inflight) > 0 {
		e.diff.Requeue(e.inflight)
		e.inflight = nil
	}
	e.releaseMAL()
	e.retrying = false
	e.repeatCount = 0
	e.deadline.Stop()
	e.queue(evExhausted)
}

func (e *Endpoint) releaseMAL() {
	if !e.malLocked {
		return
	}
	e.log.Info().Str("mal", arinc.FormatOctalLabel(e.mal)).Msg("peer address released")
	e.emit(Event{Kind: EventMALReleased, Detail: arinc.FormatOctalLabel(e.mal)})
	e.mal = 0
	e.malLocked = false
}

func (e *Endpoint) tickScratchpad(rx []bus.RxWord) {
	if !e.entered || e.restartScratch {
		e.entered = true
		e.restartScratch = false
		e.scratch = e.pad.Take()
		e.scratchPos = 0
		e.scratchErrs = 0
		e.sendScratchChar()
		return
	}

	resp := scanResponses(rx)
	switch {
	case resp.rejected() || (!resp.ack && e.deadline.HasExpired(e.now)):
		e.scratchErrs++
		if e.scratchErrs >= e.cfg.MaxRetries {
			e.log.Warn().Int("errors", e.scratchErrs).Msg("scratchpad echo abandoned")
			e.deadline.Stop()
			e.queue(evScratchFailed)
			return
		}
		e.sendScratchChar()
	case resp.ack:
		e.scratchPos++
		if e.scratchPos >= len(e.scratch) {
			e.deadline.Stop()
			e.queue(evScratchDone)
			return
		}
		e.sendScratchChar()
	}
}

func (e *Endpoint) sendScratchChar() {
	w := a739.ScratchpadWord(e.target(), e.scratch[e.scratchPos], e.scratchPos+1)
	e.sender.SendWord(w)
	e.deadline.Start(e.now)
}
