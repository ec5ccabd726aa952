package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/dbehnke/mcdu429/internal/a739"
	"github.com/dbehnke/mcdu429/internal/arinc"
	"github.com/dbehnke/mcdu429/internal/bus"
	"github.com/dbehnke/mcdu429/internal/display"
	"github.com/rs/zerolog"
)

const (
	testSAL = 0o240
	testMAL = 0o300
	txCh    = 1
	rxCh    = 2
	step    = 20 * time.Millisecond
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testPage() display.Snapshot {
	s := display.Snapshot{Title: "INIT REF", PageID: "1/3"}
	s.Lines[0] = "POS INIT¨ROUTE"
	s.Lines[1] = "[m]SELECT[/m]"
	return s
}

type harness struct {
	t   *testing.T
	ep  *Endpoint
	lb  *bus.Loopback
	now time.Time
}

func newHarness(t *testing.T, tweak func(*EndpointConfig)) *harness {
	t.Helper()
	cfg := DefaultEndpointConfig("CDU1", testSAL)
	cfg.TxChannel = txCh
	cfg.RxChannel = rxCh
	cfg.DefaultMAL = testMAL
	cfg.RecordCap = 6
	if tweak != nil {
		tweak(&cfg)
	}
	lb := bus.NewLoopback(64, zerolog.Nop())
	ep, err := NewEndpoint(cfg, lb)
	if err != nil {
		t.Fatalf("NewEndpoint() error = %v", err)
	}
	return &harness{t: t, ep: ep, lb: lb, now: t0}
}

// tick advances the clock one step and ticks the endpoint with rx. It
// returns the words the endpoint transmitted during the tick.
func (h *harness) tick(rx ...arinc.Word) []arinc.Word {
	h.now = h.now.Add(step)
	words := make([]bus.RxWord, 0, len(rx))
	for _, w := range rx {
		words = append(words, bus.RxWord{Word: w, Timestamp: h.now})
	}
	h.ep.Tick(h.now, words)
	return h.lb.TakeSent(txCh)
}

func (h *harness) wantState(want TransmissionState) {
	h.t.Helper()
	if got := h.ep.State(); got != want {
		h.t.Fatalf("State() = %v, want %v", got, want)
	}
}

func controls(words []arinc.Word) []a739.ControlCode {
	var out []a739.ControlCode
	for _, w := range words {
		switch c := a739.ControlOf(w); c {
		case a739.STX, a739.ETX, a739.EOT:
			out = append(out, c)
		}
	}
	return out
}

func countControl(words []arinc.Word, c a739.ControlCode) int {
	n := 0
	for _, w := range words {
		if a739.ControlOf(w) == c {
			n++
		}
	}
	return n
}

func enq(req a739.RequestType) arinc.Word { return a739.ENQWord(testSAL, testMAL, req) }
func cts(n int) arinc.Word { return a739.CTSWord(testSAL, n) }
func resp(c a739.ControlCode) arinc.Word { return a739.ResponseWord(testSAL, c) }

func TestHandshakeThreeRecords(t *testing.T) {
	h := newHarness(t, func(c *EndpointConfig) { c.RecordCap = 3 })
	h.ep.UpdatePage(testPage())
	h.ep.diff.PrepareBatch(display.LineCount - 3)

	if sent := h.tick(enq(a739.RequestData)); len(sent) != 0 {
		t.Fatalf("Idle sent %d words on ENQ", len(sent))
	}
	h.wantState(StateIdle)
	if mal, ok := h.ep.MAL(); !ok || mal != testMAL {
		t.Fatalf("MAL() = %o, %v, want %o, true", mal, ok, testMAL)
	}

	sent := h.tick()
	h.wantState(StateRTS)
	if len(sent) != 1 || sent[0] != a739.RTSWord(testMAL, a739.RequestData, 3) {
		t.Fatalf("RTS sent = %v, want one RTS(3)", sent)
	}

	if sent := h.tick(cts(3)); len(sent) != 0 {
		t.Fatalf("sent %d words on CTS tick", len(sent))
	}

	sent = h.tick()
	h.wantState(StateSendData)
	want := []a739.ControlCode{a739.STX, a739.ETX, a739.STX, a739.ETX, a739.STX, a739.EOT}
	got := controls(sent)
	if len(got) != len(want) {
		t.Fatalf("framing = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("framing = %v, want %v", got, want)
		}
	}
	idx := 0
	for _, w := range sent {
		if c := a739.ControlOf(w); c == a739.ETX || c == a739.EOT {
			idx++
			if rec := int(w.Payload() >> 8 & 0xFF); rec != idx {
				t.Errorf("trailer %d carries record %d", idx, rec)
			}
		}
	}

	h.tick(resp(a739.ACK))
	h.tick()
	h.wantState(StateIdle)
	if h.ep.PendingLines() != 0 {
		t.Errorf("PendingLines() = %d, want 0", h.ep.PendingLines())
	}
	if h.ep.Layout() != a739.LayoutA {
		t.Errorf("Layout() = %v, want A locked by ACK", h.ep.Layout())
	}
}

func TestCTSClampsRecordCount(t *testing.T) {
	tests := []struct {
		name    string
		maxRecs int
		want    int
	}{
		{"peer accepts all", 6, 6},
		{"peer accepts fewer", 2, 2},
		{"zero treated as one", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.ep.UpdatePage(testPage())
			h.tick(enq(a739.RequestData))
			h.tick()
			h.tick(cts(tt.maxRecs))
			sent := h.tick()
			if got := countControl(sent, a739.STX); got != tt.want {
				t.Errorf("records sent = %d, want %d", got, tt.want)
			}
			if got := h.ep.diff.PendingCount(); got != display.LineCount-tt.want {
				t.Errorf("PendingCount() = %d, want %d", got, display.LineCount-tt.want)
			}
		})
	}
}

func TestCTSIgnoredBeforeRTS(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(enq(a739.RequestData))
	// Nothing to draw: RTS is held back and a CTS has nothing to answer.
	if sent := h.tick(cts(6)); len(sent) != 0 {
		t.Fatalf("sent %v with empty queue", sent)
	}
	h.tick()
	h.wantState(StateRTS)

	h.ep.UpdatePage(testPage())
	sent := h.tick()
	if len(sent) != 1 || a739.ControlOf(sent[0]) != a739.RTS {
		t.Fatalf("sent = %v, want RTS once content arrived", sent)
	}
}

func TestRetryBound(t *testing.T) {
	h := newHarness(t, nil)
	h.ep.UpdatePage(testPage())
	h.tick(enq(a739.RequestData))

	rts := 0
	for i := 0; i < 500; i++ {
		rts += countControl(h.tick(), a739.RTS)
	}
	if rts != DefaultMaxRetries+1 {
		t.Errorf("RTS sent %d times, want %d", rts, DefaultMaxRetries+1)
	}
	h.wantState(StateIdle)
	if _, ok := h.ep.MAL(); ok {
		t.Error("MAL still locked after retries exhausted")
	}
	if st := h.ep.Status(); st.Exhausted != 1 || st.Timeouts != uint64(DefaultMaxRetries+1) {
		t.Errorf("Status() exhausted=%d timeouts=%d", st.Exhausted, st.Timeouts)
	}
}

func TestExhaustionRequeuesLines(t *testing.T) {
	h := newHarness(t, nil)
	h.ep.UpdatePage(testPage())
	h.tick(enq(a739.RequestData))
	h.tick()

	for attempt := 0; attempt <= DefaultMaxRetries; attempt++ {
		h.tick(cts(6))
		sent := h.tick()
		h.wantState(StateSendData)
		if got := countControl(sent, a739.STX); got != 6 {
			t.Fatalf("attempt %d sent %d records, want the same 6", attempt, got)
		}
		h.tick(resp(a739.NACK))
		sent = h.tick()
		if attempt < DefaultMaxRetries {
			h.wantState(StateRTS)
			if countControl(sent, a739.RTS) != 1 {
				t.Fatalf("attempt %d: no RTS for the retry", attempt)
			}
		}
	}
	h.wantState(StateIdle)
	if got := h.ep.diff.PendingCount(); got != display.LineCount {
		t.Errorf("PendingCount() = %d, want %d after requeue", got, display.LineCount)
	}
	if len(h.ep.inflight) != 0 {
		t.Errorf("inflight = %d records, want 0", len(h.ep.inflight))
	}
}

func TestRetryRequeuesExcessOverCTS(t *testing.T) {
	h := newHarness(t, nil)
	h.ep.UpdatePage(testPage())
	h.tick(enq(a739.RequestData))
	h.tick()
	h.tick(cts(6))
	h.tick()
	h.tick(resp(a739.SYN))
	sent := h.tick()
	if len(sent) != 1 || sent[0] != a739.RTSWord(testMAL, a739.RequestData, 6) {
		t.Fatalf("retry RTS = %v, want RTS(6) for the in-flight batch", sent)
	}
	h.tick(cts(2))
	if len(h.ep.inflight) != 2 {
		t.Errorf("inflight = %d, want 2", len(h.ep.inflight))
	}
	if got := h.ep.diff.PendingCount(); got != display.LineCount-2 {
		t.Errorf("PendingCount() = %d, want %d", got, display.LineCount-2)
	}
}

func TestRejectedBatchRetriesImmediately(t *testing.T) {
	h := newHarness(t, func(c *EndpointConfig) { c.RecordCap = 3 })
	h.ep.UpdatePage(testPage())
	h.tick(enq(a739.RequestData))
	h.tick()
	h.tick(cts(3))

	// The NACK arrives on the tick that frames the batch, so the first
	// record is rejected in both layouts and the rest are never sent.
	sent := h.tick(resp(a739.NACK))
	h.wantState(StateSendData)
	if got := countControl(sent, a739.STX); got != 2 {
		t.Fatalf("STX sent = %d, want 2 (record 1 in A and B)", got)
	}
	if h.ep.Layout() != a739.LayoutB {
		t.Errorf("Layout() = %v, want B after a full rejection", h.ep.Layout())
	}

	sent = h.tick()
	h.wantState(StateRTS)
	if len(sent) != 1 || sent[0] != a739.RTSWord(testMAL, a739.RequestData, 3) {
		t.Fatalf("retry sent = %v, want one RTS(3)", sent)
	}
	if st := h.ep.Status(); st.Retries != 1 || st.RecordsSent != 0 || st.Timeouts != 0 {
		t.Errorf("Status() retries=%d records=%d timeouts=%d, want 1/0/0", st.Retries, st.RecordsSent, st.Timeouts)
	}
}

func TestEncoderConvergence(t *testing.T) {
	h := newHarness(t, nil)
	h.ep.UpdatePage(testPage())
	h.tick(enq(a739.RequestData))
	h.tick()
	h.tick(cts(1))
	h.tick()
	if h.ep.sender.LastLayout() != a739.LayoutA {
		t.Fatalf("first attempt layout = %v, want A", h.ep.sender.LastLayout())
	}

	h.tick(resp(a739.NACK))
	if h.ep.Layout() != a739.LayoutB {
		t.Fatalf("Layout() after NACK = %v, want B", h.ep.Layout())
	}
	h.tick()
	h.tick()
	h.tick(cts(1))
	h.tick()
	if h.ep.sender.LastLayout() != a739.LayoutB {
		t.Fatalf("retry layout = %v, want B", h.ep.sender.LastLayout())
	}
	h.tick(resp(a739.ACK))
	h.tick()
	h.wantState(StateRTS)

	// Every later record uses B.
	h.tick()
	h.tick(cts(1))
	h.tick()
	if h.ep.sender.LastLayout() != a739.LayoutB || h.ep.Layout() != a739.LayoutB {
		t.Errorf("layout drifted to %v/%v", h.ep.sender.LastLayout(), h.ep.Layout())
	}
}

func TestPinnedLayout(t *testing.T) {
	h := newHarness(t, func(c *EndpointConfig) { c.PreferredLayout = a739.LayoutB })
	h.ep.UpdatePage(testPage())
	h.tick(enq(a739.RequestData))
	h.tick()
	h.tick(cts(1))
	sent := h.tick()
	want := a739.EncodeB(a739.Control{Color: a739.ColorWhite, Line: 1, Column: 1})
	if len(sent) < 2 || sent[1].Payload() != want {
		t.Errorf("CNTRL payload = %#x, want %#x", sent[1].Payload(), want)
	}
}

func TestMenuRequest(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(enq(a739.RequestMenu))
	sent := h.tick()
	if len(sent) != 1 || sent[0] != a739.RTSWord(testMAL, a739.RequestMenu, 1) {
		t.Fatalf("menu RTS = %v", sent)
	}
	h.tick(cts(4))
	sent = h.tick()
	if got := controls(sent); len(got) != 2 || got[0] != a739.STX || got[1] != a739.EOT {
		t.Fatalf("menu framing = %v, want one record", got)
	}
	name := a739.DataWords(testMAL, "CDU1")
	if sent[2] != name[0] || sent[3] != name[1] {
		t.Errorf("menu record does not carry the endpoint name")
	}
	h.tick(resp(a739.ACK))
	h.tick()
	h.wantState(StateIdle)
}

func TestUnaddressedWordsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(a739.ENQWord(0o241, testMAL, a739.RequestData), a739.KeypressWord(0o241, a739.Keypress{Key: 'A'}))
	h.tick()
	h.wantState(StateIdle)
	if _, ok := h.ep.MAL(); ok {
		t.Error("ENQ for another SAL locked the MAL")
	}
	if h.ep.Scratchpad().Text() != "" {
		t.Error("keypress for another SAL reached the scratchpad")
	}
}

func TestMALFirstValueSticks(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(enq(a739.RequestMenu))
	h.ep.state, h.ep.queued = StateIdle, false
	h.tick(a739.ENQWord(testSAL, 0o301, a739.RequestMenu))
	if mal, _ := h.ep.MAL(); mal != testMAL {
		t.Errorf("MAL() = %o, want first value %o", mal, testMAL)
	}
}

func TestHeartbeat(t *testing.T) {
	h := newHarness(t, nil)
	beats := 0
	for now := t0; !now.After(t0.Add(2 * time.Second)); now = now.Add(step) {
		if h.ep.Heartbeat(now) {
			beats++
		}
	}
	if beats < 2 {
		t.Errorf("heartbeats in 2s = %d, want at least 2", beats)
	}
	sent := h.lb.TakeSent(txCh)
	if len(sent) != beats {
		t.Fatalf("sent %d words, want %d", len(sent), beats)
	}
	for _, w := range sent {
		if w.Label() != a739.HeartbeatLabel || w.Payload() != uint32(arinc.ReverseBits(testSAL)) {
			t.Errorf("heartbeat word = %v", w)
		}
	}

	h.ep.state = StateSendData
	if h.ep.Heartbeat(t0.Add(10 * time.Second)) {
		t.Error("heartbeat sent during SendData")
	}
}

func TestHeartbeatHeldOnSendDataEntry(t *testing.T) {
	h := newHarness(t, func(c *EndpointConfig) { c.RecordCap = 3 })
	h.ep.UpdatePage(testPage())
	h.ep.Heartbeat(h.now)
	h.tick(enq(a739.RequestData))
	h.tick()
	h.tick(cts(3))

	// The interval has long elapsed, but the CTS already scheduled the
	// move into SendData for this tick.
	h.now = h.now.Add(time.Second)
	if h.ep.Heartbeat(h.now) {
		t.Fatal("heartbeat sent on the tick entering SendData")
	}
	sent := h.tick()
	h.wantState(StateSendData)
	for _, w := range sent {
		if w.Label() == a739.HeartbeatLabel {
			t.Fatalf("heartbeat word %v among the records", w)
		}
	}
	if got := countControl(sent, a739.STX); got != 3 {
		t.Errorf("STX sent = %d, want 3", got)
	}

	h.tick(resp(a739.ACK))
	h.tick()
	h.wantState(StateRTS)
	if !h.ep.Heartbeat(h.now) {
		t.Error("heartbeat still held after leaving SendData")
	}
}

func TestKeypressInIdle(t *testing.T) {
	h := newHarness(t, nil)
	key := a739.KeypressWord(testSAL, a739.Keypress{Key: 'A', Sequence: 0})

	sent := h.tick(key)
	if len(sent) != 1 || sent[0] != a739.ACKWord(testMAL) {
		t.Fatalf("keypress tick sent %v, want ACK", sent)
	}
	h.wantState(StateIdle)

	sent = h.tick()
	h.wantState(StateScratchpad)
	if len(sent) != 1 || sent[0] != a739.ScratchpadWord(testMAL, 'A', 1) {
		t.Fatalf("scratchpad sent %v", sent)
	}

	if sent := h.tick(resp(a739.ACK)); len(sent) != 0 {
		t.Fatalf("sent %v after final ACK", sent)
	}
	h.tick()
	h.wantState(StateIdle)
}

func TestScratchpadErrorsAbandon(t *testing.T) {
	h := newHarness(t, nil)
	h.ep.Scratchpad().Apply(a739.Keypress{Key: 'N'})
	h.tick()
	h.tick()
	h.wantState(StateScratchpad)
	for i := 0; i < 3; i++ {
		h.tick(resp(a739.NACK))
	}
	h.tick()
	h.wantState(StateIdle)
}

func TestKeypressRestartsScratchpad(t *testing.T) {
	h := newHarness(t, nil)
	h.ep.Scratchpad().Apply(a739.Keypress{Key: 'A', Sequence: 0})
	h.ep.Scratchpad().Apply(a739.Keypress{Key: 'B', Sequence: 1})
	h.tick()
	h.tick()
	h.tick(resp(a739.ACK)) // 'B' goes out

	sent := h.tick(a739.KeypressWord(testSAL, a739.Keypress{Key: 'C', Sequence: 2}))
	if len(sent) != 2 || sent[0] != a739.ACKWord(testMAL) || sent[1] != a739.ScratchpadWord(testMAL, 'A', 1) {
		t.Fatalf("restart sent %v, want ACK then first character", sent)
	}
	if h.ep.scratchPos != 0 || string(h.ep.scratch) != "ABC" {
		t.Errorf("scratch = %q at %d", h.ep.scratch, h.ep.scratchPos)
	}
}

func TestKeypressACKWhileSending(t *testing.T) {
	h := newHarness(t, nil)
	h.ep.UpdatePage(testPage())
	h.tick(enq(a739.RequestData))
	h.tick()
	h.tick(cts(6))
	h.tick()
	sent := h.tick(a739.KeypressWord(testSAL, a739.Keypress{Key: '1'}))
	if countControl(sent, a739.ACK) != 1 {
		t.Errorf("no ACK for keypress during SendData: %v", sent)
	}
	h.wantState(StateSendData)
}

func TestNewEndpointValidation(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(*EndpointConfig)
		want  error
	}{
		{"tx channel", func(c *EndpointConfig) { c.TxChannel = 5 }, bus.ErrInvalidChannel},
		{"rx channel", func(c *EndpointConfig) { c.RxChannel = -1 }, bus.ErrInvalidChannel},
		{"name", func(c *EndpointConfig) { c.Name = "" }, ErrInvalidEndpoint},
		{"sal", func(c *EndpointConfig) { c.SAL = 0o400 }, ErrInvalidEndpoint},
		{"record cap", func(c *EndpointConfig) { c.RecordCap = 15 }, ErrInvalidEndpoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEndpointConfig("CDU1", testSAL)
			tt.tweak(&cfg)
			_, err := NewEndpoint(cfg, bus.NewLoopback(4, zerolog.Nop()))
			if !errors.Is(err, tt.want) {
				t.Errorf("NewEndpoint() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from TransmissionState
		ev   event
		want TransmissionState
		ok   bool
	}{
		{StateIdle, evEnq, StateRTS, true},
		{StateIdle, evScratchPending, StateScratchpad, true},
		{StateRTS, evRetry, StateRTS, true},
		{StateSendData, evAckMore, StateRTS, true},
		{StateSendData, evExhausted, StateIdle, true},
		{StateScratchpad, evScratchFailed, StateIdle, true},
		{StateIdle, evCTS, StateIdle, false},
		{StateRTS, evAckDone, StateRTS, false},
		{StateScratchpad, evEnq, StateScratchpad, false},
	}
	for _, tt := range tests {
		got, ok := transition(tt.from, tt.ev)
		if got != tt.want || ok != tt.ok {
			t.Errorf("transition(%v, %v) = %v, %v, want %v, %v", tt.from, tt.ev, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSenderRejectsBadInput(t *testing.T) {
	lb := bus.NewLoopback(4, zerolog.Nop())
	if _, err := NewSender(lb, 7, a739.NewControlEncoder(a739.LayoutNone), false); !errors.Is(err, bus.ErrInvalidChannel) {
		t.Errorf("NewSender(ch 7) error = %v", err)
	}
	s, err := NewSender(lb, txCh, a739.NewControlEncoder(a739.LayoutNone), false)
	if err != nil {
		t.Fatal(err)
	}
	rec := display.NewTextRecord("X", a739.ColorWhite, 1, 1, 0)
	if err := s.SendRecord(testMAL, rec, 0, true, a739.LayoutA); !errors.Is(err, ErrInvalidRecordIndex) {
		t.Errorf("SendRecord(index 0) error = %v", err)
	}
	if len(lb.Sent(txCh)) != 0 {
		t.Error("invalid record put words on the bus")
	}
}

func TestSendRecordPadsColumns(t *testing.T) {
	lb := bus.NewLoopback(4, zerolog.Nop())
	s, _ := NewSender(lb, txCh, a739.NewControlEncoder(a739.LayoutNone), true)
	rec := display.NewTextRecord("AB", a739.ColorCyan, 3, 4, 0)
	if err := s.SendRecord(testMAL, rec, 1, true, a739.LayoutA); err != nil {
		t.Fatal(err)
	}
	sent := lb.Sent(txCh)
	// STX, CNTRL, "   AB" in two data words, EOT
	if len(sent) != 5 {
		t.Fatalf("sent %d words, want 5", len(sent))
	}
	ctrl := a739.EncodeA(a739.Control{Color: a739.ColorCyan, Line: 3, Column: 1})
	if sent[1].Payload() != ctrl {
		t.Errorf("CNTRL = %#x, want %#x", sent[1].Payload(), ctrl)
	}
	if sent[2] != a739.DataWords(testMAL, "   AB")[0] {
		t.Errorf("first data word = %v", sent[2])
	}
}

func TestSendAdaptive(t *testing.T) {
	rx := func(codes ...a739.ControlCode) []bus.RxWord {
		var out []bus.RxWord
		for _, c := range codes {
			out = append(out, bus.RxWord{Word: resp(c)})
		}
		return out
	}
	tests := []struct {
		name       string
		rx         []bus.RxWord
		wantOK     bool
		wantLayout a739.Layout
		wantSTX    int
	}{
		{"no response", nil, true, a739.LayoutNone, 1},
		{"ack locks first layout", rx(a739.ACK), true, a739.LayoutA, 1},
		{"nack tries both", rx(a739.NACK), false, a739.LayoutNone, 2},
		{"syn beats ack", rx(a739.ACK, a739.SYN), false, a739.LayoutNone, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := bus.NewLoopback(4, zerolog.Nop())
			enc := a739.NewControlEncoder(a739.LayoutNone)
			s, _ := NewSender(lb, txCh, enc, false)
			ok, err := s.SendAdaptive(testMAL, display.NewTextRecord("HI", 7, 1, 1, 0), 1, true, tt.rx)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.wantOK {
				t.Errorf("SendAdaptive() = %v, want %v", ok, tt.wantOK)
			}
			if enc.Preferred() != tt.wantLayout {
				t.Errorf("Preferred() = %v, want %v", enc.Preferred(), tt.wantLayout)
			}
			if got := countControl(lb.Sent(txCh), a739.STX); got != tt.wantSTX {
				t.Errorf("records on wire = %d, want %d", got, tt.wantSTX)
			}
		})
	}
}

func TestScratchpadBuffer(t *testing.T) {
	press := func(keys ...uint8) *Scratchpad {
		p := NewScratchpad()
		for i, k := range keys {
			p.Apply(a739.Keypress{Key: k, Sequence: uint8(i)})
		}
		return p
	}
	tests := []struct {
		name string
		pad  *Scratchpad
		want string
	}{
		{"typing", press('F', 'L', '3', '5', '0'), "FL350"},
		{"clr deletes last", press('A', 'B', a739.KeyCLR), "A"},
		{"clr on empty shows CLR", press(a739.KeyCLR), "CLR"},
		{"clr twice clears", press(a739.KeyCLR, a739.KeyCLR), ""},
		{"typing replaces CLR", press(a739.KeyCLR, 'X'), "X"},
		{"unknown key ignored", press('A', 0x7E), "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pad.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScratchpadTakeBlanksDeleted(t *testing.T) {
	p := NewScratchpad()
	if got := string(p.Take()); got != " " {
		t.Errorf("empty Take() = %q, want one blank", got)
	}
	p.Apply(a739.Keypress{Key: 'A', Sequence: 0})
	p.Apply(a739.Keypress{Key: 'B', Sequence: 1})
	p.Apply(a739.Keypress{Key: 'C', Sequence: 2})
	if !p.Dirty() {
		t.Error("Dirty() = false after typing")
	}
	if got := string(p.Take()); got != "ABC" {
		t.Errorf("Take() = %q, want %q", got, "ABC")
	}
	if p.Dirty() {
		t.Error("Dirty() = true after Take")
	}
	p.Apply(a739.Keypress{Key: a739.KeyCLR})
	p.Apply(a739.Keypress{Key: a739.KeyCLR})
	if got := string(p.Take()); got != "A  " {
		t.Errorf("Take() after deletes = %q, want %q", got, "A  ")
	}
}
