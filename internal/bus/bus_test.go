package bus

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/mcdu429/internal/arinc"
	"github.com/rs/zerolog"
)

func TestValidateChannel(t *testing.T) {
	tests := []struct {
		ch      int
		wantErr bool
	}{
		{-1, true},
		{0, false},
		{3, false},
		{4, false},
		{5, true},
	}
	for _, tt := range tests {
		err := ValidateChannel(tt.ch)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateChannel(%d) error = %v, wantErr %v", tt.ch, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidChannel) {
			t.Errorf("ValidateChannel(%d) error should wrap ErrInvalidChannel", tt.ch)
		}
	}
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3, "test", zerolog.Nop())
	for i := 1; i <= 4; i++ {
		ok := rb.Add(RxWord{Word: arinc.Word(i)})
		if want := i <= 3; ok != want {
			t.Errorf("Add(%d) = %v, want %v", i, ok, want)
		}
	}
	if rb.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", rb.Dropped())
	}
	got := rb.DrainAll()
	if len(got) != 3 || got[0].Word != 1 || got[2].Word != 3 {
		t.Errorf("DrainAll() = %v, want 1,2,3", got)
	}
	if len(rb.DrainAll()) != 0 {
		t.Error("second DrainAll() should be empty")
	}

	// Wrap around.
	rb.Add(RxWord{Word: 7})
	rb.Add(RxWord{Word: 8})
	if got := rb.DrainAll(); len(got) != 2 || got[0].Word != 7 || got[1].Word != 8 {
		t.Errorf("wrapped DrainAll() = %v", got)
	}
	if rb.FreeSpace() != 3 {
		t.Errorf("FreeSpace() = %d, want 3", rb.FreeSpace())
	}
}

func TestLoopback(t *testing.T) {
	l := NewLoopback(16, zerolog.Nop())
	if !l.IsReady() {
		t.Fatal("new loopback should be ready")
	}
	words, err := l.Drain(3)
	if err != nil || len(words) != 0 {
		t.Fatalf("Drain() on empty = %v, %v", words, err)
	}
	if _, err := l.Drain(9); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("Drain(9) error = %v", err)
	}
	if err := l.Send(-1, 0); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("Send(-1) error = %v", err)
	}

	l.SetResponder(func(tx int, w arinc.Word) (int, []arinc.Word) {
		return tx, []arinc.Word{w + 1}
	})
	if err := l.Send(2, 10); err != nil {
		t.Fatal(err)
	}
	if err := l.Inject(2, 20); err != nil {
		t.Fatal(err)
	}
	got, _ := l.Drain(2)
	if len(got) != 2 || got[0].Word != 11 || got[1].Word != 20 {
		t.Errorf("Drain(2) = %v, want reply then injected word", got)
	}
	if sent := l.TakeSent(2); len(sent) != 1 || sent[0] != 10 {
		t.Errorf("TakeSent(2) = %v", sent)
	}
	if len(l.Sent(2)) != 0 {
		t.Error("TakeSent should clear history")
	}
}

func TestSLIPRoundTrip(t *testing.T) {
	words := []arinc.Word{0, 0xC0DBC0DB, 0xFFFFFFFF, arinc.PackPayload(0o300, 0x060000)}
	var stream []byte
	for i, w := range words {
		stream = append(stream, stuffFrame(i%Channels, w)...)
	}
	// A corrupt frame between good ones is skipped.
	stream = append(stream, slipEnd, 0x01, slipEsc, 0x00, slipEnd)

	var d frameDecoder
	var got []arinc.Word
	var chans []int
	// Feed in small pieces to exercise partial frames.
	bad := 0
	for i := 0; i < len(stream); i += 3 {
		end := min(i+3, len(stream))
		bad += d.feed(stream[i:end], func(ch int, w arinc.Word) {
			chans = append(chans, ch)
			got = append(got, w)
		})
	}
	if bad != 1 {
		t.Errorf("bad frames = %d, want 1", bad)
	}
	if len(got) != len(words) {
		t.Fatalf("decoded %d words, want %d", len(got), len(words))
	}
	for i := range words {
		if got[i] != words[i] || chans[i] != i%Channels {
			t.Errorf("frame %d = ch%d %#x, want ch%d %#x", i, chans[i], uint32(got[i]), i%Channels, uint32(words[i]))
		}
	}
}

type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}
func (p *pipePort) Close() error { return p.r.Close() }

func TestSerialDriver(t *testing.T) {
	r, w := io.Pipe()
	port := &pipePort{r: r, w: w}
	s := newSerial(port, 8, zerolog.Nop())
	defer s.Close()

	word := arinc.PackPayload(0o004, 0x051234)
	if _, err := w.Write(stuffFrame(3, word)); err != nil {
		t.Fatal(err)
	}

	var got []RxWord
	deadline := time.Now().Add(time.Second)
	for len(got) == 0 && time.Now().Before(deadline) {
		got, _ = s.Drain(3)
		time.Sleep(time.Millisecond)
	}
	if len(got) != 1 || got[0].Word != word {
		t.Fatalf("Drain(3) = %v", got)
	}

	if err := s.Send(1, word); err != nil {
		t.Fatal(err)
	}
	port.mu.Lock()
	written := port.written.Bytes()
	port.mu.Unlock()
	if !bytes.Equal(written, stuffFrame(1, word)) {
		t.Errorf("written = % X", written)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.IsReady() {
		t.Error("closed serial driver reports ready")
	}
	if err := s.Send(1, word); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send after Close error = %v", err)
	}
}

func TestUDPDriver(t *testing.T) {
	sim, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("no loopback UDP: %v", err)
	}
	defer sim.Close()

	u, err := OpenUDP(UDPConfig{Local: "127.0.0.1:0", Remote: sim.LocalAddr().String()}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	if err := u.Send(3, 0xCAFEBABE); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	sim.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := sim.ReadFromUDP(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], []byte{3, 0xCA, 0xFE, 0xBA, 0xBE}) {
		t.Errorf("datagram = % X", buf[:n])
	}

	// Two records in one datagram, on different channels.
	dgram := []byte{3, 0, 0, 0, 1, 2, 0, 0, 0, 2}
	if _, err := sim.WriteToUDP(dgram, u.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatal(err)
	}
	var got3 []RxWord
	deadline := time.Now().Add(time.Second)
	for len(got3) == 0 && time.Now().Before(deadline) {
		got3, _ = u.Drain(3)
		time.Sleep(time.Millisecond)
	}
	if len(got3) != 1 || got3[0].Word != 1 {
		t.Fatalf("Drain(3) = %v", got3)
	}
	if got2, _ := u.Drain(2); len(got2) != 1 || got2[0].Word != 2 {
		t.Errorf("Drain(2) = %v", got2)
	}
}

type fakeModbus struct {
	rx     map[uint16][]uint16 // per-channel base: FIFO of 32-bit words as register pairs
	writes []fakeWrite
	fail   error
}

type fakeWrite struct {
	addr uint16
	regs []uint16
}

func (f *fakeModbus) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	base := address &^ (mbChannelStride - 1)
	fifo := f.rx[base]
	var regs []uint16
	if address == base+mbRxCountOffset {
		regs = []uint16{uint16(len(fifo) / 2)}
	} else {
		regs = fifo[:quantity]
		f.rx[base] = fifo[quantity:]
	}
	out := make([]byte, 2*len(regs))
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out, nil
}

func (f *fakeModbus) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	regs := make([]uint16, quantity)
	for i := range regs {
		regs[i] = uint16(value[2*i])<<8 | uint16(value[2*i+1])
	}
	f.writes = append(f.writes, fakeWrite{addr: address, regs: regs})
	return nil, nil
}

func TestModbusDriver(t *testing.T) {
	fake := &fakeModbus{rx: map[uint16][]uint16{
		3 * mbChannelStride: {0x1234, 0x5678, 0xDEAD, 0xBEEF},
	}}
	m, err := newModbus(fake, nil, ModbusConfig{Channels: []int{3}}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Send(3, 0xAABBCCDD); err != nil {
		t.Fatal(err)
	}
	m.Cycle()

	got, _ := m.Drain(3)
	if len(got) != 2 || got[0].Word != 0x12345678 || got[1].Word != 0xDEADBEEF {
		t.Errorf("Drain(3) = %v", got)
	}
	if len(fake.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(fake.writes))
	}
	wr := fake.writes[0]
	if wr.addr != mbTxBase+3*mbChannelStride {
		t.Errorf("write addr = %#x", wr.addr)
	}
	if len(wr.regs) != 3 || wr.regs[0] != 1 || wr.regs[1] != 0xAABB || wr.regs[2] != 0xCCDD {
		t.Errorf("write regs = %#v", wr.regs)
	}
	if !m.IsReady() {
		t.Error("IsReady() = false after good cycle")
	}

	fake.fail = errors.New("link down")
	m.Cycle()
	if m.IsReady() {
		t.Error("IsReady() = true after failed cycle")
	}

	if _, err := newModbus(fake, nil, ModbusConfig{Channels: []int{7}}, zerolog.Nop()); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("newModbus with channel 7 error = %v", err)
	}
}
