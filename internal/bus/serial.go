package bus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dbehnke/mcdu429/internal/arinc"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// SerialConfig configures a USB/serial ARINC-429 adapter.
type SerialConfig struct {
	Port        string
	Baud        int
	RxDepth     int
	ReadTimeout time.Duration
}

// Serial drives an adapter that exchanges SLIP-framed channel/word
// pairs over a serial line. A reader goroutine fills per-channel ring
// buffers so Drain never touches the port.
type Serial struct {
	mu        sync.Mutex
	port      io.ReadWriteCloser
	rx        [Channels]*RingBuffer
	decoder   frameDecoder
	ready     bool
	closed    bool
	badFrames uint64
	log       zerolog.Logger
	done      chan struct{}
}

// OpenSerial opens the port and starts reading.
func OpenSerial(cfg SerialConfig, log zerolog.Logger) (*Serial, error) {
	if cfg.Port == "" {
		return nil, errors.New("bus: serial port required")
	}
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 50 * time.Millisecond
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("bus: open %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("bus: set read timeout on %s: %w", cfg.Port, err)
	}

	log.Info().Str("port", cfg.Port).Int("baud", cfg.Baud).Msg("serial ARINC adapter opened")
	return newSerial(port, cfg.RxDepth, log), nil
}

func newSerial(port io.ReadWriteCloser, depth int, log zerolog.Logger) *Serial {
	if depth <= 0 {
		depth = 256
	}
	s := &Serial{
		port:  port,
		ready: true,
		log:   log,
		done:  make(chan struct{}),
	}
	for ch := range s.rx {
		s.rx[ch] = NewRingBuffer(depth, fmt.Sprintf("serial-rx%d", ch), log)
	}
	go s.readLoop()
	return s
}

func (s *Serial) readLoop() {
	defer close(s.done)
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			now := time.Now()
			s.mu.Lock()
			bad := s.decoder.feed(buf[:n], func(ch int, w arinc.Word) {
				if ValidateChannel(ch) != nil {
					s.badFrames++
					return
				}
				s.rx[ch].Add(RxWord{Word: w, Timestamp: now})
			})
			s.badFrames += uint64(bad)
			s.mu.Unlock()
		}
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.ready = false
			s.mu.Unlock()
			if !closed && !errors.Is(err, io.EOF) {
				s.log.Error().Err(err).Msg("serial read failed")
			}
			return
		}
	}
}

func (s *Serial) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Serial) Drain(ch int) ([]RxWord, error) {
	if err := ValidateChannel(ch); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rx[ch].DrainAll(), nil
}

func (s *Serial) Send(ch int, w arinc.Word) error {
	if err := ValidateChannel(ch); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrNotOpen
	}
	if _, err := s.port.Write(stuffFrame(ch, w)); err != nil {
		return fmt.Errorf("bus: serial write: %w", err)
	}
	return nil
}

// BadFrames returns the number of malformed frames discarded so far.
func (s *Serial) BadFrames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badFrames
}

func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.ready = false
	s.mu.Unlock()

	err := s.port.Close()
	select {
	case <-s.done:
	case <-time.After(time.Second):
		s.log.Warn().Msg("serial reader did not stop within 1s")
	}
	return err
}
