package bus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dbehnke/mcdu429/internal/arinc"
	"github.com/rs/zerolog"
)

// UDPConfig configures the simulator bridge.
type UDPConfig struct {
	Local   string // host:port to bind
	Remote  string // host:port of the simulator
	RxDepth int
}

// UDP exchanges channel/word records with a simulator or a networked
// interface box. Each datagram carries one or more 5-byte records:
// channel, then the word big-endian. Reads are non-blocking: Drain
// pulls whatever datagrams are already queued in the socket.
type UDP struct {
	mu     sync.Mutex
	conn   *net.UDPConn
	remote *net.UDPAddr
	rx     [Channels]*RingBuffer
	buf    []byte
	log    zerolog.Logger
}

// OpenUDP binds the local address and resolves the remote one.
func OpenUDP(cfg UDPConfig, log zerolog.Logger) (*UDP, error) {
	local, err := net.ResolveUDPAddr("udp4", cfg.Local)
	if err != nil {
		return nil, fmt.Errorf("bus: resolve local %q: %w", cfg.Local, err)
	}
	remote, err := net.ResolveUDPAddr("udp4", cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("bus: resolve remote %q: %w", cfg.Remote, err)
	}
	conn, err := net.ListenUDP("udp4", local)
	if err != nil {
		return nil, fmt.Errorf("bus: listen %s: %w", cfg.Local, err)
	}

	depth := cfg.RxDepth
	if depth <= 0 {
		depth = 256
	}
	u := &UDP{
		conn:   conn,
		remote: remote,
		buf:    make([]byte, 1500),
		log:    log,
	}
	for ch := range u.rx {
		u.rx[ch] = NewRingBuffer(depth, fmt.Sprintf("udp-rx%d", ch), log)
	}
	log.Info().Str("local", conn.LocalAddr().String()).Str("remote", remote.String()).Msg("UDP bus bridge bound")
	return u, nil
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDP) IsReady() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn != nil
}

// poll reads every datagram already waiting in the socket.
func (u *UDP) poll() error {
	for {
		if err := u.conn.SetReadDeadline(time.Now()); err != nil {
			return err
		}
		n, _, err := u.conn.ReadFromUDP(u.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return err
		}
		now := time.Now()
		for off := 0; off+framePayloadLen <= n; off += framePayloadLen {
			ch := int(u.buf[off])
			if ValidateChannel(ch) != nil {
				continue
			}
			w := arinc.Word(binary.BigEndian.Uint32(u.buf[off+1 : off+framePayloadLen]))
			u.rx[ch].Add(RxWord{Word: w, Timestamp: now})
		}
	}
}

func (u *UDP) Drain(ch int) ([]RxWord, error) {
	if err := ValidateChannel(ch); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil, ErrNotOpen
	}
	if err := u.poll(); err != nil {
		u.log.Error().Err(err).Msg("UDP read failed")
	}
	return u.rx[ch].DrainAll(), nil
}

func (u *UDP) Send(ch int, w arinc.Word) error {
	if err := ValidateChannel(ch); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return ErrNotOpen
	}
	var rec [framePayloadLen]byte
	rec[0] = byte(ch)
	binary.BigEndian.PutUint32(rec[1:], uint32(w))
	if _, err := u.conn.WriteToUDP(rec[:], u.remote); err != nil {
		return fmt.Errorf("bus: UDP write: %w", err)
	}
	return nil
}

func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	u.log.Info().Msg("UDP bus bridge closed")
	return err
}
