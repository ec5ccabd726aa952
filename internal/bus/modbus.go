package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dbehnke/mcdu429/internal/arinc"
	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
)

// Register map of the ARINC-to-Modbus gateway. Each channel owns a
// 0x100-register window.
const (
	mbChannelStride = 0x100
	mbRxCountOffset = 0x00   // input register: words waiting
	mbRxDataOffset  = 0x01   // input registers: words, high half first
	mbTxBase        = 0x1000 // holding registers: count then words
	mbMaxWordsRead  = 62     // 124 registers, under the 125 register PDU limit
	mbMaxWordsWrite = 61     // count + 122 registers, under the 123 register limit
)

// ModbusConfig configures the gateway connection.
type ModbusConfig struct {
	Address  string
	SlaveID  uint8
	Timeout  time.Duration
	Poll     time.Duration
	Channels []int
	RxDepth  int
	TxDepth  int
}

// modbusClient is the part of modbus.Client the gateway driver uses.
type modbusClient interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

type txItem struct {
	ch int
	w  arinc.Word
}

// Modbus polls an ARINC-429 interface that exposes its FIFOs as Modbus
// registers. Polling and writing happen in Run; Drain and Send only
// touch in-memory queues.
type Modbus struct {
	mu       sync.Mutex
	client   modbusClient
	closer   func() error
	channels []int
	poll     time.Duration
	rx       [Channels]*RingBuffer
	tx       chan txItem
	ready    bool
	log      zerolog.Logger
}

// OpenModbus connects to the gateway over TCP.
func OpenModbus(cfg ModbusConfig, log zerolog.Logger) (*Modbus, error) {
	if cfg.Address == "" {
		return nil, errors.New("bus: modbus address required")
	}
	h := modbus.NewTCPClientHandler(cfg.Address)
	h.SlaveId = cfg.SlaveID
	h.Timeout = cfg.Timeout
	if h.Timeout <= 0 {
		h.Timeout = time.Second
	}
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("bus: modbus connect %s: %w", cfg.Address, err)
	}
	log.Info().Str("address", cfg.Address).Uint8("slave", cfg.SlaveID).Msg("modbus ARINC gateway connected")
	return newModbus(modbus.NewClient(h), h.Close, cfg, log)
}

func newModbus(client modbusClient, closer func() error, cfg ModbusConfig, log zerolog.Logger) (*Modbus, error) {
	for _, ch := range cfg.Channels {
		if err := ValidateChannel(ch); err != nil {
			return nil, err
		}
	}
	if len(cfg.Channels) == 0 {
		return nil, errors.New("bus: modbus driver needs at least one channel")
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 10 * time.Millisecond
	}
	if cfg.RxDepth <= 0 {
		cfg.RxDepth = 256
	}
	if cfg.TxDepth <= 0 {
		cfg.TxDepth = 512
	}
	m := &Modbus{
		client:   client,
		closer:   closer,
		channels: append([]int(nil), cfg.Channels...),
		poll:     cfg.Poll,
		tx:       make(chan txItem, cfg.TxDepth),
		ready:    true,
		log:      log,
	}
	for ch := range m.rx {
		m.rx[ch] = NewRingBuffer(cfg.RxDepth, fmt.Sprintf("modbus-rx%d", ch), log)
	}
	return m, nil
}

// Run polls the gateway until ctx is done.
func (m *Modbus) Run(ctx context.Context) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cycle()
		}
	}
}

// Cycle flushes queued transmissions then reads every receive window once.
func (m *Modbus) Cycle() {
	err := m.flushTx()
	if err == nil {
		for _, ch := range m.channels {
			if err = m.readChannel(ch); err != nil {
				break
			}
		}
	}
	m.mu.Lock()
	if err != nil && m.ready {
		m.log.Error().Err(err).Msg("modbus gateway cycle failed")
	}
	m.ready = err == nil
	m.mu.Unlock()
}

func (m *Modbus) readChannel(ch int) error {
	base := uint16(ch * mbChannelStride)
	raw, err := m.client.ReadInputRegisters(base+mbRxCountOffset, 1)
	if err != nil {
		return fmt.Errorf("read rx count ch%d: %w", ch, err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("read rx count ch%d: short response", ch)
	}
	count := int(raw[0])<<8 | int(raw[1])
	count = min(count, mbMaxWordsRead)
	if count == 0 {
		return nil
	}
	data, err := m.client.ReadInputRegisters(base+mbRxDataOffset, uint16(count*2))
	if err != nil {
		return fmt.Errorf("read rx data ch%d: %w", ch, err)
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i+4 <= len(data) && i/4 < count; i += 4 {
		w := uint32(data[i])<<24 | uint32(data[i+1])<<16 | uint32(data[i+2])<<8 | uint32(data[i+3])
		m.rx[ch].Add(RxWord{Word: arinc.Word(w), Timestamp: now})
	}
	return nil
}

func (m *Modbus) flushTx() error {
	pending := make(map[int][]arinc.Word)
	var order []int
	for {
		select {
		case it := <-m.tx:
			if _, ok := pending[it.ch]; !ok {
				order = append(order, it.ch)
			}
			pending[it.ch] = append(pending[it.ch], it.w)
			continue
		default:
		}
		break
	}
	for _, ch := range order {
		words := pending[ch]
		for len(words) > 0 {
			n := min(len(words), mbMaxWordsWrite)
			if err := m.writeWords(ch, words[:n]); err != nil {
				return err
			}
			words = words[n:]
		}
	}
	return nil
}

func (m *Modbus) writeWords(ch int, words []arinc.Word) error {
	regs := make([]uint16, 0, 1+2*len(words))
	regs = append(regs, uint16(len(words)))
	for _, w := range words {
		regs = append(regs, uint16(uint32(w)>>16), uint16(w))
	}
	payload := make([]byte, 2*len(regs))
	for i, r := range regs {
		payload[2*i] = byte(r >> 8)
		payload[2*i+1] = byte(r)
	}
	addr := uint16(mbTxBase + ch*mbChannelStride)
	if _, err := m.client.WriteMultipleRegisters(addr, uint16(len(regs)), payload); err != nil {
		return fmt.Errorf("write tx ch%d: %w", ch, err)
	}
	return nil
}

func (m *Modbus) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *Modbus) Drain(ch int) ([]RxWord, error) {
	if err := ValidateChannel(ch); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rx[ch].DrainAll(), nil
}

func (m *Modbus) Send(ch int, w arinc.Word) error {
	if err := ValidateChannel(ch); err != nil {
		return err
	}
	select {
	case m.tx <- txItem{ch: ch, w: w}:
		return nil
	default:
		return ErrTxFull
	}
}

func (m *Modbus) Close() error {
	m.mu.Lock()
	m.ready = false
	m.mu.Unlock()
	if m.closer != nil {
		return m.closer()
	}
	return nil
}
