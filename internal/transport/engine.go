package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dbehnke/mcdu429/internal/bus"
	"github.com/dbehnke/mcdu429/internal/display"
	"github.com/rs/zerolog"
)

var (
	ErrDuplicateEndpoint = errors.New("transport: duplicate endpoint")
	ErrUnknownEndpoint   = errors.New("transport: unknown endpoint")
)

// Engine owns the bus driver and ticks every endpoint against it.
// Tick must be called from a single goroutine; SubmitPage and Status
// may be called from any goroutine.
type Engine struct {
	driver    bus.Driver
	opts      []Option
	log       zerolog.Logger
	endpoints []*Endpoint
	byName    map[string]*Endpoint
	rxOrder   []int

	mu      sync.Mutex
	pages   map[string]display.Snapshot
	status  []EndpointStatus
	skipped uint64
	ticks   uint64
}

func NewEngine(driver bus.Driver, opts ...Option) *Engine {
	o := buildOptions(opts)
	return &Engine{
		driver: driver,
		opts:   opts,
		log:    o.log.With().Str("component", "engine").Logger(),
		byName: make(map[string]*Endpoint),
		pages:  make(map[string]display.Snapshot),
	}
}

// AddEndpoint registers a unit. Endpoints are ticked in the order they
// were added.
func (g *Engine) AddEndpoint(cfg EndpointConfig) (*Endpoint, error) {
	if _, dup := g.byName[cfg.Name]; dup {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateEndpoint, cfg.Name)
	}
	ep, err := NewEndpoint(cfg, g.driver, g.opts...)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: %w", cfg.Name, err)
	}
	g.endpoints = append(g.endpoints, ep)
	g.byName[cfg.Name] = ep

	seen := false
	for _, ch := range g.rxOrder {
		if ch == ep.cfg.RxChannel {
			seen = true
			break
		}
	}
	if !seen {
		g.rxOrder = append(g.rxOrder, ep.cfg.RxChannel)
	}

	g.mu.Lock()
	g.status = append(g.status, ep.Status())
	g.mu.Unlock()

	g.log.Info().
		Str("endpoint", cfg.Name).
		Int("tx", ep.cfg.TxChannel).
		Int("rx", ep.cfg.RxChannel).
		Msg("endpoint added")
	return ep, nil
}

func (g *Engine) Endpoints() []*Endpoint {
	return g.endpoints
}

// SubmitPage hands a new host snapshot to the named endpoint. It is
// applied at the next tick; a later submission replaces an earlier one
// that has not been applied yet.
func (g *Engine) SubmitPage(name string, snap display.Snapshot) error {
	if _, ok := g.byName[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
	}
	g.mu.Lock()
	g.pages[name] = snap
	g.mu.Unlock()
	return nil
}

// Tick runs one engine cycle: drain each receive channel once, apply
// pending pages, then give every endpoint its heartbeat and its tick.
// Nothing happens while the driver is not ready.
func (g *Engine) Tick(now time.Time) {
	if !g.driver.IsReady() {
		g.mu.Lock()
		g.skipped++
		g.mu.Unlock()
		return
	}

	rx := make(map[int][]bus.RxWord, len(g.rxOrder))
	for _, ch := range g.rxOrder {
		words, err := g.driver.Drain(ch)
		if err != nil {
			g.log.Error().Err(err).Int("channel", ch).Msg("drain failed")
			continue
		}
		rx[ch] = words
	}

	g.mu.Lock()
	pages := g.pages
	if len(pages) > 0 {
		g.pages = make(map[string]display.Snapshot)
	}
	g.mu.Unlock()
	for name, snap := range pages {
		g.byName[name].UpdatePage(snap)
	}

	status := make([]EndpointStatus, 0, len(g.endpoints))
	for _, ep := range g.endpoints {
		ep.Heartbeat(now)
		ep.Tick(now, rx[ep.cfg.RxChannel])
		status = append(status, ep.Status())
	}

	g.mu.Lock()
	g.status = status
	g.ticks++
	g.mu.Unlock()
}

// Status returns the endpoint views captured at the end of the last tick.
func (g *Engine) Status() []EndpointStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]EndpointStatus, len(g.status))
	copy(out, g.status)
	return out
}

// Counters returns the number of completed and skipped ticks.
func (g *Engine) Counters() (ticks, skipped uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ticks, g.skipped
}
