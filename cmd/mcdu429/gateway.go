package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dbehnke/mcdu429/internal/bus"
	"github.com/dbehnke/mcdu429/internal/config"
	"github.com/dbehnke/mcdu429/internal/database"
	"github.com/dbehnke/mcdu429/internal/logging"
	"github.com/dbehnke/mcdu429/internal/metrics"
	"github.com/dbehnke/mcdu429/internal/pagesource"
	"github.com/dbehnke/mcdu429/internal/status"
	"github.com/dbehnke/mcdu429/internal/transport"
	"github.com/rs/zerolog"
)

const (
	rxDepth      = 256
	statsEvery   = 30 * time.Second
	modbusPoll   = 10 * time.Millisecond
	serialReadTO = 20 * time.Millisecond
)

// Gateway owns the bus driver, the engine and everything feeding or
// watching it.
type Gateway struct {
	config *config.Config
	log    zerolog.Logger

	driver  bus.Driver
	modbus  *bus.Modbus
	engine  *transport.Engine
	db      *database.DB
	journal *database.Journal
	pollers []*pagesource.Poller
	closers []io.Closer
	status  *status.Server

	wg sync.WaitGroup
}

// NewGateway loads the config and wires the gateway. debug forces the
// log level to debug.
func NewGateway(configFile string, debug bool) (*Gateway, error) {
	cfg := config.NewConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.GetLogLevel()
	if debug {
		level = "debug"
	}
	logger := logging.New("mcdu429", logging.Options{Level: level, NoColor: cfg.GetLogNoColor()})

	g := &Gateway{config: cfg, log: logger}

	driver, err := g.openDriver()
	if err != nil {
		return nil, err
	}
	g.driver = driver

	observers := transport.Observers{metrics.NewObserver()}
	if cfg.GetJournalEnabled() {
		if obs := g.openJournal(); obs != nil {
			observers = append(observers, obs)
		}
	}

	g.engine = transport.NewEngine(driver,
		transport.WithLogger(logger),
		transport.WithObserver(observers),
	)
	for _, ep := range cfg.GetEndpoints() {
		if _, err := g.engine.AddEndpoint(g.endpointConfig(ep)); err != nil {
			g.Close()
			return nil, err
		}
	}

	if err := g.wireSources(); err != nil {
		g.Close()
		return nil, err
	}

	if cfg.GetHTTPEnabled() {
		var opts []status.Option
		if g.journal != nil {
			opts = append(opts,
				status.WithJournal(g.journal),
				status.WithTraces(database.NewTraceRepository(g.db.GetDB())))
		}
		g.status = status.New(cfg.GetHTTPListen(), g.engine, logger, opts...)
	}

	return g, nil
}

func (g *Gateway) openDriver() (bus.Driver, error) {
	cfg := g.config
	log := g.log.With().Str("component", "bus").Str("driver", cfg.GetBusDriver()).Logger()

	switch cfg.GetBusDriver() {
	case config.DriverSerial:
		return bus.OpenSerial(bus.SerialConfig{
			Port:        cfg.GetSerialPort(),
			Baud:        cfg.GetBaud(),
			RxDepth:     rxDepth,
			ReadTimeout: serialReadTO,
		}, log)
	case config.DriverUDP:
		return bus.OpenUDP(bus.UDPConfig{
			Local:   cfg.GetUDPLocal(),
			Remote:  cfg.GetUDPRemote(),
			RxDepth: rxDepth,
		}, log)
	case config.DriverModbus:
		var channels []int
		seen := map[int]bool{}
		for _, ep := range cfg.GetEndpoints() {
			if !seen[ep.RxChannel] {
				seen[ep.RxChannel] = true
				channels = append(channels, ep.RxChannel)
			}
		}
		m, err := bus.OpenModbus(bus.ModbusConfig{
			Address:  cfg.GetModbusAddress(),
			SlaveID:  cfg.GetModbusSlave(),
			Timeout:  time.Second,
			Poll:     modbusPoll,
			Channels: channels,
			RxDepth:  rxDepth,
			TxDepth:  rxDepth,
		}, log)
		if err != nil {
			return nil, err
		}
		g.modbus = m
		return m, nil
	default:
		lb := bus.NewLoopback(rxDepth, log)
		log.Warn().Msg("loopback bus: no unit attached, words go nowhere")
		return lb, nil
	}
}

// openJournal starts the trace journal. A database failure disables the
// journal rather than the gateway.
func (g *Gateway) openJournal() transport.Observer {
	db, err := database.NewDB(database.Config{Path: g.config.GetJournalPath()}, g.log)
	if err != nil {
		g.log.Error().Err(err).Msg("journal disabled")
		return nil
	}
	g.db = db
	g.journal = database.NewJournal(database.NewTraceRepository(db.GetDB()), g.config.GetJournalBuffer(), g.log)
	return g.journal
}

func (g *Gateway) endpointConfig(ep config.Endpoint) transport.EndpointConfig {
	cfg := g.config
	return transport.EndpointConfig{
		Name:            ep.Name,
		SAL:             ep.SAL,
		TxChannel:       ep.TxChannel,
		RxChannel:       ep.RxChannel,
		RecordCap:       cfg.GetRTSRecordCap(),
		AckTimeout:      cfg.GetAckTimeout(),
		MaxRetries:      cfg.GetMaxRetries(),
		PadColumns:      cfg.GetPadColumns(),
		PreferredLayout: cfg.GetPreferredLayout(),
		HeartbeatPeriod: cfg.GetHeartbeat(),
	}
}

// wireSources builds one poller per source that at least one endpoint
// reads from.
func (g *Gateway) wireSources() error {
	targets := map[string][]string{}
	for _, ep := range g.config.GetEndpoints() {
		if ep.PageSource != "" {
			targets[ep.PageSource] = append(targets[ep.PageSource], ep.Name)
		}
	}

	for _, sc := range g.config.GetSources() {
		names := targets[sc.Name]
		if len(names) == 0 {
			g.log.Warn().Str("source", sc.Name).Msg("page source not used by any endpoint")
			continue
		}
		src, err := pagesource.FromConfig(sc)
		if err != nil {
			return err
		}
		if c, ok := src.(io.Closer); ok {
			g.closers = append(g.closers, c)
		}
		p, err := pagesource.NewPoller(src, g.engine, sc.Poll, g.log, names...)
		if err != nil {
			return fmt.Errorf("source %q: %w", sc.Name, err)
		}
		g.pollers = append(g.pollers, p)
	}
	return nil
}

// Run starts the background workers and ticks the engine until ctx is
// cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.Close()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer func() {
		stopWorkers()
		g.wg.Wait()
	}()

	if g.modbus != nil {
		g.goWorker(func() { g.modbus.Run(workerCtx) })
	}
	if g.journal != nil {
		g.goWorker(func() { g.journal.Run(workerCtx) })
	}
	for _, p := range g.pollers {
		g.goWorker(func() { p.Run(workerCtx) })
	}
	if g.status != nil {
		g.goWorker(func() {
			if err := g.status.Run(workerCtx); err != nil {
				g.log.Error().Err(err).Msg("status API stopped")
			}
		})
	}

	g.log.Info().
		Str("driver", g.config.GetBusDriver()).
		Int("endpoints", len(g.engine.Endpoints())).
		Dur("tick", g.config.GetTick()).
		Msg("gateway running")

	ticker := time.NewTicker(g.config.GetTick())
	defer ticker.Stop()
	statsTicker := time.NewTicker(statsEvery)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.log.Info().Msg("shutdown requested")
			return nil
		case now := <-ticker.C:
			g.engine.Tick(now)
		case <-statsTicker.C:
			g.printStats()
		}
	}
}

func (g *Gateway) goWorker(fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

func (g *Gateway) printStats() {
	ticks, skipped := g.engine.Counters()
	ev := g.log.Info().Uint64("ticks", ticks).Uint64("skipped", skipped)
	if g.journal != nil {
		ev = ev.Uint64("journal_written", g.journal.Written()).Uint64("journal_dropped", g.journal.Dropped())
	}
	ev.Msg("stats")
	for _, st := range g.engine.Status() {
		g.log.Debug().
			Str("endpoint", st.Name).
			Str("state", st.State).
			Str("layout", st.Layout).
			Int("pending", st.Pending).
			Uint64("records", st.RecordsSent).
			Uint64("retries", st.Retries).
			Msg("endpoint")
	}
}

// Close releases the driver, the page sources and the database. Run
// calls it once its workers have stopped.
func (g *Gateway) Close() {
	for _, c := range g.closers {
		c.Close()
	}
	g.closers = nil
	if g.driver != nil {
		if err := g.driver.Close(); err != nil {
			g.log.Warn().Err(err).Msg("bus close")
		}
		g.driver = nil
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			g.log.Warn().Err(err).Msg("database close")
		}
		g.db = nil
	}
}
