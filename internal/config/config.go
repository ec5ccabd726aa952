package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dbehnke/mcdu429/internal/a739"
	"github.com/dbehnke/mcdu429/internal/arinc"
	"github.com/dbehnke/mcdu429/internal/bus"
	"github.com/dbehnke/mcdu429/internal/display"
	"github.com/dbehnke/mcdu429/internal/transport"
	"github.com/rs/zerolog"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// Heartbeat bounds accepted by Validate.
const (
	MinHeartbeat = 500 * time.Millisecond
	MaxHeartbeat = 900 * time.Millisecond
)

// Bus driver names.
const (
	DriverLoopback = "loopback"
	DriverSerial   = "serial"
	DriverUDP      = "udp"
	DriverModbus   = "modbus"
)

// Page source kinds.
const (
	SourceProSim = "prosim"
	SourceYAML   = "yaml"
	SourceRedis  = "redis"
)

// Endpoint is one [[endpoint]] table after defaults are applied.
type Endpoint struct {
	Name       string
	SAL        uint32
	TxChannel  int
	RxChannel  int
	PageSource string
}

// Source is one [[source]] table.
type Source struct {
	Name      string
	Kind      string
	Path      string
	RedisAddr string
	RedisKey  string
	Poll      time.Duration
}

// Config holds the gateway configuration.
type Config struct {
	filename string

	// Engine section
	tick            time.Duration
	heartbeat       time.Duration
	ackTimeout      time.Duration
	maxRetries      int
	rtsRecordCap    int
	padColumns      bool
	preferredLayout a739.Layout

	endpoints []Endpoint

	// Bus section
	busDriver     string
	serialPort    string
	baud          int
	udpLocal      string
	udpRemote     string
	modbusAddress string
	modbusSlave   uint8

	sources []Source

	// Journal section
	journalEnabled bool
	journalPath    string
	journalBuffer  int

	// HTTP section
	httpEnabled bool
	httpListen  string

	// Logging section
	logLevel   string
	logNoColor bool
}

type fileConfig struct {
	Engine struct {
		Tick            string `toml:"tick"`
		Heartbeat       string `toml:"heartbeat"`
		AckTimeout      string `toml:"ack_timeout"`
		MaxRetries      int    `toml:"max_retries"`
		RTSRecordCap    int    `toml:"rts_record_cap"`
		PadColumns      bool   `toml:"pad_columns"`
		PreferredLayout string `toml:"preferred_layout"`
	} `toml:"engine"`
	Endpoints []fileEndpoint `toml:"endpoint"`
	Bus       struct {
		Driver        string `toml:"driver"`
		SerialPort    string `toml:"serial_port"`
		Baud          int    `toml:"baud"`
		UDPLocal      string `toml:"udp_local"`
		UDPRemote     string `toml:"udp_remote"`
		ModbusAddress string `toml:"modbus_address"`
		ModbusSlave   int    `toml:"modbus_slave"`
	} `toml:"bus"`
	Sources []fileSource `toml:"source"`
	Journal struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
		Buffer  int    `toml:"buffer"`
	} `toml:"journal"`
	HTTP struct {
		Enabled bool   `toml:"enabled"`
		Listen  string `toml:"listen"`
	} `toml:"http"`
	Logging struct {
		Level   string `toml:"level"`
		NoColor bool   `toml:"no_color"`
	} `toml:"logging"`
}

type fileEndpoint struct {
	Name       string `toml:"name"`
	SAL        string `toml:"sal"`
	TxChannel  *int   `toml:"tx_channel"`
	RxChannel  *int   `toml:"rx_channel"`
	PageSource string `toml:"page_source"`
}

type fileSource struct {
	Name      string `toml:"name"`
	Kind      string `toml:"kind"`
	Path      string `toml:"path"`
	RedisAddr string `toml:"redis_addr"`
	RedisKey  string `toml:"redis_key"`
	Poll      string `toml:"poll"`
}

// Defaults for an [[endpoint]] table.
const (
	DefaultEndpointName = "FMC"
	DefaultChannel      = 3
)

// NewConfig creates a configuration with defaults for every setting.
func NewConfig(filename string) *Config {
	return &Config{
		filename:     filename,
		tick:         20 * time.Millisecond,
		heartbeat:    transport.DefaultHeartbeatPeriod,
		ackTimeout:   transport.DefaultAckTimeout,
		maxRetries:   transport.DefaultMaxRetries,
		rtsRecordCap: transport.DefaultRecordCap,
		padColumns:   true,
		endpoints: []Endpoint{{
			Name:      DefaultEndpointName,
			SAL:       a739.DefaultSAL,
			TxChannel: DefaultChannel,
			RxChannel: DefaultChannel,
		}},
		busDriver:     DriverLoopback,
		baud:          115200,
		udpLocal:      ":0",
		modbusSlave:   1,
		journalPath:   "data/mcdu429.db",
		journalBuffer: 1024,
		httpListen:    "127.0.0.1:8429",
		logLevel:      "info",
	}
}

// Load reads and validates the configuration file.
func (c *Config) Load() error {
	var raw fileConfig
	meta, err := toml.DecodeFile(c.filename, &raw)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", c.filename, err)
	}
	if err := c.apply(raw, meta); err != nil {
		return err
	}
	return c.Validate()
}

// LoadFromString loads configuration from a string (useful for testing)
func (c *Config) LoadFromString(data string) error {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.apply(raw, meta); err != nil {
		return err
	}
	return c.Validate()
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return d, nil
}

func (c *Config) apply(raw fileConfig, meta toml.MetaData) error {
	var err error
	e := raw.Engine
	if meta.IsDefined("engine", "tick") {
		if c.tick, err = parseDuration("engine.tick", e.Tick); err != nil {
			return err
		}
	}
	if meta.IsDefined("engine", "heartbeat") {
		if c.heartbeat, err = parseDuration("engine.heartbeat", e.Heartbeat); err != nil {
			return err
		}
	}
	if meta.IsDefined("engine", "ack_timeout") {
		if c.ackTimeout, err = parseDuration("engine.ack_timeout", e.AckTimeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("engine", "max_retries") {
		c.maxRetries = e.MaxRetries
	}
	if meta.IsDefined("engine", "rts_record_cap") {
		c.rtsRecordCap = e.RTSRecordCap
	}
	if meta.IsDefined("engine", "pad_columns") {
		c.padColumns = e.PadColumns
	}
	if meta.IsDefined("engine", "preferred_layout") {
		if c.preferredLayout, err = a739.ParseLayout(e.PreferredLayout); err != nil {
			return fmt.Errorf("%w: engine.preferred_layout: %v", ErrInvalid, err)
		}
	}

	if len(raw.Endpoints) > 0 {
		c.endpoints = c.endpoints[:0]
		for i, fe := range raw.Endpoints {
			ep := Endpoint{
				Name:       strings.TrimSpace(fe.Name),
				SAL:        a739.DefaultSAL,
				TxChannel:  DefaultChannel,
				RxChannel:  DefaultChannel,
				PageSource: strings.TrimSpace(fe.PageSource),
			}
			if ep.Name == "" {
				ep.Name = DefaultEndpointName
			}
			if fe.SAL != "" {
				if ep.SAL, err = arinc.ParseOctalLabel(fe.SAL); err != nil {
					return fmt.Errorf("%w: endpoint[%d].sal: %v", ErrInvalid, i, err)
				}
			}
			if fe.TxChannel != nil {
				ep.TxChannel = *fe.TxChannel
			}
			if fe.RxChannel != nil {
				ep.RxChannel = *fe.RxChannel
			}
			c.endpoints = append(c.endpoints, ep)
		}
	}

	b := raw.Bus
	if meta.IsDefined("bus", "driver") {
		c.busDriver = strings.ToLower(strings.TrimSpace(b.Driver))
	}
	if meta.IsDefined("bus", "serial_port") {
		c.serialPort = strings.TrimSpace(b.SerialPort)
	}
	if meta.IsDefined("bus", "baud") {
		c.baud = b.Baud
	}
	if meta.IsDefined("bus", "udp_local") {
		c.udpLocal = strings.TrimSpace(b.UDPLocal)
	}
	if meta.IsDefined("bus", "udp_remote") {
		c.udpRemote = strings.TrimSpace(b.UDPRemote)
	}
	if meta.IsDefined("bus", "modbus_address") {
		c.modbusAddress = strings.TrimSpace(b.ModbusAddress)
	}
	if meta.IsDefined("bus", "modbus_slave") {
		if b.ModbusSlave < 0 || b.ModbusSlave > 247 {
			return fmt.Errorf("%w: bus.modbus_slave %d out of range 0..247", ErrInvalid, b.ModbusSlave)
		}
		c.modbusSlave = uint8(b.ModbusSlave)
	}

	c.sources = c.sources[:0]
	for i, fs := range raw.Sources {
		src := Source{
			Name:      strings.TrimSpace(fs.Name),
			Kind:      strings.ToLower(strings.TrimSpace(fs.Kind)),
			Path:      strings.TrimSpace(fs.Path),
			RedisAddr: strings.TrimSpace(fs.RedisAddr),
			RedisKey:  strings.TrimSpace(fs.RedisKey),
			Poll:      250 * time.Millisecond,
		}
		if fs.Poll != "" {
			if src.Poll, err = parseDuration(fmt.Sprintf("source[%d].poll", i), fs.Poll); err != nil {
				return err
			}
		}
		c.sources = append(c.sources, src)
	}

	if meta.IsDefined("journal", "enabled") {
		c.journalEnabled = raw.Journal.Enabled
	}
	if meta.IsDefined("journal", "path") {
		c.journalPath = strings.TrimSpace(raw.Journal.Path)
	}
	if meta.IsDefined("journal", "buffer") {
		c.journalBuffer = raw.Journal.Buffer
	}
	if meta.IsDefined("http", "enabled") {
		c.httpEnabled = raw.HTTP.Enabled
	}
	if meta.IsDefined("http", "listen") {
		c.httpListen = strings.TrimSpace(raw.HTTP.Listen)
	}
	if meta.IsDefined("logging", "level") {
		c.logLevel = strings.ToLower(strings.TrimSpace(raw.Logging.Level))
	}
	if meta.IsDefined("logging", "no_color") {
		c.logNoColor = raw.Logging.NoColor
	}
	return nil
}

// Validate checks every setting and reports the first problem.
func (c *Config) Validate() error {
	if c.tick <= 0 {
		return fmt.Errorf("%w: engine.tick must be positive", ErrInvalid)
	}
	if c.heartbeat < MinHeartbeat || c.heartbeat > MaxHeartbeat {
		return fmt.Errorf("%w: engine.heartbeat %v outside %v..%v", ErrInvalid, c.heartbeat, MinHeartbeat, MaxHeartbeat)
	}
	if c.ackTimeout <= 0 {
		return fmt.Errorf("%w: engine.ack_timeout must be positive", ErrInvalid)
	}
	if c.maxRetries < 1 {
		return fmt.Errorf("%w: engine.max_retries %d below 1", ErrInvalid, c.maxRetries)
	}
	if c.rtsRecordCap < 1 || c.rtsRecordCap > display.LineCount {
		return fmt.Errorf("%w: engine.rts_record_cap %d outside 1..%d", ErrInvalid, c.rtsRecordCap, display.LineCount)
	}

	if len(c.endpoints) == 0 {
		return fmt.Errorf("%w: at least one endpoint required", ErrInvalid)
	}
	sources := make(map[string]bool, len(c.sources))
	for i, s := range c.sources {
		if s.Name == "" {
			return fmt.Errorf("%w: source[%d].name required", ErrInvalid, i)
		}
		if sources[s.Name] {
			return fmt.Errorf("%w: duplicate source %q", ErrInvalid, s.Name)
		}
		sources[s.Name] = true
		switch s.Kind {
		case SourceProSim, SourceYAML:
			if s.Path == "" {
				return fmt.Errorf("%w: source %q needs a path", ErrInvalid, s.Name)
			}
		case SourceRedis:
			if s.RedisAddr == "" || s.RedisKey == "" {
				return fmt.Errorf("%w: source %q needs redis_addr and redis_key", ErrInvalid, s.Name)
			}
		default:
			return fmt.Errorf("%w: source %q has unknown kind %q", ErrInvalid, s.Name, s.Kind)
		}
		if s.Poll <= 0 {
			return fmt.Errorf("%w: source %q poll must be positive", ErrInvalid, s.Name)
		}
	}
	names := make(map[string]bool, len(c.endpoints))
	for _, ep := range c.endpoints {
		if names[ep.Name] {
			return fmt.Errorf("%w: duplicate endpoint %q", ErrInvalid, ep.Name)
		}
		names[ep.Name] = true
		if err := bus.ValidateChannel(ep.TxChannel); err != nil {
			return fmt.Errorf("%w: endpoint %q tx_channel: %v", ErrInvalid, ep.Name, err)
		}
		if err := bus.ValidateChannel(ep.RxChannel); err != nil {
			return fmt.Errorf("%w: endpoint %q rx_channel: %v", ErrInvalid, ep.Name, err)
		}
		if ep.PageSource != "" && !sources[ep.PageSource] {
			return fmt.Errorf("%w: endpoint %q references unknown source %q", ErrInvalid, ep.Name, ep.PageSource)
		}
	}

	switch c.busDriver {
	case DriverLoopback:
	case DriverSerial:
		if c.serialPort == "" {
			return fmt.Errorf("%w: bus.serial_port required for serial driver", ErrInvalid)
		}
		if c.baud <= 0 {
			return fmt.Errorf("%w: bus.baud must be positive", ErrInvalid)
		}
	case DriverUDP:
		if c.udpRemote == "" {
			return fmt.Errorf("%w: bus.udp_remote required for udp driver", ErrInvalid)
		}
	case DriverModbus:
		if c.modbusAddress == "" {
			return fmt.Errorf("%w: bus.modbus_address required for modbus driver", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown bus.driver %q", ErrInvalid, c.busDriver)
	}

	if c.journalEnabled && (c.journalPath == "" || c.journalBuffer <= 0) {
		return fmt.Errorf("%w: journal needs a path and a positive buffer", ErrInvalid)
	}
	if c.httpEnabled && c.httpListen == "" {
		return fmt.Errorf("%w: http.listen required when http is enabled", ErrInvalid)
	}
	if _, err := zerolog.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalid, err)
	}
	return nil
}

// Source returns the [[source]] with the given name.
func (c *Config) Source(name string) (Source, bool) {
	for _, s := range c.sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Getter methods for Engine section
func (c *Config) GetTick() time.Duration             { return c.tick }
func (c *Config) GetHeartbeat() time.Duration        { return c.heartbeat }
func (c *Config) GetAckTimeout() time.Duration       { return c.ackTimeout }
func (c *Config) GetMaxRetries() int                 { return c.maxRetries }
func (c *Config) GetRTSRecordCap() int               { return c.rtsRecordCap }
func (c *Config) GetPadColumns() bool                { return c.padColumns }
func (c *Config) GetPreferredLayout() a739.Layout    { return c.preferredLayout }
func (c *Config) GetEndpoints() []Endpoint           { return append([]Endpoint(nil), c.endpoints...) }
func (c *Config) GetSources() []Source               { return append([]Source(nil), c.sources...) }

// Getter methods for Bus section
func (c *Config) GetBusDriver() string     { return c.busDriver }
func (c *Config) GetSerialPort() string    { return c.serialPort }
func (c *Config) GetBaud() int             { return c.baud }
func (c *Config) GetUDPLocal() string      { return c.udpLocal }
func (c *Config) GetUDPRemote() string     { return c.udpRemote }
func (c *Config) GetModbusAddress() string { return c.modbusAddress }
func (c *Config) GetModbusSlave() uint8    { return c.modbusSlave }

// Getter methods for Journal, HTTP and Logging sections
func (c *Config) GetJournalEnabled() bool { return c.journalEnabled }
func (c *Config) GetJournalPath() string  { return c.journalPath }
func (c *Config) GetJournalBuffer() int   { return c.journalBuffer }
func (c *Config) GetHTTPEnabled() bool    { return c.httpEnabled }
func (c *Config) GetHTTPListen() string   { return c.httpListen }
func (c *Config) GetLogLevel() string     { return c.logLevel }
func (c *Config) GetLogNoColor() bool     { return c.logNoColor }
