package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment overrides, applied on top of the config file.
const (
	EnvLevel   = "MCDU429_LOG_LEVEL"
	EnvNoColor = "MCDU429_LOG_NOCOLOR"
)

// Options selects level and console styling.
type Options struct {
	Level   string
	NoColor bool
	Out     io.Writer
}

// New builds the process logger and installs it as the zerolog global.
// An unparseable level falls back to info.
func New(app string, opts Options) zerolog.Logger {
	if v, ok := os.LookupEnv(EnvLevel); ok && v != "" {
		opts.Level = v
	}
	if v, ok := os.LookupEnv(EnvNoColor); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.NoColor = b
		}
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        opts.Out,
		TimeFormat: time.RFC3339,
		NoColor:    opts.NoColor,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// Nop returns a logger that discards everything.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
