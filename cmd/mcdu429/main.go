package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

const VERSION = "1.0.0"

func main() {
	var (
		configFile = flag.String("config", getDefaultConfig(), "Configuration file path")
		version    = flag.Bool("version", false, "Show version information")
		debug      = flag.Bool("debug", false, "Force debug logging")
	)
	flag.Parse()

	if *version {
		fmt.Printf("mcdu429 v%s\n", VERSION)
		fmt.Println("ARINC 739 MCDU transport over ARINC-429")
		return
	}

	// Handle non-flag arguments (config file)
	if flag.NArg() > 0 {
		*configFile = flag.Arg(0)
	}

	gateway, err := NewGateway(*configFile, *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcdu429: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("version", VERSION).Str("config", *configFile).Msg("mcdu429 starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gateway.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("gateway error")
	}

	log.Info().Msg("mcdu429 stopped")
}

// getDefaultConfig prefers ./mcdu429.toml, then /etc/mcdu429.toml.
func getDefaultConfig() string {
	if _, err := os.Stat("mcdu429.toml"); err == nil {
		return "mcdu429.toml"
	}

	systemConfig := "/etc/mcdu429.toml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig
	}

	return "mcdu429.toml"
}
