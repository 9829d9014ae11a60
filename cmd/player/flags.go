package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds user-supplied flag values prior to validation, so main.go
// can validate and map them onto the pipeline.
type cliConfig struct {
	logLevel    string
	ringBytes   uint
	showVersion bool
	sources     []string // one or more input URIs: file paths or http(s)://...
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("player", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.UintVar(&cfg.ringBytes, "ring-bytes", 65536, "Capacity in bytes of the PCM ring between decode and playback")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.sources = fs.Args()
	if !cfg.showVersion && len(cfg.sources) == 0 {
		return nil, errors.New("at least one input URI is required")
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	if cfg.ringBytes == 0 {
		return nil, errors.New("ring-bytes must be greater than 0")
	}

	return cfg, nil
}
