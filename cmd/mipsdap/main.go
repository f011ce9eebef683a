// Package main is the entry point for the mipsdap debug adapter.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/dshills/mipsdap/internal/config"
	"github.com/dshills/mipsdap/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var c CLI
	parser, err := kong.New(&c,
		kong.Name("mipsdap"),
		kong.Description("Debug Adapter Protocol bridge for a MIPS execution engine."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true, Summary: true}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		parser.FatalIfErrorf(err)
		return 1
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if cfg.File != "" {
		logger.Debugw("config loaded", "file", cfg.File)
	}

	if err := ctx.Run(&Globals{Config: cfg, Logger: logger}); err != nil {
		logger.Errorw("mipsdap failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
