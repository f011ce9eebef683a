package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/mipsdap/internal/config"
	mdap "github.com/dshills/mipsdap/internal/dap"
	"github.com/dshills/mipsdap/internal/engine/proc"
	"github.com/dshills/mipsdap/internal/logging"
	"github.com/dshills/mipsdap/internal/session"
	"github.com/dshills/mipsdap/internal/stepper"
)

// CLI is the command line.
type CLI struct {
	Config   string `help:"Path to configuration file." type:"path" short:"c"`
	LogLevel string `help:"Log level (debug, info, warn, error)."`

	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Run the debug adapter (stdio unless a listen address is set)."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Globals are shared by every command.
type Globals struct {
	Config *config.Config
	Logger *zap.SugaredLogger
}

// VersionCmd prints build information.
type VersionCmd struct{}

// Run implements the version command.
func (c *VersionCmd) Run(*Globals) error {
	fmt.Printf("mipsdap %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Built: %s\n", date)
	return nil
}

// ServeCmd runs the adapter.
type ServeCmd struct {
	Listen    string   `help:"Accept DAP clients on this TCP address."`
	WSListen  string   `name:"ws-listen" help:"Accept DAP clients over WebSocket on this address."`
	Engine    string   `help:"Engine executable."`
	EngineArg []string `name:"engine-arg" help:"Argument passed to the engine (repeatable)."`
	NoWatch   bool     `name:"no-watch" help:"Do not warn when the debugged file changes."`
}

// apply layers the flags over cfg.
func (c *ServeCmd) apply(cfg *config.Config) {
	if c.Listen != "" {
		cfg.Server.Listen = c.Listen
	}
	if c.WSListen != "" {
		cfg.Server.WSListen = c.WSListen
	}
	if c.Engine != "" {
		cfg.Engine.Command = c.Engine
	}
	if len(c.EngineArg) > 0 {
		cfg.Engine.Args = c.EngineArg
	}
	if c.NoWatch {
		cfg.Watch.Enabled = false
	}
}

// Run implements the serve command.
func (c *ServeCmd) Run(g *Globals) error {
	cfg := g.Config
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := sessionOptions(cfg, g.Logger)
	if cfg.Server.Listen == "" && cfg.Server.WSListen == "" {
		if cfg.Log.Output == "stdout" {
			return fmt.Errorf("%w: log.output can not be stdout in stdio mode", config.ErrInvalidValue)
		}
		g.Logger.Infow("serving on stdio", "version", version)
		return session.New(mdap.NewStreamTransport(os.Stdin, os.Stdout), opts).Run(ctx)
	}
	return serveListeners(ctx, cfg, opts, g.Logger)
}

func sessionOptions(cfg *config.Config, logger *zap.SugaredLogger) session.Options {
	return session.Options{
		Factory: proc.NewFactory(proc.Config{
			Command:        cfg.Engine.Command,
			Args:           cfg.Engine.Args,
			RequestTimeout: cfg.Engine.RequestTimeout,
			Logger:         logging.WithComponent(logger, "engine"),
		}),
		Stepper: stepper.Config{
			BatchSize: cfg.Autorun.BatchSize,
			IdleDelay: cfg.Autorun.IdleDelay,
		},
		Watch:  cfg.Watch.Enabled,
		Logger: logger,
	}
}

// serveListeners runs the TCP and WebSocket listeners that are configured
// until ctx is cancelled or one of them fails.
func serveListeners(ctx context.Context, cfg *config.Config, opts session.Options, logger *zap.SugaredLogger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if cfg.Server.Listen != "" {
		ln, err := net.Listen("tcp", cfg.Server.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := session.Serve(ctx, ln, opts); err != nil {
				errs <- fmt.Errorf("tcp server: %w", err)
				cancel()
			}
		}()
	}

	if cfg.Server.WSListen != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Server.WSPath, session.WebSocketHandler(ctx, opts, nil))
		srv := &http.Server{Addr: cfg.Server.WSListen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Infow("listening for websocket clients", "address", cfg.Server.WSListen, "path", cfg.Server.WSPath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("websocket server: %w", err)
				cancel()
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	wg.Wait()
	close(errs)
	return errors.Join(collect(errs)...)
}

func collect(errs <-chan error) []error {
	var out []error
	for err := range errs {
		out = append(out, err)
	}
	return out
}
