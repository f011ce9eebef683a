package session

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	mdap "github.com/dshills/mipsdap/internal/dap"
)

// Serve accepts connections on ln and runs one Session per connection until
// ctx is cancelled. It waits for running sessions before returning.
func Serve(ctx context.Context, ln net.Listener, opts Options) error {
	logger := opts.logger()
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	logger.Infow("listening", "address", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			runSession(ctx, mdap.NewSocketTransportFromConn(conn), opts, conn.RemoteAddr().String())
		}()
	}
}

// WebSocketHandler upgrades each request and runs a Session over the
// connection. checkOrigin may be nil to accept every origin.
func WebSocketHandler(ctx context.Context, opts Options, checkOrigin func(*http.Request) bool) http.Handler {
	logger := opts.logger()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := mdap.Upgrade(w, r, checkOrigin)
		if err != nil {
			logger.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		runSession(ctx, t, opts, r.RemoteAddr)
	})
}

func runSession(ctx context.Context, t mdap.Transport, opts Options, remote string) {
	s := New(t, opts)
	s.logger.Infow("client connected", "remote", remote)
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warnw("session failed", "remote", remote, "error", err)
	}
}
