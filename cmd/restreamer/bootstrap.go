package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/restreamctl/restreamer/internal/broker"
	"github.com/restreamctl/restreamer/internal/callback"
	"github.com/restreamctl/restreamer/internal/config"
	"github.com/restreamctl/restreamer/internal/netutil"
	"github.com/restreamctl/restreamer/internal/operator"
	"github.com/restreamctl/restreamer/internal/reconcile"
	"github.com/restreamctl/restreamer/internal/state"
)

const (
	brokerRTMPPort  = 1935
	shutdownTimeout = 5 * time.Second
)

// run wires every collaborator together and blocks until ctx is cancelled or
// a component fails. Shutdown is cooperative: cancelling ctx stops the HTTP
// servers and the broker, after which the worker pool and store are torn
// down in order.
func run(ctx context.Context, opts config.Options, log *slog.Logger) error {
	host := opts.PublicHost
	if host == "" {
		detected, err := netutil.DetectHost()
		if err != nil {
			return fmt.Errorf("detecting public host: %w", err)
		}
		host = detected
		log.Info("auto-detected public host", "host", host)
	}

	store, err := state.Open(ctx, opts.StatePath, log.With("component", "state"))
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	defer store.Close()

	pool := reconcile.NewPool(opts.ForwarderPath, log.With("component", "reconcile"))
	controller := reconcile.NewController(pool)
	controller.Subscribe(ctx, store)

	callbackSrv := callback.NewServer(callback.ServerConfig{Store: store, Log: log.With("component", "callback")})
	operatorSrv := operator.NewServer(operator.ServerConfig{Store: store, Log: log.With("component", "operator"), Debug: opts.Debug})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveUntilCancel(gctx, opts.CallbackAddr(), callbackSrv.Handler(), log)
	})
	g.Go(func() error {
		return serveUntilCancel(gctx, opts.ClientAddr(), operatorSrv.Handler(), log)
	})
	g.Go(func() error {
		return broker.Run(gctx, broker.Config{
			BinaryPath:   opts.BrokerPath,
			CallbackAddr: opts.CallbackAddr(),
			RTMPPort:     brokerRTMPPort,
			LogLevel:     brokerLogLevel(opts),
			WorkDir:      ".",
		})
	})

	err = g.Wait()
	pool.Stop()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func brokerLogLevel(opts config.Options) string {
	if opts.Verbose || opts.Debug {
		return "verbose"
	}
	return "info"
}

// serveUntilCancel runs an HTTP server on addr until ctx is cancelled, then
// shuts it down gracefully.
func serveUntilCancel(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("error shutting down http server", "addr", addr, "error", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serving %s: %w", addr, err)
		}
		return nil
	}
}
