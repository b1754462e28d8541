// Package main runs the capture core behind a localhost REST and WebSocket server for
// desktop clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/propsnap/backend/internal/app"
	"github.com/propsnap/backend/internal/config"
	"github.com/propsnap/backend/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("PROPSNAP_CONFIG"), "path to a YAML config file")
	manualOnline := flag.Bool("manual-online", false, "take connectivity from PUT /api/sync/online instead of probing")
	flag.Parse()

	if err := run(*configPath, *manualOnline); err != nil {
		fmt.Fprintln(os.Stderr, "propsnap-desktop:", err)
		os.Exit(1)
	}
}

func run(configPath string, manualOnline bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	hub := NewWSHub()
	defer hub.Stop()

	a, err := app.New(cfg, app.Options{
		ManualConnectivity: manualOnline,
		InitiallyOnline:    true,
		Deliverer:          hub,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	a.Engine.SetEventHandler(hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(a, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("Desktop server listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		hub.WatchConnectivity(gctx, a.Monitor)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down desktop server", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
