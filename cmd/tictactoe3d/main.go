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

	"go.uber.org/zap"

	"github.com/jaminalder/cubic-tic-tac-toe/internal/app"
	"github.com/jaminalder/cubic-tic-tac-toe/internal/config"
	"github.com/jaminalder/cubic-tic-tac-toe/internal/domain"
	"github.com/jaminalder/cubic-tic-tac-toe/internal/relay"
	"github.com/jaminalder/cubic-tic-tac-toe/internal/store"
	"github.com/jaminalder/cubic-tic-tac-toe/internal/web"
)

var (
	configPath = flag.String("config", os.Getenv("CONFIG"), "Path to a YAML or TOML config file")
	addr       = flag.String("addr", portAddr(), "Address to listen on, overrides http.addr")
)

// portAddr turns the PORT environment variable into a listen address.
func portAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ""
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	results, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer results.Close()

	mode := domain.Windowed
	if cfg.Game.ExhaustiveLines {
		mode = domain.Exhaustive
	}
	svc, err := app.New(app.Config{
		Defaults: app.Options{
			Size:      cfg.Game.Size,
			WinLength: cfg.Game.WinLength,
			AI:        domain.ParseClaim(cfg.Game.AI),
			Mode:      mode,
		},
		MaxSize:   cfg.Game.MaxSize,
		LineCache: cfg.Game.LineCache,
		Recorder:  results,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	hub := relay.NewHub(log.Named("relay"), relay.Options{
		Scenes:     cfg.Relay.Scenes,
		SendBuffer: cfg.Relay.SendBuffer,
	})
	handler := web.NewServer(svc,
		web.WithLogger(log.Named("http")),
		web.WithStats(results),
		web.WithRelay(hub),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", cfg.HTTP.Addr),
			zap.Int("size", cfg.Game.Size), zap.Int("winLength", cfg.Game.WinLength))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
