package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/secret-chancellor/internal/archive"
	"github.com/DoyleJ11/secret-chancellor/internal/config"
	"github.com/DoyleJ11/secret-chancellor/internal/httpapi"
	"github.com/DoyleJ11/secret-chancellor/internal/hub"
	"github.com/DoyleJ11/secret-chancellor/internal/lobby"
	"github.com/DoyleJ11/secret-chancellor/internal/logging"
	"github.com/DoyleJ11/secret-chancellor/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder lobby.Recorder = archive.Nop{}
	if cfg.DatabaseURL != "" {
		store, openErr := archive.Open(cfg.DatabaseURL, log.Named("archive"))
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, store.Close()) }()
		recorder = store
	} else {
		log.Info("no database configured, finished matches are not archived")
	}

	h := hub.NewHub(ctx, lobby.Options{
		Logger:          log.Named("lobby"),
		Recorder:        recorder,
		RoleRevealDelay: cfg.RoleRevealDelay,
		PhaseDuration:   cfg.PhaseDuration,
		IdleTimeout:     cfg.IdleTimeout,
	})

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, log, ws.Options{
			Logger:         log.Named("ws"),
			AllowedOrigins: cfg.AllowedOrigins,
			ChatRate:       rate.Limit(cfg.ChatRatePerSec),
			ChatBurst:      cfg.ChatBurst,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr := srv.Shutdown(sctx)

		select {
		case h.Inbox() <- hub.ShutdownHub{}:
			<-h.Done()
		case <-h.Done():
		}
		return shutdownErr
	})

	return g.Wait()
}
