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

	"github.com/minaorangina/uno/config"
	"github.com/minaorangina/uno/engine"
	"github.com/minaorangina/uno/logger"
	"github.com/minaorangina/uno/server"
	"github.com/minaorangina/uno/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env", "", "path to a .env file")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	gameStore, err := store.NewInMemoryGameStore(store.StoreOpts{
		Capacity: cfg.Capacity,
		Logger:   log.Named("store"),
	})
	if err != nil {
		return err
	}

	dispatcher, err := engine.NewDispatcher(engine.Opts{
		Store:       gameStore,
		HandSize:    cfg.HandSize,
		RetainEmpty: cfg.RetainEmpty,
		Logger:      log.Named("engine"),
	})
	if err != nil {
		return err
	}

	s := server.NewServer(server.ServerOpts{
		Addr:           cfg.Addr,
		Store:          gameStore,
		Handler:        dispatcher,
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.SendBuffer,
		Logger:         log.Named("server"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.Int("capacity", cfg.Capacity))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				gameStore.Sweep(now, cfg.IdleTimeout)
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
