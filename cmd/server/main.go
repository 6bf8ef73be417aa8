package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkohlmann/cadence/internal/cache"
	"github.com/mkohlmann/cadence/internal/config"
	"github.com/mkohlmann/cadence/internal/enrich"
	"github.com/mkohlmann/cadence/internal/history"
	"github.com/mkohlmann/cadence/internal/logger"
	"github.com/mkohlmann/cadence/internal/playback"
	"github.com/mkohlmann/cadence/internal/remote"
	"github.com/mkohlmann/cadence/internal/server"
	"github.com/mkohlmann/cadence/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", true)
		logger.Log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Pretty)
	logger.Log.Info().Msg("Starting cadence playback service")

	historyRepo, err := history.Open(cfg.Database.Path)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to open history database")
	}

	snapshots, err := store.Open(cfg.Snapshot.Path)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to open snapshot store")
	}
	defer func() {
		if err := snapshots.Close(); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to close snapshot store")
		}
	}()

	cacheStore := cache.NewStore()
	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout, nil)
	enricher := enrich.NewService(cacheStore, client, cfg.Cache.DefaultTTL)

	registry := playback.NewRegistry()
	focus := playback.NewFocusMediator()
	video := playback.NewVideoCoordinator(registry, focus, cfg.Playback.HandleRetryDelay)
	audio := playback.NewAudioCoordinator(playback.NewSimEngine(), focus, playback.AudioOptions{
		StatusInterval:     cfg.Playback.StatusInterval,
		CompletionCooldown: cfg.Playback.CompletionCooldown,
		Snapshotter:        snapshots,
		Recorder:           historyRepo,
	})
	defer audio.Close()

	// Resume where the last session left off, if anything was persisted
	snap, err := snapshots.Load()
	switch {
	case err == nil:
		audio.Rehydrate(snap)
		logger.Log.Info().
			Int("queue_length", len(snap.Queue)).
			Msg("Rehydrated playback state from snapshot")
	case errors.Is(err, store.ErrNoSnapshot):
		logger.Log.Debug().Msg("No playback snapshot to rehydrate")
	default:
		logger.Log.Warn().Err(err).Msg("Failed to load playback snapshot")
	}

	srv := server.New(cfg, cacheStore, client, enricher, audio, video, historyRepo, snapshots)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Log.Fatal().Err(err).Msg("Server failed")
	case sig := <-quit:
		logger.Log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
