// Package server provides the HTTP server setup and routing configuration.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mkohlmann/cadence/internal/api"
	"github.com/mkohlmann/cadence/internal/cache"
	"github.com/mkohlmann/cadence/internal/config"
	"github.com/mkohlmann/cadence/internal/enrich"
	"github.com/mkohlmann/cadence/internal/history"
	"github.com/mkohlmann/cadence/internal/logger"
	"github.com/mkohlmann/cadence/internal/middleware"
	"github.com/mkohlmann/cadence/internal/playback"
	"github.com/mkohlmann/cadence/internal/remote"
	"github.com/mkohlmann/cadence/internal/store"
)

// snapshotInterval is how often the playback snapshot is autosaved in
// addition to the save-on-change path.
const snapshotInterval = 30 * time.Second

// Server represents the HTTP server
type Server struct {
	config      *config.Config
	cacheStore  *cache.Store
	coordinator *cache.Coordinator
	client      *remote.Client
	enricher    *enrich.Service
	audio       *playback.AudioCoordinator
	video       *playback.VideoCoordinator
	scrub       *playback.ScrubController
	historyRepo *history.Repository
	snapshots   *store.SnapshotStore
	router      *gin.Engine
	server      *http.Server

	snapshotStop chan struct{}
	snapshotDone chan struct{}
}

// New creates a new server instance. The playback coordinators and stores
// are constructed by the caller so they can be rehydrated before serving.
func New(
	cfg *config.Config,
	cacheStore *cache.Store,
	client *remote.Client,
	enricher *enrich.Service,
	audio *playback.AudioCoordinator,
	video *playback.VideoCoordinator,
	historyRepo *history.Repository,
	snapshots *store.SnapshotStore,
) *Server {
	scrub := playback.NewScrubController(
		cfg.Playback.SeekEpsilon,
		cfg.Playback.SeekStableTicks,
		func(target float64) {
			audio.SeekToProgress(context.Background(), target)
		},
	)

	// Feed raw progress back into the scrub controller so pending seeks can
	// settle against what the engine actually reports.
	audio.OnChange(func(st playback.Status) {
		if st.DurationMs > 0 {
			scrub.Observe(float64(st.PositionMs) / float64(st.DurationMs))
		}
	})

	return &Server{
		config:       cfg,
		cacheStore:   cacheStore,
		coordinator:  cache.NewCoordinator(cacheStore),
		client:       client,
		enricher:     enricher,
		audio:        audio,
		video:        video,
		scrub:        scrub,
		historyRepo:  historyRepo,
		snapshots:    snapshots,
		snapshotStop: make(chan struct{}),
		snapshotDone: make(chan struct{}),
	}
}

// setupRouter initializes the Gin router with middleware and routes
func (s *Server) setupRouter() {
	// Set Gin mode based on log level
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create new Gin router
	s.router = gin.New()

	// Add middleware stack
	s.router.Use(middleware.RequestLogger()) // Custom zerolog request logger
	s.router.Use(gin.Recovery())             // Panic recovery
	s.router.Use(cors.Default())             // CORS support (allows all origins)

	// Create API route group
	apiGroup := s.router.Group("/api")

	// Register service routes
	api.SetupHealthRoutes(apiGroup, s.historyRepo)
	api.SetupFeedRoutes(apiGroup, s.coordinator, s.client, s.enricher, s.config.Cache.DefaultTTL)
	api.SetupPlaybackRoutes(apiGroup, s.audio, s.video, s.scrub)
	api.SetupHistoryRoutes(apiGroup, s.historyRepo)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.setupRouter()

	s.cacheStore.StartSweeper(s.config.Cache.SweepInterval)
	go s.runSnapshotLoop()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	logger.Log.Info().
		Str("host", s.config.Server.Host).
		Int("port", s.config.Server.Port).
		Msg("Starting HTTP server")

	return s.server.ListenAndServe()
}

// runSnapshotLoop periodically persists the current playback snapshot
func (s *Server) runSnapshotLoop() {
	defer close(s.snapshotDone)

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.snapshots.Save(s.audio.Snapshot()); err != nil {
				logger.Log.Warn().Err(err).Msg("Failed to autosave playback snapshot")
			}
		case <-s.snapshotStop:
			return
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log.Info().Msg("Shutting down server gracefully")

	close(s.snapshotStop)
	<-s.snapshotDone

	s.cacheStore.StopSweeper()

	// Wait for in-flight background profile fetches
	s.enricher.Wait()

	// One final snapshot so the last transport action survives restart
	if err := s.snapshots.Save(s.audio.Snapshot()); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to save final playback snapshot")
	}

	// Check if server was started before attempting shutdown
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	logger.Log.Info().Msg("Server stopped")
	return nil
}
