package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"virtual-tourist-backend/internal/config"
	"virtual-tourist-backend/internal/flickr"
	"virtual-tourist-backend/internal/imagecache"
	"virtual-tourist-backend/internal/objectstore"
	"virtual-tourist-backend/internal/repository"
	"virtual-tourist-backend/internal/services"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const configEnv = "VT_CONFIG"

func Run() {
	// Load configuration
	path := os.Getenv(configEnv)
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx := context.Background()

	// Open record store
	store, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to open database")
	}
	defer store.Close()
	log.Info().Str("driver", store.DatabaseType()).Msg("Database connection established")

	// Image cache and optional bucket mirror
	cache, err := imagecache.New(cfg.Cache.Dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Cache.Dir).Msg("Failed to create image cache")
	}
	mirror, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.ObjectStore.Driver).Msg("Failed to create object store")
	}

	// Push notifications for offline travelers
	var pusher services.Pusher
	apns, err := services.NewAPNSPusher(cfg.APNS, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create APNs client")
	}
	if apns != nil {
		pusher = apns
	}

	// Initialize services
	searcher := flickr.NewClient(cfg.Flickr)
	fetcher := services.NewHTTPImageFetcher(cfg.Cache)
	wsHub := services.NewWSHub(pusher)
	defer wsHub.Close()

	albumOpts := []services.AlbumOption{services.WithNotifier(wsHub)}
	if mirror != nil {
		albumOpts = append(albumOpts, services.WithObjectStore(mirror))
	}
	albumService := services.NewAlbumService(store, searcher, fetcher, cache, albumOpts...)
	pinService := services.NewPinService(store, albumService, cfg.Locations.CoordinateTolerance)
	travelerService := services.NewTravelerService(store, cfg.JWT.Secret)
	regionService := services.NewRegionService(store)

	r := newRouter(routerDeps{
		store:     store,
		hub:       wsHub,
		travelers: travelerService,
		pins:      pinService,
		albums:    albumService,
		regions:   regionService,
	})

	// Create HTTP server. Album loads wait on the photo search, so the
	// write timeout covers a full search.
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Flickr.Timeout + cfg.Cache.FetchTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
