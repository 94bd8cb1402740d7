package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/example/ridepool/internal/config"
	"github.com/example/ridepool/internal/conversation"
	"github.com/example/ridepool/internal/distance"
	"github.com/example/ridepool/internal/geo"
	"github.com/example/ridepool/internal/httpapi"
	"github.com/example/ridepool/internal/ingest"
	"github.com/example/ridepool/internal/logging"
	"github.com/example/ridepool/internal/match"
	"github.com/example/ridepool/internal/messaging"
	"github.com/example/ridepool/internal/sanitize"
	"github.com/example/ridepool/internal/store"
	"github.com/example/ridepool/internal/translate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewComponentLogger(cfg.LogLevel, "server")

	if cfg.RunMigrations && cfg.PGDSN != "" {
		runMigrations(cfg.PGDSN, logger)
	}

	sessionStore := buildStore(cfg, logger)

	geocoder := geo.NewClient(cfg.GeocodeURL, cfg.GoogleAPIKey)
	translator := translate.NewClient(cfg.TranslateURL, cfg.GoogleAPIKey)

	var cache distance.Cache
	if cfg.RedisAddr != "" {
		cache = distance.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.DistanceCacheTTL)
	} else {
		cache = distance.NewMemoryCache(cfg.DistanceCacheTTL)
	}
	distClient := &distance.CachedClient{
		Client: distance.NewGoogleClient(cfg.DistanceURL, cfg.GoogleAPIKey),
		Cache:  cache,
	}

	var messenger messaging.Messenger
	if tm, err := messaging.NewTwilioMessenger(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom); err == nil {
		messenger = tm
	} else {
		logger.Warn("twilio not configured, logging outbound messages", "error", err)
		messenger = &messaging.LogMessenger{Logger: logger}
	}
	feed := messaging.NewWSRegistry(logger)
	messenger = &messaging.Tee{Primary: messenger, Feed: feed}

	finder := &match.Finder{
		Store:            sessionStore,
		Scorer:           &match.Scorer{Distance: distClient},
		ThresholdMinutes: cfg.MatchThresholdMinutes,
		Logger:           logger,
	}

	engine := &conversation.Engine{
		Store:      sessionStore,
		Geocoder:   geocoder,
		Translator: translator,
		Messenger:  messenger,
		Filter:     sanitize.NewHTTPFilter(cfg.ProfanityURL),
		Matcher:    finder,
		Logger:     logger,
	}
	if len(cfg.KafkaBrokers) > 0 {
		events := ingest.NewEventProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer events.Close()
		engine.Events = events
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(engine, feed, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("ridepool listening", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func buildStore(cfg config.ServerConfig, logger *slog.Logger) store.SessionStore {
	if cfg.GridAPIURL != "" {
		return store.NewGridStore(cfg.GridAPIURL, cfg.GridAuthID, cfg.GridID, cfg.GridViewID)
	}
	if cfg.PGDSN != "" {
		if ps, err := store.NewPostgresStore(cfg.PGDSN); err == nil {
			return ps
		} else {
			logger.Error("postgres unavailable, falling back to memory store", "error", err)
		}
	}
	logger.Warn("using in-memory session store, sessions will not survive restarts")
	return store.NewMemoryStore()
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open failed", "error", err)
		return
	}
	defer db.Close()

	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rider_sessions.sql"))
	if err != nil {
		logger.Error("migration read failed", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec failed", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_rider_sessions.sql")
}
