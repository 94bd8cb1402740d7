package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ridepool/internal/config"
	"github.com/example/ridepool/internal/ingest"
	"github.com/example/ridepool/internal/logging"
	"github.com/example/ridepool/internal/messaging"
	"github.com/example/ridepool/internal/store"
	"github.com/example/ridepool/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (overrides METRICS_ADDR)")
	flag.Parse()

	cfg, err := config.LoadSweeperConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	logger := logging.NewComponentLogger(cfg.LogLevel, "sweeper")

	sessionStore := buildStore(cfg, logger)

	var messenger messaging.Messenger
	if tm, err := messaging.NewTwilioMessenger(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom); err == nil {
		messenger = tm
	} else {
		logger.Warn("twilio not configured, logging outbound messages", "error", err)
		messenger = &messaging.LogMessenger{Logger: logger}
	}

	sweeper := &sweep.Sweeper{
		Store:     sessionStore,
		Messenger: messenger,
		Timeout:   cfg.SearchTimeout,
		Logger:    logger,
	}
	if len(cfg.KafkaBrokers) > 0 {
		events := ingest.NewEventProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer events.Close()
		sweeper.Events = events
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
			w.Write([]byte("ok"))
		})
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("sweeper running", "interval", cfg.SweepInterval.String(), "timeout", cfg.SearchTimeout.String())

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	sweeper.Sweep(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down sweeper")
			return
		case now := <-ticker.C:
			sweeper.Sweep(ctx, now)
		}
	}
}

func buildStore(cfg config.SweeperConfig, logger *slog.Logger) store.SessionStore {
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
	logger.Warn("using in-memory session store, nothing to sweep across restarts")
	return store.NewMemoryStore()
}
