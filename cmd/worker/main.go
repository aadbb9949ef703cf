package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/unclebandit/garage-campaigns/internal/config"
	"github.com/unclebandit/garage-campaigns/internal/db"
	"github.com/unclebandit/garage-campaigns/internal/email"
	"github.com/unclebandit/garage-campaigns/internal/logger"
	"github.com/unclebandit/garage-campaigns/internal/queue"
	"github.com/unclebandit/garage-campaigns/internal/repository"
	"github.com/unclebandit/garage-campaigns/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(context.Background())
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.App)
	log.Info().Str("config", cfg.String()).Msg("starting campaign worker")

	conn, err := db.Connect(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer conn.Close()

	dispatcher := service.NewDispatcher(
		&repository.CampaignRepository{DB: conn},
		&repository.ContactRepository{DB: conn},
		&repository.TenantRepository{DB: conn},
		email.NewRouter(cfg.Email, log),
		cfg.Worker,
		cfg.Email.DefaultFrom,
		log,
	)

	q, err := queue.NewAMQPQueue(cfg.Queue.AMQPURL, cfg.Worker.MaxAttempts, log)
	if err != nil {
		log.Fatal().Err(err).Msg("broker unavailable")
	}
	if err := service.NewWorker(dispatcher, log).Attach(q, cfg.Queue.Topic); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	log.Info().
		Str("topic", cfg.Queue.Topic).
		Int("max_attempts", cfg.Worker.MaxAttempts).
		Str("provider", cfg.Email.Provider).
		Msg("worker running, waiting for campaigns")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	if err := q.Close(); err != nil {
		log.Error().Err(err).Msg("queue close error")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)
	log.Info().Msg("worker stopped")
}
