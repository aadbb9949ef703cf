// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/unclebandit/garage-campaigns/internal/config"
	"github.com/unclebandit/garage-campaigns/internal/controller"
	"github.com/unclebandit/garage-campaigns/internal/db"
	"github.com/unclebandit/garage-campaigns/internal/email"
	"github.com/unclebandit/garage-campaigns/internal/handler"
	"github.com/unclebandit/garage-campaigns/internal/logger"
	"github.com/unclebandit/garage-campaigns/internal/queue"
	"github.com/unclebandit/garage-campaigns/internal/repository"
	"github.com/unclebandit/garage-campaigns/internal/service"
)

func main() {
	// Load .env
	envErr := godotenv.Load()

	cfg, err := config.Load(context.Background())
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.App)
	if envErr != nil {
		log.Debug().Msg("no .env file found, relying on OS environment variables")
	}
	log.Info().Str("config", cfg.String()).Msg("starting api server")

	conn, err := db.Connect(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	customerRepo := &repository.CustomerRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	tenantRepo := &repository.TenantRepository{DB: conn}

	q, closeQueue := openQueue(cfg, log, campaignRepo, contactRepo, tenantRepo)
	defer closeQueue()

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		CustomerRepo: customerRepo,
		Contacts:     contactRepo,
		SendContext:  tenantRepo,
		Queue:        q,
		Topic:        cfg.Queue.Topic,
		Logger:       log,
	}
	campaignController := controller.NewCampaignController(campaignService)
	campaignHandler := handler.NewCampaignHandler(campaignService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))

	// Campaign routes
	r.Route("/campaigns/{id}", func(r chi.Router) {
		r.Get("/", campaignHandler.GetCampaignHandlerWithStats)
		r.Post("/send", campaignController.SendCampaign)
		r.Post("/requeue", campaignController.RequeueCampaign)
		r.Post("/preview", campaignController.PersonalizedPreview)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthz(conn))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}

// openQueue returns the publisher for campaign jobs. With the memory driver the
// server also runs the dispatcher in-process.
func openQueue(
	cfg *config.Config,
	log zerolog.Logger,
	campaigns *repository.CampaignRepository,
	contacts *repository.ContactRepository,
	tenants *repository.TenantRepository,
) (queue.Queue, func()) {
	if cfg.Queue.Driver == "memory" {
		q := queue.NewInMemoryQueue(log, cfg.Worker.MaxAttempts, cfg.Worker.RetryBackoff)
		sender := email.NewRouter(cfg.Email, log)
		d := service.NewDispatcher(campaigns, contacts, tenants, sender, cfg.Worker, cfg.Email.DefaultFrom, log)
		if err := service.NewWorker(d, log).Attach(q, cfg.Queue.Topic); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe in-process worker")
		}
		log.Info().Msg("using in-memory queue with in-process worker")
		return q, func() { _ = q.Close() }
	}

	q, err := queue.NewAMQPQueue(cfg.Queue.AMQPURL, cfg.Worker.MaxAttempts, log)
	if err != nil {
		log.Fatal().Err(err).Msg("broker unavailable")
	}
	return q, func() { _ = q.Close() }
}

func healthz(conn *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		dbStatus := "ok"
		if err := conn.PingContext(ctx); err != nil {
			dbStatus = "down"
		}
		handler.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
			"db":     dbStatus,
		})
	}
}
