package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/carelane/visitor-queue/internal/cache"
	"github.com/carelane/visitor-queue/internal/domain"
	"github.com/carelane/visitor-queue/internal/handlers"
	"github.com/carelane/visitor-queue/internal/jobs"
	"github.com/carelane/visitor-queue/internal/mailer"
	"github.com/carelane/visitor-queue/internal/notify"
	"github.com/carelane/visitor-queue/internal/repository"
	"github.com/carelane/visitor-queue/internal/service"
	"github.com/carelane/visitor-queue/pkg/config"
	"github.com/carelane/visitor-queue/pkg/database"
	"github.com/carelane/visitor-queue/pkg/events"
	"github.com/carelane/visitor-queue/pkg/logger"
	mw "github.com/carelane/visitor-queue/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	idempotencyStore, err := cache.NewRedisStore(cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer idempotencyStore.Close()

	// Repositories
	auditRepo := repository.NewAuditRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool, auditRepo, cfg.Queue)
	serviceRepo := repository.NewServiceRepository(pool)
	providerRepo := repository.NewProviderRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	// Services
	clock := domain.SystemClock()
	tokenService := service.NewTokenService(tokenRepo, serviceRepo, eventBus, clock, cfg.Queue)
	queueService := service.NewQueueQueryService(tokenRepo, serviceRepo, clock, cfg.Queue)

	// Notification consumer
	var mail mailer.Service
	switch {
	case cfg.Email.DevMode:
		mail = mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		mail = mailer.NewMailer(cfg.Email.MailerSendKey, "Visitor Queue", cfg.Email.SMTPFrom)
	default:
		mail = mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass)
	}
	consumer := notify.NewConsumer(eventBus, notificationRepo, mail)
	if err := consumer.Start(); err != nil {
		logger.Error("Failed to start notification consumer", "error", err)
		os.Exit(1)
	}

	// Scheduled housekeeping
	scheduler := jobs.NewScheduler(tokenRepo, eventBus, clock, cfg.Queue)
	if err := scheduler.Start(); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	h := handlers.New(tokenService, queueService, providerRepo, serviceRepo, notificationRepo, auditRepo, cfg.Auth.JWTSecret)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("visitor-queue"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tokens", func(r chi.Router) {
			r.With(h.OptionalJWT, mw.Idempotency(idempotencyStore, cfg.Queue.IdempotencyTTL)).Post("/", h.CreateToken)
			r.With(h.RequireJWT).Patch("/{id}/status", h.UpdateTokenStatus)
		})
		r.Get("/tokens-by-service", h.TokensByService)

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", h.ListProviders)
			r.Get("/{id}", h.GetProvider)
			r.With(h.RequireJWT).Post("/", h.CreateProvider)
		})

		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.ListServices)
			r.Get("/{id}", h.GetService)
			r.With(h.RequireJWT).Post("/", h.CreateService)
			r.With(h.RequireJWT).Patch("/{id}", h.SetServiceActive)
			r.With(h.RequireJWT).Post("/{id}/cancel-all", h.CancelAllTokens)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(h.RequireJWT)
			r.Get("/", h.ListNotifications)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})

		r.With(h.RequireJWT).Get("/audit-logs", h.ListAuditLogs)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down visitor-queue service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
	}()

	logger.Info("Starting visitor-queue service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
