// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zapdesk/zapdesk/internal/config"
	"github.com/zapdesk/zapdesk/internal/handler"
	"github.com/zapdesk/zapdesk/internal/middleware"
	natsclient "github.com/zapdesk/zapdesk/internal/nats"
	"github.com/zapdesk/zapdesk/internal/service"
	"github.com/zapdesk/zapdesk/internal/store"
	"github.com/zapdesk/zapdesk/internal/whatsapp"
	"github.com/zapdesk/zapdesk/pkg/logger"
	"github.com/zapdesk/zapdesk/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting desk API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "zapdesk", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		log.Error("failed to create media directory", zap.Error(err))
		os.Exit(1)
	}

	conversations := store.NewConversationStore(db)
	messages := store.NewMessageStore(db)
	attendants := store.NewAttendantStore(db)
	accounts := store.NewAccountStore(db)

	// Event publishing is optional; the desk runs without a broker.
	var events service.EventPublisher
	var natsClient *natsclient.Client
	if cfg.NATSEnabled {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:   cfg.NATSURL,
			Token: cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("failed to connect to NATS, events disabled", zap.Error(err))
		} else {
			defer natsClient.Close()
			events = natsclient.NewPublisher(natsClient)
		}
	}

	intake := service.NewIntake(conversations, messages, events, log)
	reconciler := whatsapp.NewReconciler(intake, cfg.BackfillWindow, log)
	manager := whatsapp.NewManager(whatsapp.Dialer(whatsapp.ProviderConfig{
		StoreDriver:  cfg.WhatsAppStoreDriver,
		StoreDSN:     cfg.WhatsAppStoreDSN,
		MediaDir:     cfg.MediaDir,
		MediaBaseURL: cfg.MediaBaseURL,
	}, log), intake, reconciler, log)
	defer manager.Close()

	messenger := service.NewMessenger(manager, intake, attendants, log)
	conversationSvc := service.NewConversationService(conversations, messages, accounts, events, log)
	accountSvc := service.NewAccountService(accounts, attendants, cfg.JWTSecret, cfg.JWTExpiration, log)

	// Seed the first admin so a fresh deployment is not locked out of the
	// admin-only registration routes.
	if _, err := accountSvc.Bootstrap(ctx, cfg.AdminName, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Error("failed to seed initial admin account", zap.Error(err))
		os.Exit(1)
	}

	healthHandler := handler.NewHealthHandler(db)
	authHandler := handler.NewAuthHandler(accountSvc, log)
	attendantHandler := handler.NewAttendantHandler(accountSvc, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(messenger, cfg.MediaDir, cfg.MediaBaseURL, log)
	whatsappHandler := handler.NewWhatsAppHandler(manager, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Downloaded and uploaded attachments.
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.MediaDir))))

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.With(middleware.RequireAdmin()).Post("/cadastro", authHandler.Register)

			r.Get("/atendentes", attendantHandler.List)
			r.With(middleware.RequireAdmin()).Post("/atendentes", attendantHandler.Create)

			r.Get("/conversas", conversationHandler.List)
			r.Get("/mensagens/{id}", conversationHandler.Messages)
			r.Route("/conversa/{id}", func(r chi.Router) {
				r.Delete("/", conversationHandler.Delete)
				r.Put("/status", conversationHandler.UpdateStatus)
				r.Patch("/fixar", conversationHandler.Pin)
				r.Delete("/limpar", conversationHandler.PurgeMessages)
			})

			r.Post("/enviar", messageHandler.Send)
			r.Post("/enviar-nota", messageHandler.SendNote)
			r.Post("/enviar-midia", messageHandler.SendMedia)

			r.Route("/whatsapp", func(r chi.Router) {
				r.Get("/status", whatsappHandler.Status)
				r.Get("/qr", whatsappHandler.QR)
				r.Post("/reconnect", whatsappHandler.Reconnect)
			})
		})
	})

	// Pairing and connection proceed in the background; the API serves
	// regardless of transport state.
	go func() {
		if err := manager.Connect(context.Background()); err != nil {
			log.Error("whatsapp connect failed", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
