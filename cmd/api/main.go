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

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/channel"
	"github.com/capitalize-ai/support-router/internal/classifier"
	"github.com/capitalize-ai/support-router/internal/config"
	"github.com/capitalize-ai/support-router/internal/handler"
	"github.com/capitalize-ai/support-router/internal/llm"
	"github.com/capitalize-ai/support-router/internal/model"
	natsclient "github.com/capitalize-ai/support-router/internal/nats"
	"github.com/capitalize-ai/support-router/internal/policy"
	"github.com/capitalize-ai/support-router/internal/service"
	"github.com/capitalize-ai/support-router/internal/store"
	"github.com/capitalize-ai/support-router/pkg/logger"
	"github.com/capitalize-ai/support-router/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-router", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	rules, err := cfg.Rules()
	if err != nil {
		log.Fatal("failed to load routing rules", zap.Error(err))
	}

	// Conversation store
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPGStore(ctx, store.PGConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: int32(cfg.DBMaxConns),
			MinConns: int32(cfg.DBMinConns),
		})
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		st = pg
		log.Info("using postgres conversation store")
	} else {
		st = store.NewMemoryStore()
		log.Warn("DATABASE_URL not set, conversations are kept in memory")
	}
	defer st.Close()

	backend, err := newBackend(cfg)
	if err != nil {
		log.Fatal("failed to create classifier backend", zap.Error(err))
	}
	gateway := classifier.NewGateway(backend, cfg.ClassifierTimeout, rules.FallbackText, log)

	// Connect to NATS when enabled
	var natsClient *natsclient.Client
	var streamManager *natsclient.StreamManager
	if cfg.NATSEnabled {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     "support-router",
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager = natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
	}

	// Outbound channels
	dispatcher := channel.NewDispatcher(cfg.DeliveryTimeout, log)
	if cfg.FacebookPageToken != "" {
		dispatcher.Register(model.PlatformFacebook, channel.NewFacebook(cfg.FacebookPageToken, cfg.FacebookGraphURL, &http.Client{Timeout: cfg.DeliveryTimeout}))
	}
	var telegram *channel.Telegram
	if cfg.TelegramBotToken != "" {
		telegram, err = channel.NewTelegram(cfg.TelegramBotToken, cfg.DeliveryTimeout, log)
		if err != nil {
			log.Fatal("failed to create telegram bot", zap.Error(err))
		}
		dispatcher.Register(model.PlatformTelegram, telegram)
	}
	if streamManager != nil {
		dispatcher.Register(model.PlatformWeb, channel.NewWeb(streamManager, model.SenderAgent))
	}

	deps := service.Deps{
		Store:      st,
		Classifier: gateway,
		Policy:     policy.New(rules),
		Delivery:   dispatcher,
		Logger:     log,
	}
	if streamManager != nil {
		deps.Events = streamManager
	}
	svc := service.New(deps)

	if telegram != nil {
		go telegram.Poll(ctx, svc, dispatcher)
	}

	// Initialize handlers
	handlers := handler.Handlers{
		Health:        handler.NewHealthHandler(st, natsClient),
		Sessions:      handler.NewSessionHandler(svc, log),
		Conversations: handler.NewConversationHandler(svc, log),
		Review:        handler.NewReviewHandler(svc, log),
		Webhook:       handler.NewWebhookHandler(svc, dispatcher, cfg.FacebookVerifyToken, log),
	}
	if streamManager != nil {
		handlers.Stream = handler.NewStreamHandler(svc, streamManager, log)
	}

	r := handler.NewRouter(handlers, handler.RouterOptions{
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func newBackend(cfg *config.Config) (classifier.Backend, error) {
	switch cfg.ClassifierBackend {
	case config.BackendOpenAI:
		client, err := llm.NewClient(llm.ProviderOpenAI, cfg.OpenAIAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, err
		}
		return classifier.NewLLMBackend(client), nil
	case config.BackendAnthropic:
		client, err := llm.NewClient(llm.ProviderAnthropic, cfg.AnthropicAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, err
		}
		return classifier.NewLLMBackend(client), nil
	default:
		return classifier.NewHTTPBackend(cfg.ClassifierURL, &http.Client{Timeout: cfg.ClassifierTimeout}), nil
	}
}
