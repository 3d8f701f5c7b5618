package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invite_service/internal/config"
	"invite_service/internal/http_server/handlers/adminlogin"
	"invite_service/internal/http_server/handlers/refreshtoken"
	"invite_service/internal/http_server/handlers/register"
	"invite_service/internal/http_server/handlers/sendemails"
	"invite_service/internal/http_server/handlers/uploadcsv"
	"invite_service/internal/http_server/handlers/users"
	verifyHandler "invite_service/internal/http_server/handlers/verify"
	"invite_service/internal/http_server/handlers/verifydiscord"
	"invite_service/internal/invite"
	sl "invite_service/internal/lib/logger"
	"invite_service/internal/middleware/adminauth"
	"invite_service/internal/middleware/apikey"
	rateLimit "invite_service/internal/middleware/ratelimit"
	"invite_service/internal/rabbitmq"
	"invite_service/internal/storage/postgres"
	"invite_service/internal/token"
	"invite_service/internal/verify"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := setupLogger(cfg.Env)

	log.Info("starting invite service api", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	if err := postgres.RunMigrations(cfg); err != nil {
		log.Error("failed to run migrations", sl.Err(err))
		os.Exit(1)
	}

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	tokens := token.New(log, storage, cfg.Tokens.ExpiryDays)
	gateway := verify.New(log, storage, storage, tokens)
	invites := invite.New(log, storage, tokens, msgBroker)

	router := setupRouter(log, cfg, gateway, invites)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}
}

func setupRouter(
	log *slog.Logger,
	cfg *config.Config,
	gateway *verify.Gateway,
	invites *invite.Service,
) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(rateLimit.Verify())
		r.Post("/verify", verifyHandler.New(log, validate, gateway))
		r.Post("/register", register.New(log, validate, invites))
	})

	r.Group(func(r chi.Router) {
		r.Use(rateLimit.Verify())
		r.Use(apikey.Require(cfg.SecretKey))
		r.Post("/verify-discord", verifydiscord.New(log, validate, gateway))
	})

	r.Group(func(r chi.Router) {
		r.Use(rateLimit.AdminLogin())
		r.Post("/admin/login", adminlogin.New(
			log, validate,
			cfg.Admin.Username, cfg.Admin.PasswordHash,
			cfg.Admin.JWTSecret, cfg.Admin.JWTTTL,
		))
	})

	r.Group(func(r chi.Router) {
		r.Use(adminauth.Require(cfg.Admin.JWTSecret))

		r.Get("/users", users.NewList(log, invites))
		r.Delete("/users/{userID}", users.NewDelete(log, invites))
		r.Delete("/all", users.NewDeleteAll(log, invites))

		r.With(rateLimit.RefreshToken()).
			Post("/refresh-token/{userID}", refreshtoken.New(log, invites))

		r.With(rateLimit.Upload()).
			Post("/upload-csv", uploadcsv.New(log, validate, invites))

		r.Post("/send-emails", sendemails.New(log, validate, invites))
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
