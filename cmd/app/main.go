package main

import (
	"Allowance/internal/config"
	"Allowance/internal/brokers/nats"
	"Allowance/internal/services/balance"
	"Allowance/internal/services/user"
	"Allowance/internal/storage/postgres"
	"Allowance/internal/storage/redis"
	handler "Allowance/transport"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	natsio "github.com/nats-io/nats.go"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting application", slog.String("env", cfg.Env))

	storage, err := postgres.New(cfg.PostgresCfg.ConnString())
	if err != nil {
		log.Error("failed to connect to postgres", "err", err)
		os.Exit(1)
	}
	defer storage.Close()

	cache := redis.New(cfg.RedisCfg)

	nc, err := natsio.Connect(cfg.NatsCfg.URL)
	if err != nil {
		log.Error("failed to connect to nats", "url", cfg.NatsCfg.URL, "err", err)
		os.Exit(1)
	}
	defer nc.Close()
	log.Info("connected to nats broker", "url", cfg.NatsCfg.URL)

	auditPublisher, err := nats.New(nc, log)
	if err != nil {
		log.Error("failed to init audit publisher", "err", err)
		os.Exit(1)
	}

	validate := validator.New()

	userService := user.New(log, storage, cfg.AuthCfg.Secret, cfg.AuthCfg.TokenTTL)
	balanceService := balance.New(log, storage, storage, auditPublisher)

	authMW := handler.Authenticator(log, cfg.AuthCfg.Secret)
	adminMW := handler.RequireAdmin(log, cfg.AdminEmails)
	idempotencyMW := handler.Idempotency(log, cache)

	userHandler := handler.NewUserHandler(log, userService, validate, authMW)
	balanceHandler := handler.NewBalanceHandler(log, balanceService, validate, authMW, adminMW, idempotencyMW)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handler.Health(storage))

	r.Mount("/api/user", userHandler.Routes())
	r.Mount("/api", balanceHandler.Routes())

	port := ":" + strconv.Itoa(cfg.HTTP.Port)
	log.Info("starting server on " + port)
	if err := http.ListenAndServe(port, r); err != nil {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDev:
		log = slog.New(
			slog.NewJSONHandler(
				os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(
				os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(
				os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
