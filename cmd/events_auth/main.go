package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"events_auth/internal/auth"
	"events_auth/internal/config"
	"events_auth/internal/handler"
	"events_auth/internal/messaging"
	"events_auth/internal/service"
	"events_auth/internal/storage"

	"github.com/gin-gonic/gin"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	//PARSE ARGS
	configPath := config.FetchConfigPath()
	if configPath == "" {
		log.Fatal("failed get config path from flags or CONFIG_PATH")
	}

	cfg := config.MustLoadConfig(configPath)

	//INIT LOGGER
	lgr := setupLogger(cfg.Env)
	lgr.Info("starting events auth service", slog.String("env", cfg.Env))

	if cfg.Env == envProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//INIT DB
	st, err := storage.New(ctx, storage.Options{
		Driver:          cfg.Storage.Driver,
		MongoURI:        cfg.Storage.Mongo.URI,
		MongoDatabase:   cfg.Storage.Mongo.Database,
		UsersCollection: cfg.Storage.Mongo.UsersCollection,
		PostgresURL:     cfg.Storage.Postgres.URL,
	})
	if err != nil {
		lgr.Error("failed to init storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	unread, err := messaging.New(ctx, messaging.Options{
		Driver:             cfg.Messaging.Driver,
		MongoURI:           cfg.Storage.Mongo.URI,
		MongoDatabase:      cfg.Storage.Mongo.Database,
		MessagesCollection: cfg.Messaging.Mongo.MessagesCollection,
		RedisAddr:          cfg.Messaging.Redis.Addr,
		RedisPassword:      cfg.Messaging.Redis.Password,
		RedisDB:            cfg.Messaging.Redis.DB,
		RedisKeyPrefix:     cfg.Messaging.Redis.KeyPrefix,
	})
	if err != nil {
		lgr.Error("failed to init unread messages counter", slog.Any("error", err))
		os.Exit(1)
	}
	defer unread.Close()

	hasher, err := auth.NewPasswordHasher(cfg.Auth.Hasher, cfg.Auth.BcryptCost)
	if err != nil {
		lgr.Error("failed to init password hasher", slog.Any("error", err))
		os.Exit(1)
	}

	authService := service.NewAuthService(st, unread, hasher, auth.NewTokenGenerator(cfg.Auth.TokenLength), lgr)
	sessions := auth.NewSessionIssuer(cfg.Auth.SecretKey, cfg.Auth.SessionTTL)

	h := handler.NewHandler(authService, sessions, handler.Options{
		AuthSecret:     []byte(cfg.Auth.SecretKey),
		AuthCode:       cfg.Auth.Code,
		SessionCookie:  cfg.Auth.SessionCookie,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPM:   cfg.RateLimitRPM,
	}, lgr)

	//INIT SERVER
	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      h.InitRoutes(),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		lgr.Info("http server listening", slog.String("address", cfg.HTTPServer.Address))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("http server stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	lgr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("failed to shut down http server", slog.Any("error", err))
	}

	lgr.Info("events auth service stopped")
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
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
