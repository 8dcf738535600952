package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"galley/api/internal/app"
	"galley/api/internal/config"
	"galley/api/internal/session"
	"galley/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	log := newLogger(cfg)
	defer log.Sync()

	gateway, err := openGateway(ctx, cfg, log)
	if err != nil {
		log.Fatal("persistence gateway failed", zap.Error(err))
	}
	defer gateway.Close()

	sessions, err := openSessions(cfg, log)
	if err != nil {
		log.Fatal("session store failed", zap.Error(err))
	}
	defer sessions.Close()

	service := app.New(cfg, log, gateway, sessions)
	if err := service.Bootstrap(ctx); err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}

	httpServer := app.NewHTTPServer(service, cfg, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("galley API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}

func openGateway(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Gateway, error) {
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		log.Info("using PostgreSQL state persistence")
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	log.Info("using file state persistence", zap.String("path", cfg.StateFile))
	return store.NewFileGateway(cfg.StateFile)
}

func openSessions(cfg config.Config, log *zap.Logger) (session.Store, error) {
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Info("using Redis session storage")
		return session.NewRedisStore(cfg.RedisURL)
	}
	log.Info("using in-memory session storage")
	return session.NewMemoryStore(), nil
}

func newLogger(cfg config.Config) *zap.Logger {
	if cfg.Production() {
		logger, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger
}
