package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/lelandsequel/metalledger/internal/config"
	"github.com/lelandsequel/metalledger/internal/pkg/logger"
	"github.com/lelandsequel/metalledger/internal/server"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env (optional)
	if err := godotenv.Load(); err != nil {
		log.Println("metalledger: no .env file found, relying on system env vars")
	}

	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to start metalledger", zap.Error(err))
	}

	zl.Info("metalledger starting",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("store", cfg.StoreDriver))

	if err := srv.Run(ctx); err != nil {
		zl.Fatal("metalledger stopped with error", zap.Error(err))
	}
	zl.Info("metalledger stopped")
}
