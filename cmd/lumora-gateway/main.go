package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"lumora/config"
	"lumora/gateway"
	"lumora/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not read .env: %v\n", err)
	}

	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid gateway configuration:\n%v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Stderr, cfg.LogLevel, os.Getenv("NO_COLOR") != "")
	if cfg.UpstreamAPIKey == "" {
		log.Warn("UPSTREAM_API_KEY is not set; chat requests will fail")
	}

	gin.SetMode(gin.ReleaseMode)
	srv := gateway.NewServer(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, shutdownTimeout); err != nil {
		log.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
	log.Info("gateway stopped")
}
