package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/arklim/moodwell/internal/infra/app"
	"github.com/arklim/moodwell/internal/infra/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gw, err := app.NewGateway(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init gateway: %v", err)
	}

	if err := gw.Run(ctx); err != nil {
		log.Printf("gateway stopped: %v", err)
		os.Exit(1)
	}
}
