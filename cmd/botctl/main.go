package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"meeting-bot/internal/cli"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := &cli.Dependencies{
		TokenSecret: os.Getenv("JWT_SECRET"),
		TokenIssuer: os.Getenv("JWT_ISSUER"),
	}
	if deps.TokenIssuer == "" {
		deps.TokenIssuer = "meeting-bot"
	}

	if err := cli.NewRootCmd(deps).ExecuteContext(ctx); err != nil {
		cli.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
