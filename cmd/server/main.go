package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meeting-bot/internal/app"
	"meeting-bot/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := log.Default()

	bootstrap, cleanup, err := app.Bootstrap(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("failed to bootstrap app: %v", err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			log.Printf("cleanup error: %v", err)
		}
	}()
	c := bootstrap.Container

	addr, err := app.ListenAddr(cfg.App.HTTPPort)
	if err != nil {
		log.Fatalf("invalid HTTP port: %v", err)
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go c.Hub.Run(bgCtx)

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		c.Poller.Run(bgCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- bootstrap.Fiber.Listen(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	case sig := <-sigCh:
		logger.Printf("[Server] shutdown signal=%s active_jobs=%d", sig, c.Manager.ActiveJobs())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := bootstrap.Fiber.ShutdownWithContext(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	stopBackground()
	<-pollerDone
	if err := c.Manager.Shutdown(ctx); err != nil {
		log.Printf("bot shutdown error: %v", err)
	}
	logger.Printf("[Server] stopped")
}
