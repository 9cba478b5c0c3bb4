package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"meeting-bot/internal/config"
	"meeting-bot/internal/delivery/http/middleware"
	"meeting-bot/internal/delivery/http/routes"
	"meeting-bot/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

func New(c *Container) *App {
	f := fiber.New(fiber.Config{AppName: c.Config.App.AppName})

	registerGlobalMiddleware(f, c.Logger)

	deps := routes.Deps{
		Jobs:        c.Manager,
		WS:          ws.NewHandler(c.Hub, c.Logger),
		APIKey:      c.Config.Auth.APIKey,
		InternalKey: c.Config.Auth.InternalAPIKey,
		Logger:      c.Logger,
	}
	if c.Tokens != nil && c.Tokens.Enabled() {
		deps.Tokens = c.Tokens
	}
	routes.NewRegistry(deps).Register(f)

	return &App{Fiber: f, Container: c}
}

// Bootstrap builds the container and the HTTP app. The returned cleanup closes external connections.
func Bootstrap(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, func() error, error) {
	c, err := NewContainer(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return New(c), c.Close, nil
}

func registerGlobalMiddleware(app *fiber.App, logger *log.Logger) {
	if app == nil {
		return
	}

	app.Use(middleware.NewAccessLogMiddleware(logger).Middleware())
	app.Use(middleware.NewErrorMiddleware(logger).Middleware())
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
