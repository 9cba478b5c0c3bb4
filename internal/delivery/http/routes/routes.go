package routes

import (
	"log"

	"meeting-bot/internal/delivery/http/handler"
	"meeting-bot/internal/delivery/http/middleware"
	"meeting-bot/internal/ws"

	"github.com/gofiber/fiber/v3"
)

// JobAPI is what the routes need from the job manager.
type JobAPI interface {
	handler.JobService
	handler.StatusUpdater
}

type Deps struct {
	Jobs        JobAPI
	WS          *ws.Handler
	APIKey      string
	InternalKey string
	Tokens      middleware.TokenValidator
	Logger      *log.Logger
}

type Registry struct {
	health   *handler.HealthHandler
	jobs     *handler.BotJobsHandler
	internal *handler.InternalStatusHandler
	ws       *ws.Handler

	apiAuth      *middleware.AuthMiddleware
	internalAuth *middleware.InternalKeyMiddleware
}

func NewRegistry(d Deps) *Registry {
	return &Registry{
		health:       handler.NewHealthHandler(),
		jobs:         handler.NewBotJobsHandler(d.Jobs),
		internal:     handler.NewInternalStatusHandler(d.Jobs, d.Logger),
		ws:           d.WS,
		apiAuth:      middleware.NewAuthMiddleware(d.APIKey, d.Tokens),
		internalAuth: middleware.NewInternalKeyMiddleware(d.InternalKey),
	}
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	r.registerHealth(app)
	r.registerAPI(app)
	r.registerWS(app)
}

func (r *Registry) registerHealth(app *fiber.App) {
	r.health.RegisterRoutes(app)
}

func (r *Registry) registerAPI(app *fiber.App) {
	api := app.Group("/api")

	internal := api.Group("/internal", r.internalAuth.Middleware())
	r.internal.RegisterRoutes(internal)

	jobs := api.Group("/jobs", r.apiAuth.Middleware())
	r.jobs.RegisterRoutes(jobs)
}

func (r *Registry) registerWS(app *fiber.App) {
	if r.ws == nil {
		return
	}
	app.Get("/ws/jobs", r.apiAuth.WithQueryToken().Middleware(), r.ws.HandleJobsWS)
}
