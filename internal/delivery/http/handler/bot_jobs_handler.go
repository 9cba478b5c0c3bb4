package handler

import (
	"context"
	"errors"
	"strings"

	"meeting-bot/internal/delivery/http/middleware"
	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/pkg/response"
	"meeting-bot/internal/usecase/meetingbot"

	"github.com/gofiber/fiber/v3"
)

type JobService interface {
	CreateJob(ctx context.Context, p meetingbot.CreateJobParams) (bot.Job, error)
	GetJob(ctx context.Context, id string) (bot.Job, error)
	ListJobs(ctx context.Context) ([]bot.Job, error)
	StopJob(ctx context.Context, id string) error
}

type BotJobsHandler struct {
	jobs JobService
}

func NewBotJobsHandler(jobs JobService) *BotJobsHandler {
	return &BotJobsHandler{jobs: jobs}
}

type jobListResponse struct {
	Jobs []bot.Job `json:"jobs"`
}

func (h *BotJobsHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}

	r.Post("/", h.HandleCreate)
	r.Get("/", h.HandleList)
	r.Get("/:jobId", h.HandleGet)
	r.Post("/:jobId/stop", h.HandleStop)
}

func (h *BotJobsHandler) HandleCreate(c fiber.Ctx) error {
	var req meetingbot.CreateJobParams
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Invalid JSON body", err)
	}

	job, err := h.jobs.CreateJob(c.Context(), req)
	if err != nil {
		return mapJobError(err)
	}
	return response.OK(c, job.ID)
}

func (h *BotJobsHandler) HandleGet(c fiber.Ctx) error {
	job, err := h.jobs.GetJob(c.Context(), c.Params("jobId"))
	if err != nil {
		return mapJobError(err)
	}
	return response.JSON(c, fiber.StatusOK, job)
}

func (h *BotJobsHandler) HandleList(c fiber.Ctx) error {
	jobs, err := h.jobs.ListJobs(c.Context())
	if err != nil {
		return mapJobError(err)
	}
	if jobs == nil {
		jobs = []bot.Job{}
	}
	return response.JSON(c, fiber.StatusOK, jobListResponse{Jobs: jobs})
}

func (h *BotJobsHandler) HandleStop(c fiber.Ctx) error {
	if err := h.jobs.StopJob(c.Context(), c.Params("jobId")); err != nil {
		return mapJobError(err)
	}
	return response.OK(c, "")
}

func mapJobError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, meetingbot.ErrInvalidInput):
		msg := strings.TrimPrefix(err.Error(), meetingbot.ErrInvalidInput.Error()+": ")
		return middleware.NewAppError(fiber.StatusBadRequest, msg, err)
	case errors.Is(err, meetingbot.ErrJobNotFound):
		return middleware.NewAppError(fiber.StatusNotFound, "Job not found", err)
	case errors.Is(err, meetingbot.ErrJobExists):
		return middleware.NewAppError(fiber.StatusConflict, "Job already exists", err)
	case errors.Is(err, meetingbot.ErrShuttingDown):
		return middleware.NewAppError(fiber.StatusServiceUnavailable, meetingbot.ErrShuttingDown.Error(), err)
	default:
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, err)
	}
}
