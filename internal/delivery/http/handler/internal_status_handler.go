package handler

import (
	"context"
	"log"
	"strings"

	"meeting-bot/internal/delivery/http/middleware"
	"meeting-bot/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type StatusUpdater interface {
	HandleStatusUpdate(ctx context.Context, id, status string, data map[string]any) error
}

type statusUpdateRequest struct {
	JobID  string         `json:"jobId"`
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

// InternalStatusHandler receives interim session facts from the meeting-join subsystem.
type InternalStatusHandler struct {
	updates StatusUpdater
	logger  *log.Logger
}

func NewInternalStatusHandler(updates StatusUpdater, logger *log.Logger) *InternalStatusHandler {
	return &InternalStatusHandler{updates: updates, logger: logger}
}

func (h *InternalStatusHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Post("/status", h.HandleStatus)
}

func (h *InternalStatusHandler) HandleStatus(c fiber.Ctx) error {
	var req statusUpdateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Invalid JSON body", err)
	}
	req.JobID = strings.TrimSpace(req.JobID)
	req.Status = strings.TrimSpace(req.Status)
	if req.JobID == "" || req.Status == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "jobId and status are required", nil)
	}

	if err := h.updates.HandleStatusUpdate(c.Context(), req.JobID, req.Status, req.Data); err != nil {
		if h.logger != nil {
			h.logger.Printf("[Internal] job_id=%s status=%s err=%v", req.JobID, req.Status, err)
		}
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, err)
	}
	return response.OK(c, "")
}
