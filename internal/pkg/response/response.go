package response

import "github.com/gofiber/fiber/v3"

// ErrorBody is the shape of every non-2xx answer.
type ErrorBody struct {
	Error string `json:"error"`
}

type Ack struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId,omitempty"`
}

const (
	MessageBadRequest          = "Bad request"
	MessageUnauthorized        = "Unauthorized"
	MessageForbidden           = "Forbidden"
	MessageNotFound            = "Not found"
	MessageConflict            = "Conflict"
	MessageInternalServerError = "Internal server error"
	MessageError               = "Error"
)

func JSON(c fiber.Ctx, status int, body any) error {
	return c.Status(normalizeStatus(status)).JSON(body)
}

func OK(c fiber.Ctx, jobID string) error {
	return c.Status(fiber.StatusOK).JSON(Ack{Success: true, JobID: jobID})
}

func Error(c fiber.Ctx, status int, message string) error {
	st := normalizeStatus(status)
	if message == "" {
		message = DefaultMessage(st)
	}
	return c.Status(st).JSON(ErrorBody{Error: message})
}

func normalizeStatus(status int) int {
	if status < 100 || status > 599 {
		return fiber.StatusInternalServerError
	}
	return status
}

func DefaultMessage(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return MessageBadRequest
	case fiber.StatusUnauthorized:
		return MessageUnauthorized
	case fiber.StatusForbidden:
		return MessageForbidden
	case fiber.StatusNotFound:
		return MessageNotFound
	case fiber.StatusConflict:
		return MessageConflict
	default:
		if status >= 500 {
			return MessageInternalServerError
		}
		return MessageError
	}
}
