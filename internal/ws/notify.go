package ws

import (
	"context"
	"encoding/json"
	"time"

	"meeting-bot/internal/domain/bot"
)

type JobUpdatedEvent struct {
	Type      string  `json:"type"`
	Job       bot.Job `json:"job"`
	Timestamp string  `json:"timestamp"`
}

// Notifier publishes every job snapshot to the hub.
type Notifier struct {
	hub *Hub
	now func() time.Time
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub, now: time.Now}
}

func (n *Notifier) JobUpdated(_ context.Context, job bot.Job) {
	if n == nil || n.hub == nil {
		return
	}
	b, err := json.Marshal(JobUpdatedEvent{
		Type:      "job_updated",
		Job:       job,
		Timestamp: n.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	n.hub.Broadcast(job.ID, b)
}
