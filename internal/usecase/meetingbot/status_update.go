package meetingbot

import (
	"context"
	"errors"
	"strings"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/infrastructure/meeting"
	"meeting-bot/internal/repository"
)

// Session status values that arrive from outside the meeting package.
const statusLeft = "left"

// HandleStatusUpdate forwards interim session facts to the system of record. The job's own status is never touched.
func (m *Manager) HandleStatusUpdate(ctx context.Context, id, status string, data map[string]any) error {
	job, err := m.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil
		}
		return err
	}
	return m.applySessionStatus(ctx, job, strings.TrimSpace(status), data)
}

func (m *Manager) applySessionStatus(ctx context.Context, job bot.Job, status string, data map[string]any) error {
	m.logf("[BotJob] id=%s session_status=%s", job.ID, status)
	if m.reporter == nil {
		return nil
	}

	now := nowMillis(m.now())
	switch status {
	case meeting.StatusJoined:
		return m.reporter.UpdateRecordingStatus(ctx, job.RecordingID, bot.RecordingRecording, map[string]any{
			"botJoinedAt":     now,
			"actualStartTime": now,
		})
	case statusLeft, meeting.StatusEnded:
		return m.reporter.UpdateRecordingStatus(ctx, job.RecordingID, bot.RecordingProcessing, map[string]any{
			"botLeftAt":     now,
			"actualEndTime": now,
		})
	case meeting.StatusParticipants:
		ps := bot.ParticipantsFrom(data["participants"])
		if len(ps) == 0 {
			return nil
		}
		return m.reporter.SaveParticipants(ctx, job.RecordingID, ps)
	default:
		return nil
	}
}

// sessionStatusHandler is handed to meeting sessions; their callbacks run detached from the request that started the job.
func (m *Manager) sessionStatusHandler(id string) meeting.StatusFunc {
	return func(status string, data map[string]any) {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()
		if err := m.HandleStatusUpdate(ctx, id, status, data); err != nil {
			m.logf("[BotJob] id=%s session_status=%s status=error err=%v", id, status, err)
		}
	}
}
