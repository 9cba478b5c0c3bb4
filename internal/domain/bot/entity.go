package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Platform string

const (
	PlatformGoogleMeet Platform = "google_meet"
	PlatformZoom       Platform = "zoom"
	PlatformTeams      Platform = "teams"
)

const (
	DefaultPlatform = PlatformGoogleMeet
	DefaultBotName  = "Nixelo Notetaker"

	StoppedByUser = "Stopped by user"
	// Interrupted is recorded on jobs a previous process left unfinished.
	Interrupted = "Bot service restarted before the job finished"
)

var (
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrUnknownPlatform   = errors.New("unknown platform")
)

// ParsePlatform maps a request value onto a Platform. Empty input yields DefaultPlatform.
func ParsePlatform(s string) (Platform, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultPlatform, nil
	}
	switch p := Platform(s); p {
	case PlatformGoogleMeet, PlatformZoom, PlatformTeams:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownPlatform, s)
	}
}

type Job struct {
	ID            string     `json:"id"`
	RecordingID   string     `json:"recordingId"`
	MeetingURL    string     `json:"meetingUrl"`
	Platform      Platform   `json:"platform"`
	BotName       string     `json:"botName"`
	CallbackURL   string     `json:"callbackUrl,omitempty"`
	Status        Status     `json:"status"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	AudioFilePath string     `json:"audioFilePath,omitempty"`
}

func NewJob(id, recordingID, meetingURL string, platform Platform, botName, callbackURL string, now time.Time) Job {
	return Job{
		ID:          id,
		RecordingID: recordingID,
		MeetingURL:  meetingURL,
		Platform:    platform,
		BotName:     botName,
		CallbackURL: callbackURL,
		Status:      StatusPending,
		StartedAt:   now,
	}
}

func (j *Job) Start() error {
	return j.advance(StatusJoining)
}

func (j *Job) MarkRecording() error {
	return j.advance(StatusRecording)
}

func (j *Job) MarkProcessing(audioFilePath string) error {
	if strings.TrimSpace(audioFilePath) == "" {
		return errors.New("no audio file to process")
	}
	if err := j.advance(StatusProcessing); err != nil {
		return err
	}
	j.AudioFilePath = audioFilePath
	return nil
}

func (j *Job) Complete(now time.Time) error {
	if err := j.advance(StatusCompleted); err != nil {
		return err
	}
	j.stampEnd(now)
	return nil
}

// Fail moves a non-terminal job into failed and records the message.
func (j *Job) Fail(message string, now time.Time) error {
	if err := j.advance(StatusFailed); err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		message = "Unknown error"
	}
	j.Error = message
	j.stampEnd(now)
	return nil
}

func (j *Job) advance(to Status) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

func (j *Job) stampEnd(now time.Time) {
	t := now
	j.EndedAt = &t
}
