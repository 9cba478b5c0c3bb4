// Package meeting drives a headless browser into video meetings and records their audio.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"meeting-bot/internal/domain/bot"
)

var (
	ErrUnsupportedPlatform = errors.New("platform not yet supported")
	ErrNotJoined           = errors.New("session has not joined a meeting")
	ErrNoAudio             = errors.New("no audio captured")
)

// Status values emitted through StatusFunc.
const (
	StatusNavigating         = "navigating"
	StatusJoining            = "joining"
	StatusWaiting            = "waiting"
	StatusJoined             = "joined"
	StatusAudioCapture       = "audio_capture_started"
	StatusCaptionsEnabled    = "captions_enabled"
	StatusParticipants       = "participants"
	StatusAloneTimeout       = "alone_timeout"
	StatusMaxDurationReached = "max_duration_reached"
	StatusEnded              = "ended"
	StatusError              = "error"
)

const DefaultMaxDuration = 4 * time.Hour

type StatusFunc func(status string, data map[string]any)

// Session is one bot attendance: join, block until the meeting is over, leave on demand.
type Session interface {
	Join(ctx context.Context) error
	// WaitForEnd returns the path of the recorded audio once the bot is out of the meeting.
	WaitForEnd(ctx context.Context) (string, error)
	Leave(ctx context.Context) error
}

type unsupportedPlatformError struct {
	platform bot.Platform
}

func (e unsupportedPlatformError) Error() string {
	return fmt.Sprintf("Platform %s not yet supported", e.platform)
}

func (e unsupportedPlatformError) Is(target error) bool {
	return target == ErrUnsupportedPlatform
}

type FactoryConfig struct {
	RecordingsDir string
	Headless      bool
	ChromePath    string
	MaxDuration   time.Duration
	Logger        *log.Logger
}

type Factory struct {
	cfg FactoryConfig
}

func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.RecordingsDir == "" {
		cfg.RecordingsDir = os.TempDir()
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	return &Factory{cfg: cfg}
}

func (f *Factory) NewSession(job bot.Job, onStatus StatusFunc) (Session, error) {
	if f == nil {
		return nil, errors.New("nil meeting factory")
	}
	switch job.Platform {
	case bot.PlatformGoogleMeet:
		return NewGoogleMeet(Options{
			MeetingURL:    job.MeetingURL,
			BotName:       job.BotName,
			RecordingsDir: f.cfg.RecordingsDir,
			Headless:      f.cfg.Headless,
			ChromePath:    f.cfg.ChromePath,
			MaxDuration:   f.cfg.MaxDuration,
			OnStatus:      onStatus,
			Logger:        f.cfg.Logger,
		}), nil
	default:
		return nil, unsupportedPlatformError{platform: job.Platform}
	}
}
