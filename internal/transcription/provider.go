// Package transcription normalizes third-party speech-to-text APIs behind one Provider contract.
//
// Every provider shares the same flow (read audio, submit, poll until done, normalize) implemented once
// by adapter; a provider only describes its request and response shapes as a backend.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotConfigured   = errors.New("transcription provider not configured")
	ErrAudioNotFound   = errors.New("audio file not found")
	ErrPollTimeout     = errors.New("transcription timed out")
	ErrUnknownProvider = errors.New("unknown transcription provider")
	ErrNoProvider      = errors.New("no transcription providers configured")
	ErrEmptyResult     = errors.New("provider returned no transcription")
)

type Segment struct {
	Start      float64  `json:"startTime"`
	End        float64  `json:"endTime"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Speaker    string   `json:"speaker,omitempty"`
}

type Result struct {
	FullText        string        `json:"fullText"`
	Segments        []Segment     `json:"segments"`
	Language        string        `json:"language"`
	Model           string        `json:"modelUsed"`
	ProcessingTime  time.Duration `json:"-"`
	WordCount       int           `json:"wordCount"`
	DurationMinutes float64       `json:"durationMinutes"`
	SpeakerCount    int           `json:"speakerCount,omitempty"`
	Provider        string        `json:"provider"`
}

type Provider interface {
	Name() string
	Configured() bool
	Transcribe(ctx context.Context, audioFilePath string) (Result, error)
}

// StatusError is a non-2xx answer from a provider API.
type StatusError struct {
	Provider string
	Op       string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s failed: %d", e.Provider, e.Op, e.Code)
	}
	return fmt.Sprintf("%s %s failed: %d %s", e.Provider, e.Op, e.Code, body)
}

func (e *StatusError) HTTPStatus() int {
	return e.Code
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func floatPtr(v float64) *float64 {
	return &v
}
