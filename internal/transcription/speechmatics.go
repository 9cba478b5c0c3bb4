package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const speechmaticsBaseURL = "https://asr.api.speechmatics.com/v2"

var whitespaceRun = regexp.MustCompile(`\s+`)

type speechmaticsWord struct {
	Content    string  `json:"content"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type"`
}

type speechmaticsTranscript struct {
	Results []struct {
		Type         string  `json:"type"`
		StartTime    float64 `json:"start_time"`
		EndTime      float64 `json:"end_time"`
		Alternatives []struct {
			Content    string             `json:"content"`
			Confidence float64            `json:"confidence"`
			Words      []speechmaticsWord `json:"words"`
		} `json:"alternatives"`
	} `json:"results"`
	Metadata struct {
		Duration            float64 `json:"duration"`
		TranscriptionConfig struct {
			Language string `json:"language"`
		} `json:"transcription_config"`
	} `json:"metadata"`
}

type speechmaticsBackend struct {
	baseURL string
	apiKey  string
}

// NewSpeechmatics submits a batch job and polls it every 2s.
func NewSpeechmatics(apiKey string, opts ...Option) Provider {
	o := buildOptions(speechmaticsBaseURL, 2*time.Second, opts)
	b := &speechmaticsBackend{baseURL: o.baseURL, apiKey: apiKey}
	return newAdapter("speechmatics", apiKey != "", "Set SPEECHMATICS_API_KEY.", b, o)
}

func (b *speechmaticsBackend) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + b.apiKey}
}

func (b *speechmaticsBackend) submit(ctx context.Context, c *requester, audio audioFile) (submission, error) {
	cfg, err := jsonBody(map[string]any{
		"type": "transcription",
		"transcription_config": map[string]any{
			"operating_point": "enhanced",
			"language":        "en",
		},
	})
	if err != nil {
		return submission{}, err
	}
	body, ct, err := multipartBody([]formField{{name: "config", value: string(cfg)}}, "data_file", audio)
	if err != nil {
		return submission{}, err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, "job creation", request{
		method:      http.MethodPost,
		url:         b.baseURL + "/jobs",
		header:      b.auth(),
		body:        body,
		contentType: ct,
	}, &created); err != nil {
		return submission{}, err
	}
	if created.ID == "" {
		return submission{}, fmt.Errorf("speechmatics: job creation returned no id")
	}
	return submission{Handle: created.ID}, nil
}

func (b *speechmaticsBackend) poll(ctx context.Context, c *requester, jobID string) (pollState, error) {
	var status struct {
		Job struct {
			Status string `json:"status"`
		} `json:"job"`
	}
	if err := c.doJSON(ctx, "job status", request{
		method: http.MethodGet,
		url:    b.baseURL + "/jobs/" + jobID,
		header: b.auth(),
	}, &status); err != nil {
		return pollState{}, err
	}

	switch status.Job.Status {
	case "done":
		data, err := c.do(ctx, "transcript", request{
			method: http.MethodGet,
			url:    b.baseURL + "/jobs/" + jobID + "/transcript?format=json-v2",
			header: b.auth(),
		})
		if err != nil {
			return pollState{}, err
		}
		return pollState{Done: true, Payload: data}, nil
	case "rejected", "deleted":
		return pollState{}, fmt.Errorf("speechmatics job failed: %s", status.Job.Status)
	default:
		return pollState{}, nil
	}
}

func (b *speechmaticsBackend) normalize(payload []byte, _ audioFile) (Result, error) {
	var tr speechmaticsTranscript
	if err := json.Unmarshal(payload, &tr); err != nil {
		return Result{}, fmt.Errorf("speechmatics: decode transcript: %w", err)
	}

	var all []speechmaticsWord
	for _, r := range tr.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if len(alt.Words) > 0 {
			all = append(all, alt.Words...)
			continue
		}
		all = append(all, speechmaticsWord{
			Content:    alt.Content,
			StartTime:  r.StartTime,
			EndTime:    r.EndTime,
			Confidence: alt.Confidence,
			Type:       r.Type,
		})
	}

	var sb strings.Builder
	words := make([]Word, 0, len(all))
	for _, w := range all {
		if w.Type == "punctuation" {
			sb.WriteString(w.Content)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w.Content)
		words = append(words, Word{Start: w.StartTime, End: w.EndTime, Text: w.Content, Confidence: floatPtr(w.Confidence)})
	}
	fullText := strings.TrimSpace(whitespaceRun.ReplaceAllString(sb.String(), " "))

	lang := tr.Metadata.TranscriptionConfig.Language
	if lang == "" {
		lang = "en"
	}
	return Result{
		FullText:        fullText,
		Segments:        groupWords(words, SegmentWindow, true),
		Language:        lang,
		Model:           "speechmatics-enhanced",
		DurationMinutes: tr.Metadata.Duration / 60,
	}, nil
}
