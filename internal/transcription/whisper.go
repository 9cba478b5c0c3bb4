package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
)

const openAIBaseURL = "https://api.openai.com/v1"

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

type whisperBackend struct {
	syncBackend
	baseURL string
	apiKey  string
}

// NewWhisper calls OpenAI's audio transcription endpoint with verbose_json so segment timings come back.
func NewWhisper(apiKey string, opts ...Option) Provider {
	o := buildOptions(openAIBaseURL, 0, opts)
	b := &whisperBackend{baseURL: o.baseURL, apiKey: apiKey}
	return newAdapter("whisper", apiKey != "", "Set OPENAI_API_KEY.", b, o)
}

func (b *whisperBackend) submit(ctx context.Context, c *requester, audio audioFile) (submission, error) {
	body, ct, err := multipartBody([]formField{
		{name: "model", value: "whisper-1"},
		{name: "response_format", value: "verbose_json"},
		{name: "timestamp_granularities[]", value: "segment"},
	}, "file", audio)
	if err != nil {
		return submission{}, err
	}
	data, err := c.do(ctx, "transcription", request{
		method:      http.MethodPost,
		url:         b.baseURL + "/audio/transcriptions",
		header:      map[string]string{"Authorization": "Bearer " + b.apiKey},
		body:        body,
		contentType: ct,
	})
	if err != nil {
		return submission{}, err
	}
	return submission{Payload: data}, nil
}

func (b *whisperBackend) normalize(payload []byte, _ audioFile) (Result, error) {
	var resp whisperResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Result{}, fmt.Errorf("whisper: decode result: %w", err)
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		seg := Segment{Start: s.Start, End: s.End, Text: s.Text}
		if s.AvgLogprob != 0 {
			seg.Confidence = floatPtr(math.Exp(s.AvgLogprob))
		}
		segments = append(segments, seg)
	}

	lang := resp.Language
	if lang == "" {
		lang = "en"
	}
	return Result{
		FullText:        resp.Text,
		Segments:        segments,
		Language:        lang,
		Model:           "whisper-1",
		DurationMinutes: resp.Duration / 60,
	}, nil
}
