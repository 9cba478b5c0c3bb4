package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const gladiaBaseURL = "https://api.gladia.io/v2"

type gladiaResult struct {
	Status string `json:"status"`
	Result struct {
		Transcription struct {
			FullTranscript string   `json:"full_transcript"`
			Languages      []string `json:"languages"`
			Utterances     []struct {
				Text       string   `json:"text"`
				Start      float64  `json:"start"`
				End        float64  `json:"end"`
				Confidence float64  `json:"confidence"`
				Speaker    *float64 `json:"speaker"`
			} `json:"utterances"`
		} `json:"transcription"`
		Metadata struct {
			AudioDuration float64 `json:"audio_duration"`
		} `json:"metadata"`
	} `json:"result"`
}

type gladiaBackend struct {
	baseURL string
	apiKey  string
}

// NewGladia uploads the audio, starts a transcription and polls its result_url every 2s.
func NewGladia(apiKey string, opts ...Option) Provider {
	o := buildOptions(gladiaBaseURL, 2*time.Second, opts)
	b := &gladiaBackend{baseURL: o.baseURL, apiKey: apiKey}
	return newAdapter("gladia", apiKey != "", "Set GLADIA_API_KEY.", b, o)
}

func (b *gladiaBackend) auth() map[string]string {
	return map[string]string{"x-gladia-key": b.apiKey}
}

func (b *gladiaBackend) submit(ctx context.Context, c *requester, audio audioFile) (submission, error) {
	body, ct, err := multipartBody(nil, "audio", audio)
	if err != nil {
		return submission{}, err
	}
	var uploaded struct {
		AudioURL string `json:"audio_url"`
	}
	if err := c.doJSON(ctx, "upload", request{
		method:      http.MethodPost,
		url:         b.baseURL + "/upload",
		header:      b.auth(),
		body:        body,
		contentType: ct,
	}, &uploaded); err != nil {
		return submission{}, err
	}

	reqBody, err := jsonBody(map[string]any{
		"audio_url":          uploaded.AudioURL,
		"diarization":        true,
		"language_behaviour": "automatic single language",
	})
	if err != nil {
		return submission{}, err
	}
	var started struct {
		ID        string `json:"id"`
		ResultURL string `json:"result_url"`
	}
	if err := c.doJSON(ctx, "transcription request", request{
		method:      http.MethodPost,
		url:         b.baseURL + "/transcription",
		header:      b.auth(),
		body:        reqBody,
		contentType: "application/json",
	}, &started); err != nil {
		return submission{}, err
	}
	if started.ResultURL == "" {
		if started.ID == "" {
			return submission{}, fmt.Errorf("gladia: transcription request returned no result url")
		}
		started.ResultURL = b.baseURL + "/transcription/" + started.ID
	}
	return submission{Handle: started.ResultURL}, nil
}

func (b *gladiaBackend) poll(ctx context.Context, c *requester, resultURL string) (pollState, error) {
	data, err := c.do(ctx, "result", request{method: http.MethodGet, url: resultURL, header: b.auth()})
	if err != nil {
		return pollState{}, err
	}
	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return pollState{}, fmt.Errorf("gladia: decode status: %w", err)
	}
	switch status.Status {
	case "done":
		return pollState{Done: true, Payload: data}, nil
	case "error":
		return pollState{}, fmt.Errorf("gladia transcription failed")
	default:
		return pollState{}, nil
	}
}

func (b *gladiaBackend) normalize(payload []byte, _ audioFile) (Result, error) {
	var res gladiaResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return Result{}, fmt.Errorf("gladia: decode result: %w", err)
	}
	tr := res.Result.Transcription

	segments := make([]Segment, 0, len(tr.Utterances))
	for _, u := range tr.Utterances {
		segments = append(segments, Segment{
			Start:      u.Start,
			End:        u.End,
			Text:       u.Text,
			Confidence: floatPtr(u.Confidence),
			Speaker:    speakerLabel(u.Speaker),
		})
	}

	lang := "en"
	if len(tr.Languages) > 0 && tr.Languages[0] != "" {
		lang = tr.Languages[0]
	}
	return Result{
		FullText:        tr.FullTranscript,
		Segments:        segments,
		Language:        lang,
		Model:           "gladia",
		DurationMinutes: res.Result.Metadata.AudioDuration / 60,
	}, nil
}
