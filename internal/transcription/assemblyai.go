package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const assemblyAIBaseURL = "https://api.assemblyai.com/v2"

type assemblyAITranscript struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Text          string  `json:"text"`
	Error         string  `json:"error"`
	AudioDuration float64 `json:"audio_duration"`
	LanguageCode  string  `json:"language_code"`
	Words         []struct {
		Text       string  `json:"text"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Confidence float64 `json:"confidence"`
	} `json:"words"`
	Utterances []struct {
		Text       string  `json:"text"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Confidence float64 `json:"confidence"`
		Speaker    string  `json:"speaker"`
	} `json:"utterances"`
}

type assemblyAIBackend struct {
	baseURL string
	apiKey  string
}

// NewAssemblyAI uploads, creates a transcript and polls it every 3s. Times come back in milliseconds.
func NewAssemblyAI(apiKey string, opts ...Option) Provider {
	o := buildOptions(assemblyAIBaseURL, 3*time.Second, opts)
	b := &assemblyAIBackend{baseURL: o.baseURL, apiKey: apiKey}
	return newAdapter("assemblyai", apiKey != "", "Set ASSEMBLYAI_API_KEY.", b, o)
}

func (b *assemblyAIBackend) auth() map[string]string {
	return map[string]string{"Authorization": b.apiKey}
}

func (b *assemblyAIBackend) submit(ctx context.Context, c *requester, audio audioFile) (submission, error) {
	var uploaded struct {
		UploadURL string `json:"upload_url"`
	}
	if err := c.doJSON(ctx, "upload", request{
		method:      http.MethodPost,
		url:         b.baseURL + "/upload",
		header:      b.auth(),
		body:        audio.Data,
		contentType: "application/octet-stream",
	}, &uploaded); err != nil {
		return submission{}, err
	}

	reqBody, err := jsonBody(map[string]any{
		"audio_url":      uploaded.UploadURL,
		"speaker_labels": true,
		"punctuate":      true,
		"format_text":    true,
	})
	if err != nil {
		return submission{}, err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, "transcription request", request{
		method:      http.MethodPost,
		url:         b.baseURL + "/transcript",
		header:      b.auth(),
		body:        reqBody,
		contentType: "application/json",
	}, &created); err != nil {
		return submission{}, err
	}
	if created.ID == "" {
		return submission{}, fmt.Errorf("assemblyai: transcription request returned no id")
	}
	return submission{Handle: created.ID}, nil
}

func (b *assemblyAIBackend) poll(ctx context.Context, c *requester, id string) (pollState, error) {
	data, err := c.do(ctx, "transcript status", request{
		method: http.MethodGet,
		url:    b.baseURL + "/transcript/" + id,
		header: b.auth(),
	})
	if err != nil {
		return pollState{}, err
	}
	var st struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return pollState{}, fmt.Errorf("assemblyai: decode status: %w", err)
	}
	switch st.Status {
	case "completed":
		return pollState{Done: true, Payload: data}, nil
	case "error":
		return pollState{}, fmt.Errorf("assemblyai transcription failed: %s", st.Error)
	default:
		return pollState{}, nil
	}
}

func (b *assemblyAIBackend) normalize(payload []byte, _ audioFile) (Result, error) {
	var tr assemblyAITranscript
	if err := json.Unmarshal(payload, &tr); err != nil {
		return Result{}, fmt.Errorf("assemblyai: decode transcript: %w", err)
	}

	var segments []Segment
	if len(tr.Utterances) > 0 {
		segments = make([]Segment, 0, len(tr.Utterances))
		for _, u := range tr.Utterances {
			segments = append(segments, Segment{
				Start:      u.Start / 1000,
				End:        u.End / 1000,
				Text:       u.Text,
				Confidence: floatPtr(u.Confidence),
				Speaker:    u.Speaker,
			})
		}
	} else {
		words := make([]Word, 0, len(tr.Words))
		for _, w := range tr.Words {
			words = append(words, Word{Start: w.Start / 1000, End: w.End / 1000, Text: w.Text, Confidence: floatPtr(w.Confidence)})
		}
		segments = GroupWords(words, SegmentWindow)
	}

	lang := tr.LanguageCode
	if lang == "" {
		lang = "en"
	}
	return Result{
		FullText:        tr.Text,
		Segments:        segments,
		Language:        lang,
		Model:           "assemblyai",
		DurationMinutes: tr.AudioDuration / 60,
	}, nil
}
