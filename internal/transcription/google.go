package transcription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	googleBaseURL = "https://speech.googleapis.com/v1"

	// Files above this size go through longrunningrecognize (roughly one minute of audio).
	googleSyncLimit = 1024 * 1024
)

type googleResponse struct {
	Results []struct {
		LanguageCode string `json:"languageCode"`
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				StartTime  string   `json:"startTime"`
				EndTime    string   `json:"endTime"`
				Word       string   `json:"word"`
				Confidence *float64 `json:"confidence"`
				SpeakerTag int      `json:"speakerTag"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"results"`
	TotalBilledTime string `json:"totalBilledTime"`
}

type googleBackend struct {
	baseURL   string
	apiKey    string
	projectID string
}

// NewGoogle uses speech:recognize for small files and longrunningrecognize with 3s operation polling otherwise.
func NewGoogle(apiKey, projectID string, opts ...Option) Provider {
	o := buildOptions(googleBaseURL, 3*time.Second, opts)
	b := &googleBackend{baseURL: o.baseURL, apiKey: apiKey, projectID: projectID}
	return newAdapter("google", apiKey != "" || projectID != "",
		"Set GOOGLE_CLOUD_API_KEY or GOOGLE_CLOUD_PROJECT_ID.", b, o)
}

func (b *googleBackend) endpoint(path string) string {
	u := b.baseURL + path
	if b.apiKey != "" {
		u += "?key=" + url.QueryEscape(b.apiKey)
	}
	return u
}

func (b *googleBackend) header() map[string]string {
	if b.apiKey == "" && b.projectID != "" {
		return map[string]string{"x-goog-user-project": b.projectID}
	}
	return nil
}

func (b *googleBackend) submit(ctx context.Context, c *requester, audio audioFile) (submission, error) {
	body, err := jsonBody(map[string]any{
		"config": map[string]any{
			"encoding":                   "WEBM_OPUS",
			"sampleRateHertz":            48000,
			"languageCode":               "en-US",
			"enableAutomaticPunctuation": true,
			"enableWordTimeOffsets":      true,
			"enableSpeakerDiarization":   true,
			"diarizationSpeakerCount":    2,
			"model":                      "latest_long",
		},
		"audio": map[string]any{
			"content": base64.StdEncoding.EncodeToString(audio.Data),
		},
	})
	if err != nil {
		return submission{}, err
	}

	if len(audio.Data) <= googleSyncLimit {
		data, err := c.do(ctx, "request", request{
			method:      http.MethodPost,
			url:         b.endpoint("/speech:recognize"),
			header:      b.header(),
			body:        body,
			contentType: "application/json",
		})
		if err != nil {
			return submission{}, err
		}
		return submission{Payload: data}, nil
	}

	var op struct {
		Name string `json:"name"`
	}
	if err := c.doJSON(ctx, "request", request{
		method:      http.MethodPost,
		url:         b.endpoint("/speech:longrunningrecognize"),
		header:      b.header(),
		body:        body,
		contentType: "application/json",
	}, &op); err != nil {
		return submission{}, err
	}
	if op.Name == "" {
		return submission{}, fmt.Errorf("google: longrunningrecognize returned no operation")
	}
	return submission{Handle: op.Name}, nil
}

func (b *googleBackend) poll(ctx context.Context, c *requester, name string) (pollState, error) {
	var op struct {
		Done     bool            `json:"done"`
		Response json.RawMessage `json:"response"`
		Error    *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := c.doJSON(ctx, "operation", request{
		method: http.MethodGet,
		url:    b.endpoint("/operations/" + name),
		header: b.header(),
	}, &op); err != nil {
		return pollState{}, err
	}
	if !op.Done {
		return pollState{}, nil
	}
	if op.Error != nil {
		return pollState{}, fmt.Errorf("google cloud stt failed: %s", op.Error.Message)
	}
	payload := []byte(op.Response)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return pollState{Done: true, Payload: payload}, nil
}

func (b *googleBackend) normalize(payload []byte, audio audioFile) (Result, error) {
	var resp googleResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Result{}, fmt.Errorf("google: decode result: %w", err)
	}

	var texts []string
	segments := []Segment{}
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		texts = append(texts, alt.Transcript)

		if len(alt.Words) == 0 {
			segments = append(segments, Segment{Text: alt.Transcript, Confidence: floatPtr(alt.Confidence)})
			continue
		}
		words := make([]Word, 0, len(alt.Words))
		for _, w := range alt.Words {
			word := Word{
				Start:      parseSecondsDuration(w.StartTime),
				End:        parseSecondsDuration(w.EndTime),
				Text:       w.Word,
				Confidence: w.Confidence,
			}
			if w.SpeakerTag > 0 {
				word.Speaker = "Speaker " + strconv.Itoa(w.SpeakerTag)
			}
			words = append(words, word)
		}
		segments = append(segments, GroupWords(words, SegmentWindow)...)
	}

	duration := float64(len(audio.Data)) / googleSyncLimit
	if resp.TotalBilledTime != "" {
		duration = parseSecondsDuration(resp.TotalBilledTime) / 60
	} else if len(segments) > 0 {
		duration = segments[len(segments)-1].End / 60
	}

	lang := "en-US"
	if len(resp.Results) > 0 && resp.Results[0].LanguageCode != "" {
		lang = resp.Results[0].LanguageCode
	}
	return Result{
		FullText:        strings.Join(texts, " "),
		Segments:        segments,
		Language:        lang,
		Model:           "google-cloud-stt",
		DurationMinutes: duration,
	}, nil
}

// parseSecondsDuration reads protobuf JSON durations such as "1.500s".
func parseSecondsDuration(s string) float64 {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "s") {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
