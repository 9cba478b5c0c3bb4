package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

type azureResult struct {
	Duration                  string `json:"duration"`
	CombinedRecognizedPhrases []struct {
		Display string `json:"display"`
	} `json:"combinedRecognizedPhrases"`
	RecognizedPhrases []struct {
		Offset   string `json:"offset"`
		Duration string `json:"duration"`
		NBest    []struct {
			Confidence float64 `json:"confidence"`
			Display    string  `json:"display"`
		} `json:"nBest"`
	} `json:"recognizedPhrases"`
}

type azureBackend struct {
	syncBackend
	baseURL string
	key     string
}

// NewAzure calls the synchronous conversation recognition endpoint of the given region.
func NewAzure(key, region string, opts ...Option) Provider {
	if region == "" {
		region = "eastus"
	}
	o := buildOptions("https://"+region+".stt.speech.microsoft.com", 0, opts)
	b := &azureBackend{baseURL: o.baseURL, key: key}
	return newAdapter("azure", key != "", "Set AZURE_SPEECH_KEY.", b, o)
}

func (b *azureBackend) submit(ctx context.Context, c *requester, audio audioFile) (submission, error) {
	ct := audio.ContentType
	if ct == "application/octet-stream" {
		ct = "audio/webm"
	}
	data, err := c.do(ctx, "transcription", request{
		method: http.MethodPost,
		url:    b.baseURL + "/speech/recognition/conversation/cognitiveservices/v1?language=en-US&format=detailed",
		header: map[string]string{
			"Ocp-Apim-Subscription-Key": b.key,
			"Accept":                    "application/json",
		},
		body:        audio.Data,
		contentType: ct,
	})
	if err != nil {
		return submission{}, err
	}
	return submission{Payload: data}, nil
}

func (b *azureBackend) normalize(payload []byte, _ audioFile) (Result, error) {
	var res azureResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return Result{}, fmt.Errorf("azure: decode result: %w", err)
	}

	segments := make([]Segment, 0, len(res.RecognizedPhrases))
	displays := make([]string, 0, len(res.RecognizedPhrases))
	for _, p := range res.RecognizedPhrases {
		offset := parseISODuration(p.Offset)
		seg := Segment{Start: offset, End: offset + parseISODuration(p.Duration)}
		if len(p.NBest) > 0 {
			seg.Text = p.NBest[0].Display
			seg.Confidence = floatPtr(p.NBest[0].Confidence)
		}
		displays = append(displays, seg.Text)
		segments = append(segments, seg)
	}

	fullText := ""
	if len(res.CombinedRecognizedPhrases) > 0 {
		fullText = res.CombinedRecognizedPhrases[0].Display
	}
	if fullText == "" {
		fullText = strings.Join(displays, " ")
	}

	return Result{
		FullText:        fullText,
		Segments:        segments,
		Language:        "en",
		Model:           "azure-speech",
		DurationMinutes: parseISODuration(res.Duration) / 60,
	}, nil
}

var isoDuration = regexp.MustCompile(`^PT(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?$`)

// parseISODuration reads "PT5.24S" style durations (hours and minutes allowed) into seconds; anything else is 0.
func parseISODuration(s string) float64 {
	m := isoDuration.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	total := 0.0
	for i, mult := range []float64{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0
		}
		total += v * mult
	}
	return total
}
