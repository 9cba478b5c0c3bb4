package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const deepgramBaseURL = "https://api.deepgram.com/v1"

type deepgramWord struct {
	Word           string   `json:"word"`
	PunctuatedWord string   `json:"punctuated_word"`
	Start          float64  `json:"start"`
	End            float64  `json:"end"`
	Confidence     float64  `json:"confidence"`
	Speaker        *float64 `json:"speaker"`
}

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string         `json:"transcript"`
				Confidence float64        `json:"confidence"`
				Words      []deepgramWord `json:"words"`
			} `json:"alternatives"`
			DetectedLanguage string `json:"detected_language"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64  `json:"start"`
			End        float64  `json:"end"`
			Confidence float64  `json:"confidence"`
			Transcript string   `json:"transcript"`
			Speaker    *float64 `json:"speaker"`
		} `json:"utterances"`
	} `json:"results"`
}

type deepgramBackend struct {
	syncBackend
	baseURL string
	apiKey  string
}

// NewDeepgram answers synchronously; utterances give speaker-aware segments.
func NewDeepgram(apiKey string, opts ...Option) Provider {
	o := buildOptions(deepgramBaseURL, 0, opts)
	b := &deepgramBackend{baseURL: o.baseURL, apiKey: apiKey}
	return newAdapter("deepgram", apiKey != "", "Set DEEPGRAM_API_KEY.", b, o)
}

func (b *deepgramBackend) submit(ctx context.Context, c *requester, audio audioFile) (submission, error) {
	data, err := c.do(ctx, "transcription", request{
		method:      http.MethodPost,
		url:         b.baseURL + "/listen?model=nova-2&punctuate=true&diarize=true&utterances=true&smart_format=true",
		header:      map[string]string{"Authorization": "Token " + b.apiKey},
		body:        audio.Data,
		contentType: audio.ContentType,
	})
	if err != nil {
		return submission{}, err
	}
	return submission{Payload: data}, nil
}

func (b *deepgramBackend) normalize(payload []byte, _ audioFile) (Result, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Result{}, fmt.Errorf("deepgram: decode result: %w", err)
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return Result{}, fmt.Errorf("deepgram: %w", ErrEmptyResult)
	}
	channel := resp.Results.Channels[0]
	alt := channel.Alternatives[0]

	var segments []Segment
	if len(resp.Results.Utterances) > 0 {
		segments = make([]Segment, 0, len(resp.Results.Utterances))
		for _, u := range resp.Results.Utterances {
			segments = append(segments, Segment{
				Start:      u.Start,
				End:        u.End,
				Text:       u.Transcript,
				Confidence: floatPtr(u.Confidence),
				Speaker:    speakerLabel(u.Speaker),
			})
		}
	} else {
		words := make([]Word, 0, len(alt.Words))
		for _, w := range alt.Words {
			text := w.PunctuatedWord
			if text == "" {
				text = w.Word
			}
			words = append(words, Word{Start: w.Start, End: w.End, Text: text, Confidence: floatPtr(w.Confidence)})
		}
		segments = GroupWords(words, SegmentWindow)
	}

	lang := channel.DetectedLanguage
	if lang == "" {
		lang = "en"
	}
	return Result{
		FullText:        alt.Transcript,
		Segments:        segments,
		Language:        lang,
		Model:           "deepgram-nova-2",
		DurationMinutes: resp.Metadata.Duration / 60,
	}, nil
}

func speakerLabel(n *float64) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("Speaker %d", int(*n))
}
