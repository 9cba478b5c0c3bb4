// Package summary turns meeting transcripts into structured summaries through an LLM.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"meeting-bot/internal/pkg/retry"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
)

const (
	DefaultModel = "claude-opus-4-5-20251101"

	fallbackSummary = "No summary available"
)

var (
	ErrNoResponse    = errors.New("no text response from model")
	ErrNoJSON        = errors.New("could not parse JSON from response")
	ErrFatalAPI      = errors.New("fatal llm api error")
	ErrMissingAPIKey = errors.New("anthropic api key required")
)

type ActionItem struct {
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	Priority    string `json:"priority"`
}

type Topic struct {
	Title     string   `json:"title"`
	StartTime *float64 `json:"startTime,omitempty"`
	EndTime   *float64 `json:"endTime,omitempty"`
	Summary   string   `json:"summary"`
}

type MeetingSummary struct {
	ExecutiveSummary string        `json:"executiveSummary"`
	KeyPoints        []string      `json:"keyPoints"`
	ActionItems      []ActionItem  `json:"actionItems"`
	Decisions        []string      `json:"decisions"`
	OpenQuestions    []string      `json:"openQuestions"`
	Topics           []Topic       `json:"topics"`
	OverallSentiment string        `json:"overallSentiment"`
	Model            string        `json:"modelUsed"`
	PromptTokens     int           `json:"promptTokens,omitempty"`
	CompletionTokens int           `json:"completionTokens,omitempty"`
	ProcessingTime   time.Duration `json:"-"`
}

type Service struct {
	llm       llms.Model
	modelName string
	policy    retry.Policy
	log       *log.Logger
	now       func() time.Time
}

// NewAnthropic builds a Service backed by langchaingo's anthropic client.
func NewAnthropic(apiKey, model string, logger *log.Logger) (*Service, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	llm, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	return NewService(llm, model, logger), nil
}

func NewService(llm llms.Model, modelName string, logger *log.Logger) *Service {
	p := retry.API()
	p.RetryIf = retryable
	return &Service{
		llm:       llm,
		modelName: modelName,
		policy:    p,
		log:       logger,
		now:       time.Now,
	}
}

// SetRetryPolicy replaces the retry policy; the fatal-error predicate is kept unless p sets its own.
func (s *Service) SetRetryPolicy(p retry.Policy) {
	if s == nil {
		return
	}
	if p.RetryIf == nil {
		p.RetryIf = retryable
	}
	s.policy = p
}

const systemPrompt = `You are an expert meeting analyst. Your task is to analyze meeting transcripts and extract structured information. Be concise but thorough. Focus on actionable insights.`

const userPromptTemplate = `Analyze this meeting transcript and provide a structured summary.

TRANSCRIPT:
%s

Respond with a JSON object containing:
{
  "executiveSummary": "2-3 sentence overview of the meeting",
  "keyPoints": ["array of main discussion points"],
  "actionItems": [
    {
      "description": "what needs to be done",
      "assignee": "person's name if mentioned, or null",
      "dueDate": "date if mentioned, or null",
      "priority": "low/medium/high based on context"
    }
  ],
  "decisions": ["array of decisions made during the meeting"],
  "openQuestions": ["array of unresolved questions or items needing follow-up"],
  "topics": [
    {
      "title": "topic name",
      "summary": "brief summary of this discussion topic"
    }
  ],
  "overallSentiment": "positive/neutral/negative/mixed"
}

Important:
- Extract ALL action items mentioned, even implicit ones
- Identify the assignee by name when mentioned
- Capture decisions, even small ones
- Note any unresolved issues or questions
- Keep summaries concise but informative`

func (s *Service) Summarize(ctx context.Context, transcript string) (MeetingSummary, error) {
	if s == nil || s.llm == nil {
		return MeetingSummary{}, ErrMissingAPIKey
	}
	start := s.now()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(userPromptTemplate, transcript)),
	}
	resp, err := retry.Do(ctx, s.policy, func(ctx context.Context) (*llms.ContentResponse, error) {
		return s.llm.GenerateContent(ctx, messages, llms.WithMaxTokens(4096))
	})
	if err != nil {
		s.logf("[Summary] status=error err=%v", err)
		return MeetingSummary{}, fmt.Errorf("summary generation failed: %w", wrapFatalError(err))
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return MeetingSummary{}, fmt.Errorf("summary generation failed: %w", ErrNoResponse)
	}
	choice := resp.Choices[0]

	out, err := parseSummary(choice.Content)
	if err != nil {
		return MeetingSummary{}, fmt.Errorf("summary generation failed: %w", err)
	}
	out.Model = s.modelName
	out.PromptTokens = intInfo(choice.GenerationInfo, "InputTokens", "PromptTokens")
	out.CompletionTokens = intInfo(choice.GenerationInfo, "OutputTokens", "CompletionTokens")
	out.ProcessingTime = s.now().Sub(start)

	s.logf("[Summary] status=done model=%s action_items=%d elapsed=%s", s.modelName, len(out.ActionItems), out.ProcessingTime)
	return out, nil
}

type rawSummary struct {
	ExecutiveSummary string   `json:"executiveSummary"`
	KeyPoints        []string `json:"keyPoints"`
	ActionItems      []struct {
		Description string `json:"description"`
		Assignee    string `json:"assignee"`
		DueDate     string `json:"dueDate"`
		Priority    string `json:"priority"`
	} `json:"actionItems"`
	Decisions        []string `json:"decisions"`
	OpenQuestions    []string `json:"openQuestions"`
	Topics           []Topic  `json:"topics"`
	OverallSentiment string   `json:"overallSentiment"`
}

// parseSummary decodes the outermost {...} span of the reply and fills in defaults.
func parseSummary(text string) (MeetingSummary, error) {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first < 0 || last <= first {
		return MeetingSummary{}, ErrNoJSON
	}
	var raw rawSummary
	if err := json.Unmarshal([]byte(text[first:last+1]), &raw); err != nil {
		return MeetingSummary{}, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}

	out := MeetingSummary{
		ExecutiveSummary: raw.ExecutiveSummary,
		KeyPoints:        nonNil(raw.KeyPoints),
		Decisions:        nonNil(raw.Decisions),
		OpenQuestions:    nonNil(raw.OpenQuestions),
		OverallSentiment: raw.OverallSentiment,
		ActionItems:      make([]ActionItem, 0, len(raw.ActionItems)),
		Topics:           make([]Topic, 0, len(raw.Topics)),
	}
	if out.ExecutiveSummary == "" {
		out.ExecutiveSummary = fallbackSummary
	}
	if out.OverallSentiment == "" {
		out.OverallSentiment = "neutral"
	}
	for _, a := range raw.ActionItems {
		item := ActionItem{Description: a.Description, Assignee: a.Assignee, DueDate: a.DueDate, Priority: a.Priority}
		if item.Priority == "" {
			item.Priority = "medium"
		}
		out.ActionItems = append(out.ActionItems, item)
	}
	for _, t := range raw.Topics {
		if t.Title == "" {
			t.Title = "Untitled"
		}
		out.Topics = append(out.Topics, t)
	}
	return out, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func intInfo(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

func (s *Service) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

var fatalMarkers = []string{
	"credit balance",
	"quota exceeded",
	"billing",
	"invalid api key",
	"invalid x-api-key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports errors that another attempt cannot fix.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %v", ErrFatalAPI, err)
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !isFatalAPIError(err)
}
