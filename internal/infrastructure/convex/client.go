// Package convex talks to the system of record over the Convex HTTP function API.
package convex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/pkg/retry"
	"meeting-bot/internal/summary"
	"meeting-bot/internal/transcription"
)

const (
	kindQuery    = "query"
	kindMutation = "mutation"

	pathUpdateRecordingStatus = "meetingBot:updateRecordingStatus"
	pathSaveTranscript        = "meetingBot:saveTranscript"
	pathSaveSummary           = "meetingBot:saveSummary"
	pathSaveParticipants      = "meetingBot:saveParticipants"
	pathPendingJobs           = "meetingBot:getPendingJobs"
	pathSelectProvider        = "serviceRotation:selectProvider"
	pathRecordUsage           = "serviceRotation:recordUsage"

	maxErrorBody = 4096
)

// StatusError is a non-2xx answer from the Convex deployment.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("convex %s failed: status=%d body=%s", e.Path, e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Code }

// FunctionError is a Convex function that ran and threw. Retrying will not help.
type FunctionError struct {
	Path    string
	Message string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("convex %s: %s", e.Path, e.Message)
}

// statusFields lists the optional arguments updateRecordingStatus accepts; anything else is rejected server side.
var statusFields = map[string]bool{
	"errorMessage":    true,
	"botJoinedAt":     true,
	"botLeftAt":       true,
	"actualStartTime": true,
	"actualEndTime":   true,
	"duration":        true,
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	policy  retry.Policy
	logger  *log.Logger
}

// NewClient returns a client that no-ops every call when baseURL is empty, so the bot can run standalone.
func NewClient(baseURL, apiKey string, logger *log.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" && logger != nil {
		logger.Printf("[Convex] disabled, CONVEX_URL not set")
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: 30 * time.Second},
		policy:  retry.API(),
		logger:  logger,
	}
	c.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logf("[Convex] status=retry attempt=%d delay=%s err=%v", attempt, delay, err)
	}
	return c
}

func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// SetRetryPolicy keeps the retry logging hook.
func (c *Client) SetRetryPolicy(p retry.Policy) {
	if c == nil {
		return
	}
	hook := c.policy.OnRetry
	c.policy = p
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = hook
	}
}

func (c *Client) SetHTTPClient(hc *http.Client) {
	if c != nil && hc != nil {
		c.client = hc
	}
}

func (c *Client) UpdateRecordingStatus(ctx context.Context, recordingID string, status bot.RecordingStatus, fields map[string]any) error {
	if !c.Enabled() {
		return nil
	}
	args := map[string]any{
		"recordingId": recordingID,
		"status":      string(status),
	}
	for k, v := range fields {
		if k == "error" {
			k = "errorMessage"
		}
		if statusFields[k] && v != nil {
			args[k] = v
		}
	}
	return c.call(ctx, kindMutation, pathUpdateRecordingStatus, args, nil)
}

type transcriptArgs struct {
	RecordingID    string                  `json:"recordingId"`
	FullText       string                  `json:"fullText"`
	Segments       []transcription.Segment `json:"segments"`
	Language       string                  `json:"language"`
	ModelUsed      string                  `json:"modelUsed"`
	ProcessingTime int64                   `json:"processingTime,omitempty"`
	WordCount      int                     `json:"wordCount"`
	SpeakerCount   int                     `json:"speakerCount,omitempty"`
}

// SaveTranscript stores the transcript and returns its id.
func (c *Client) SaveTranscript(ctx context.Context, recordingID string, res transcription.Result) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	segments := res.Segments
	if segments == nil {
		segments = []transcription.Segment{}
	}
	args := transcriptArgs{
		RecordingID:    recordingID,
		FullText:       res.FullText,
		Segments:       segments,
		Language:       res.Language,
		ModelUsed:      res.Model,
		ProcessingTime: res.ProcessingTime.Milliseconds(),
		WordCount:      res.WordCount,
		SpeakerCount:   res.SpeakerCount,
	}
	var id string
	if err := c.call(ctx, kindMutation, pathSaveTranscript, args, &id); err != nil {
		return "", err
	}
	return id, nil
}

type summaryArgs struct {
	RecordingID      string          `json:"recordingId"`
	TranscriptID     string          `json:"transcriptId"`
	ExecutiveSummary string          `json:"executiveSummary"`
	KeyPoints        []string        `json:"keyPoints"`
	ActionItems      []actionItemArg `json:"actionItems"`
	Decisions        []string        `json:"decisions"`
	OpenQuestions    []string        `json:"openQuestions"`
	Topics           []summary.Topic `json:"topics"`
	OverallSentiment string          `json:"overallSentiment,omitempty"`
	ModelUsed        string          `json:"modelUsed"`
	PromptTokens     int             `json:"promptTokens,omitempty"`
	CompletionTokens int             `json:"completionTokens,omitempty"`
	ProcessingTime   int64           `json:"processingTime,omitempty"`
}

type actionItemArg struct {
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

var (
	validPriorities = map[string]bool{"low": true, "medium": true, "high": true}
	validSentiments = map[string]bool{"positive": true, "neutral": true, "negative": true, "mixed": true}
)

func (c *Client) SaveSummary(ctx context.Context, recordingID, transcriptID string, s summary.MeetingSummary) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	items := make([]actionItemArg, 0, len(s.ActionItems))
	for _, it := range s.ActionItems {
		arg := actionItemArg{Description: it.Description, Assignee: it.Assignee, DueDate: it.DueDate}
		if validPriorities[it.Priority] {
			arg.Priority = it.Priority
		}
		items = append(items, arg)
	}
	sentiment := s.OverallSentiment
	if !validSentiments[sentiment] {
		sentiment = ""
	}
	args := summaryArgs{
		RecordingID:      recordingID,
		TranscriptID:     transcriptID,
		ExecutiveSummary: s.ExecutiveSummary,
		KeyPoints:        nonNil(s.KeyPoints),
		ActionItems:      items,
		Decisions:        nonNil(s.Decisions),
		OpenQuestions:    nonNil(s.OpenQuestions),
		Topics:           s.Topics,
		OverallSentiment: sentiment,
		ModelUsed:        s.Model,
		PromptTokens:     s.PromptTokens,
		CompletionTokens: s.CompletionTokens,
		ProcessingTime:   s.ProcessingTime.Milliseconds(),
	}
	if args.Topics == nil {
		args.Topics = []summary.Topic{}
	}
	var id string
	if err := c.call(ctx, kindMutation, pathSaveSummary, args, &id); err != nil {
		return "", err
	}
	return id, nil
}

type participantArg struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	IsHost      bool   `json:"isHost"`
	IsExternal  bool   `json:"isExternal"`
}

func (c *Client) SaveParticipants(ctx context.Context, recordingID string, participants []bot.Participant) error {
	if !c.Enabled() || len(participants) == 0 {
		return nil
	}
	out := make([]participantArg, 0, len(participants))
	for _, p := range participants {
		out = append(out, participantArg{DisplayName: p.DisplayName, Email: p.Email, IsHost: p.IsHost})
	}
	return c.call(ctx, kindMutation, pathSaveParticipants, map[string]any{
		"recordingId":  recordingID,
		"participants": out,
	}, nil)
}

// PendingJob is a scheduled recording waiting for a bot.
type PendingJob struct {
	ID            string  `json:"_id"`
	RecordingID   string  `json:"recordingId"`
	MeetingURL    string  `json:"meetingUrl"`
	ScheduledTime float64 `json:"scheduledTime"`
	Status        string  `json:"status"`
	Attempts      int     `json:"attempts"`
	MaxAttempts   int     `json:"maxAttempts"`
	Recording     *struct {
		MeetingPlatform string `json:"meetingPlatform"`
		BotName         string `json:"botName"`
		Title           string `json:"title"`
	} `json:"recording"`
}

func (p PendingJob) Platform() string {
	if p.Recording == nil {
		return ""
	}
	return p.Recording.MeetingPlatform
}

func (p PendingJob) BotName() string {
	if p.Recording == nil {
		return ""
	}
	return p.Recording.BotName
}

func (c *Client) PendingJobs(ctx context.Context) ([]PendingJob, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var jobs []PendingJob
	if err := c.call(ctx, kindQuery, pathPendingJobs, map[string]any{}, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// SelectProvider asks the usage rotation which provider has free quota left. Nil means no preference.
func (c *Client) SelectProvider(ctx context.Context, serviceType string) (*transcription.Selection, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var sel *transcription.Selection
	if err := c.call(ctx, kindQuery, pathSelectProvider, map[string]any{"serviceType": serviceType}, &sel); err != nil {
		return nil, err
	}
	return sel, nil
}

func (c *Client) RecordUsage(ctx context.Context, serviceType, provider string, units int) error {
	if !c.Enabled() {
		return nil
	}
	return c.call(ctx, kindMutation, pathRecordUsage, map[string]any{
		"serviceType": serviceType,
		"provider":    provider,
		"unitsUsed":   units,
	}, nil)
}

type functionRequest struct {
	Path   string         `json:"path"`
	Args   map[string]any `json:"args"`
	Format string         `json:"format"`
}

type functionResponse struct {
	Status       string          `json:"status"`
	Value        json.RawMessage `json:"value"`
	ErrorMessage string          `json:"errorMessage"`
}

// call runs a Convex function. Bot functions get the shared api key merged into their args.
func (c *Client) call(ctx context.Context, kind, path string, args any, out any) error {
	argMap, err := toArgs(args)
	if err != nil {
		return err
	}
	if strings.HasPrefix(path, "meetingBot:") {
		argMap["apiKey"] = c.apiKey
	}
	body, err := json.Marshal(functionRequest{Path: path, Args: argMap, Format: "json"})
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/api/" + kind

	value, err := retry.Do(ctx, c.policy, func(ctx context.Context) (json.RawMessage, error) {
		return c.post(ctx, endpoint, path, body)
	})
	if err != nil {
		c.logf("[Convex] %s error path=%s err=%v", kind, path, err)
		return err
	}
	if out == nil || len(value) == 0 {
		return nil
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("convex %s: decode value: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint, path string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(rb))}
	}

	var out functionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("convex %s: decode response: %w", path, err)
	}
	if out.Status != "success" {
		msg := out.ErrorMessage
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &FunctionError{Path: path, Message: msg}
	}
	return out.Value, nil
}

func toArgs(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(m)+1)
		for k, val := range m {
			out[k] = val
		}
		return out, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (c *Client) logf(format string, args ...any) {
	if c != nil && c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

var (
	_ transcription.ProviderSelector = (*Client)(nil)
	_ transcription.UsageRecorder    = (*Client)(nil)
)
