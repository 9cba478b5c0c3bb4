package convex

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/pkg/retry"
	"meeting-bot/internal/summary"
	"meeting-bot/internal/transcription"
)

type recorded struct {
	kind string
	req  functionRequest
}

type fakeConvex struct {
	mu       sync.Mutex
	calls    []recorded
	respond  func(path string) (int, string)
	failures int
}

func (f *fakeConvex) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req functionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		f.mu.Lock()
		f.calls = append(f.calls, recorded{kind: r.URL.Path, req: req})
		failing := f.failures > 0
		if failing {
			f.failures--
		}
		f.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		code, body := http.StatusOK, `{"status":"success","value":null}`
		if f.respond != nil {
			code, body = f.respond(req.Path)
		}
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	})
}

func newTestClient(t *testing.T, f *fakeConvex) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "bot-key", log.New(io.Discard, "", 0))
	c.SetRetryPolicy(retry.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Sleep:        func(context.Context, time.Duration) error { return nil },
	})
	return c
}

func TestUpdateRecordingStatus_FiltersFields(t *testing.T) {
	f := &fakeConvex{}
	c := newTestClient(t, f)

	err := c.UpdateRecordingStatus(context.Background(), "rec_1", bot.RecordingFailed, map[string]any{
		"error":       "boom",
		"botJoinedAt": int64(42),
		"path":        "/tmp/a.webm",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(f.calls))
	}
	got := f.calls[0]
	if got.kind != "/api/mutation" || got.req.Path != pathUpdateRecordingStatus || got.req.Format != "json" {
		t.Fatalf("unexpected request %+v", got)
	}
	args := got.req.Args
	if args["apiKey"] != "bot-key" || args["status"] != "failed" || args["errorMessage"] != "boom" {
		t.Fatalf("unexpected args %v", args)
	}
	if _, ok := args["path"]; ok {
		t.Fatalf("unknown field leaked: %v", args)
	}
	if _, ok := args["error"]; ok {
		t.Fatalf("error should be renamed: %v", args)
	}
}

func TestSaveTranscript_ReturnsID(t *testing.T) {
	f := &fakeConvex{respond: func(string) (int, string) {
		return http.StatusOK, `{"status":"success","value":"tr_9"}`
	}}
	c := newTestClient(t, f)

	id, err := c.SaveTranscript(context.Background(), "rec_1", transcription.Result{
		FullText:       "hello there",
		Language:       "en",
		Model:          "whisper-1",
		WordCount:      2,
		ProcessingTime: 1500 * time.Millisecond,
	})
	if err != nil || id != "tr_9" {
		t.Fatalf("id=%q err=%v", id, err)
	}
	args := f.calls[0].req.Args
	if args["processingTime"] != float64(1500) || args["modelUsed"] != "whisper-1" {
		t.Fatalf("unexpected args %v", args)
	}
	if segs, ok := args["segments"].([]any); !ok || len(segs) != 0 {
		t.Fatalf("segments should be an empty array, got %#v", args["segments"])
	}
}

func TestSaveSummary_DropsInvalidEnums(t *testing.T) {
	f := &fakeConvex{respond: func(string) (int, string) {
		return http.StatusOK, `{"status":"success","value":"sum_1"}`
	}}
	c := newTestClient(t, f)

	_, err := c.SaveSummary(context.Background(), "rec_1", "tr_1", summary.MeetingSummary{
		ExecutiveSummary: "ok",
		ActionItems:      []summary.ActionItem{{Description: "ship", Priority: "urgent"}},
		OverallSentiment: "ecstatic",
		Model:            "claude",
	})
	if err != nil {
		t.Fatalf("save summary: %v", err)
	}
	args := f.calls[0].req.Args
	if _, ok := args["overallSentiment"]; ok {
		t.Fatalf("invalid sentiment should be dropped: %v", args)
	}
	items := args["actionItems"].([]any)
	if _, ok := items[0].(map[string]any)["priority"]; ok {
		t.Fatalf("invalid priority should be dropped: %v", items)
	}
	if args["transcriptId"] != "tr_1" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestSelectProvider_NullMeansNoPreference(t *testing.T) {
	f := &fakeConvex{}
	c := newTestClient(t, f)

	sel, err := c.SelectProvider(context.Background(), transcription.ServiceType)
	if err != nil || sel != nil {
		t.Fatalf("sel=%v err=%v", sel, err)
	}
	if f.calls[0].kind != "/api/query" {
		t.Fatalf("expected query endpoint, got %s", f.calls[0].kind)
	}
	if _, ok := f.calls[0].req.Args["apiKey"]; ok {
		t.Fatalf("rotation functions take no api key")
	}
}

func TestPendingJobs(t *testing.T) {
	f := &fakeConvex{respond: func(string) (int, string) {
		return http.StatusOK, `{"status":"success","value":[
			{"_id":"j1","recordingId":"r1","meetingUrl":"https://meet.google.com/abc","status":"pending","attempts":0,"maxAttempts":3,
			 "recording":{"meetingPlatform":"google_meet","botName":"Scribe","title":"Standup"}},
			{"_id":"j2","recordingId":"r2","meetingUrl":"https://zoom.us/j/1","recording":null}]}`
	}}
	c := newTestClient(t, f)

	jobs, err := c.PendingJobs(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Platform() != "google_meet" || jobs[0].BotName() != "Scribe" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if jobs[1].Platform() != "" {
		t.Fatalf("nil recording should give empty platform")
	}
}

func TestCall_RetriesTransientStatus(t *testing.T) {
	f := &fakeConvex{failures: 2}
	c := newTestClient(t, f)

	if err := c.RecordUsage(context.Background(), "transcription", "gladia", 3); err != nil {
		t.Fatalf("record usage: %v", err)
	}
	if len(f.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(f.calls))
	}
	if f.calls[2].req.Args["unitsUsed"] != float64(3) {
		t.Fatalf("unexpected args %v", f.calls[2].req.Args)
	}
}

func TestCall_FunctionErrorIsNotRetried(t *testing.T) {
	f := &fakeConvex{respond: func(string) (int, string) {
		return http.StatusOK, `{"status":"error","errorMessage":"Invalid API key"}`
	}}
	c := newTestClient(t, f)

	err := c.SaveParticipants(context.Background(), "rec_1", []bot.Participant{{DisplayName: "Ada"}})
	var fe *FunctionError
	if !errors.As(err, &fe) {
		t.Fatalf("expected function error, got %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("function errors must not be retried, got %d calls", len(f.calls))
	}
	ps := f.calls[0].req.Args["participants"].([]any)
	if ps[0].(map[string]any)["isExternal"] != false {
		t.Fatalf("isExternal must always be sent: %v", ps)
	}
}

func TestCall_ClientErrorStatus(t *testing.T) {
	f := &fakeConvex{respond: func(string) (int, string) { return http.StatusBadRequest, "bad args" }}
	c := newTestClient(t, f)

	err := c.UpdateRecordingStatus(context.Background(), "rec_1", bot.RecordingJoining, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected StatusError 400, got %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("4xx must not be retried")
	}
}

func TestDisabledClientNoops(t *testing.T) {
	c := NewClient("", "", nil)
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	ctx := context.Background()
	if err := c.UpdateRecordingStatus(ctx, "r", bot.RecordingJoining, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if id, err := c.SaveTranscript(ctx, "r", transcription.Result{}); err != nil || id != "" {
		t.Fatalf("save transcript: %q %v", id, err)
	}
	if jobs, err := c.PendingJobs(ctx); err != nil || jobs != nil {
		t.Fatalf("pending: %v %v", jobs, err)
	}
	var nilClient *Client
	if err := nilClient.RecordUsage(ctx, "transcription", "x", 1); err != nil {
		t.Fatalf("nil client: %v", err)
	}
}
