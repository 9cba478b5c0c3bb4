package meetingbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/pkg/jwt"
	"meeting-bot/internal/pkg/retry"
)

func noSleepPolicy() retry.Policy {
	p := retry.API()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func terminalJob(callbackURL string) bot.Job {
	job := bot.NewJob("job-1", "rec-1", "https://meet.google.com/x", bot.PlatformGoogleMeet, bot.DefaultBotName, callbackURL, time.Now().UTC())
	_ = job.Fail("boom", time.Now().UTC())
	return job
}

func TestCallbackNotifier_SendsSignedPayload(t *testing.T) {
	tokens := jwt.NewHMACService("secret", "meeting-bot")

	var got callbackPayload
	var claims jwt.Claims
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		c, err := tokens.Validate(raw)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		claims = c
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewCallbackNotifier(tokens, "meeting-bot", time.Minute, nil)
	n.JobUpdated(context.Background(), terminalJob(srv.URL))
	if err := n.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if got.Event != "job.failed" || got.Job.ID != "job-1" || got.Job.Error != "boom" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if claims.Scope != jwt.ScopeCallback || claims.JobID != "job-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestCallbackNotifier_SkipsNonTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	n := NewCallbackNotifier(nil, "", 0, nil)
	job := bot.NewJob("job-2", "rec", "https://x", bot.PlatformGoogleMeet, "b", srv.URL, time.Now())
	n.JobUpdated(context.Background(), job)

	noURL := terminalJob("")
	n.JobUpdated(context.Background(), noURL)
	if err := n.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no callbacks, got %d", calls)
	}
}

func TestCallbackNotifier_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewCallbackNotifier(nil, "", 0, nil)
	n.policy = noSleepPolicy()
	n.JobUpdated(context.Background(), terminalJob(srv.URL))
	if err := n.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestCallbackNotifier_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	n := NewCallbackNotifier(nil, "", 0, nil)
	n.policy = noSleepPolicy()
	n.JobUpdated(context.Background(), terminalJob(srv.URL))
	if err := n.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestCallbackNotifier_SlowReceiverDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewCallbackNotifier(nil, "", 0, nil)
	n.policy = noSleepPolicy()

	returned := make(chan struct{})
	go func() {
		n.JobUpdated(context.Background(), terminalJob(srv.URL))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("JobUpdated waited for the receiver")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Drain(ctx); err == nil {
		t.Fatalf("expected drain to time out while the receiver hangs")
	}

	close(release)
	if err := n.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}
}
