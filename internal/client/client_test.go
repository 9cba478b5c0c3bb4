package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/usecase/meetingbot"
	"meeting-bot/internal/ws"
)

func TestClient_CreateGetList(t *testing.T) {
	job := bot.NewJob("job-1", "rec-1", "https://meet.google.com/x", bot.PlatformGoogleMeet, bot.DefaultBotName, "", time.Now().UTC())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		var p meetingbot.CreateJobParams
		_ = json.NewDecoder(r.Body).Decode(&p)
		if p.RecordingID != "rec-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"jobId":"job-1"}`))
	})
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "job-1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Job not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(job)
	})
	mux.HandleFunc("GET /api/jobs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"jobs": []bot.Job{job}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL, "key", "")

	id, err := c.CreateJob(ctx, meetingbot.CreateJobParams{RecordingID: "rec-1", MeetingURL: job.MeetingURL})
	if err != nil || id != "job-1" {
		t.Fatalf("create: id=%q err=%v", id, err)
	}

	got, err := c.GetJob(ctx, "job-1")
	if err != nil || got.RecordingID != "rec-1" {
		t.Fatalf("get: %+v err=%v", got, err)
	}

	_, err = c.GetJob(ctx, "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Job not found" {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs, err := c.ListJobs(ctx)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("list: %v err=%v", jobs, err)
	}

	_, err = New(srv.URL, "wrong", "").CreateJob(ctx, meetingbot.CreateJobParams{RecordingID: "rec-1"})
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestClient_Watch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := ws.NewHub(nil)
	go hub.Run(ctx)
	mux := http.NewServeMux()
	mux.Handle("/ws/jobs", ws.NewHandler(hub, nil))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	go func() {
		for hub.ClientCount() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		job := bot.NewJob("job-7", "rec", "https://x", bot.PlatformGoogleMeet, "b", "", time.Now())
		_ = job.Fail("boom", time.Now())
		ws.NewNotifier(hub).JobUpdated(ctx, job)
	}()

	done := errors.New("done")
	var seen bot.Job
	err := New(srv.URL, "key", "").Watch(ctx, "job-7", func(j bot.Job) error {
		seen = j
		return done
	})
	if !errors.Is(err, done) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if seen.ID != "job-7" || seen.Status != bot.StatusFailed {
		t.Fatalf("unexpected job: %+v", seen)
	}
}
