package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meeting-bot/internal/domain/bot"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/jobs" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotifier_BroadcastsJobUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, nil))
	defer srv.Close()

	all := dial(t, srv, "")
	defer all.Close()
	other := dial(t, srv, "?jobId=other")
	defer other.Close()
	waitClients(t, hub, 2)

	job := bot.NewJob("job-1", "rec", "https://meet.google.com/x", bot.PlatformGoogleMeet, "b", "", time.Now().UTC())
	NewNotifier(hub).JobUpdated(context.Background(), job)

	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := all.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt JobUpdatedEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Type != "job_updated" || evt.Job.ID != "job-1" || evt.Job.Status != bot.StatusPending {
		t.Fatalf("unexpected event: %+v", evt)
	}

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatalf("filtered client should not receive other jobs")
	}
}

func TestHub_NilSafe(t *testing.T) {
	var h *Hub
	h.Broadcast("x", []byte("{}"))
	if h.ClientCount() != 0 {
		t.Fatalf("expected 0")
	}
	var n *Notifier
	n.JobUpdated(context.Background(), bot.Job{})
}
