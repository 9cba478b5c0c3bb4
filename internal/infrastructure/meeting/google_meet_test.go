package meeting

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"meeting-bot/internal/domain/bot"
)

type fakePage struct {
	mu           sync.Mutex
	state        pageState
	chunks       []string
	waitErr      error
	closed       bool
	leaveClicked bool
	navigated    string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = url
	return nil
}

func (p *fakePage) Eval(ctx context.Context, script string, out any) error {
	p.mu.Lock()
	var v any
	switch script {
	case drainAudioScript:
		chunks := p.chunks
		p.chunks = nil
		v = chunks
	case inspectScript:
		v = p.state
	case clickLeaveScript:
		p.leaveClicked = true
		v = true
	case waitingRoomScript:
		v = false
	case participantsScript:
		v = []bot.Participant{{DisplayName: "Ana", IsHost: true}}
	case muteDevicesScript:
		v = 0
	default:
		v = true
	}
	p.mu.Unlock()

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	return p.waitErr
}

func (p *fakePage) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePage) set(fn func(p *fakePage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

type statusLog struct {
	mu       sync.Mutex
	statuses []string
	data     map[string]map[string]any
}

func (l *statusLog) record(status string, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, status)
	if l.data == nil {
		l.data = map[string]map[string]any{}
	}
	l.data[status] = data
}

func (l *statusLog) has(status string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.statuses {
		if s == status {
			return true
		}
	}
	return false
}

func fastSession(t *testing.T, fp *fakePage, log *statusLog) *GoogleMeet {
	t.Helper()
	g := NewGoogleMeet(Options{
		MeetingURL:    "https://meet.google.com/abc-defg-hij",
		BotName:       "Bot",
		RecordingsDir: t.TempDir(),
		OnStatus:      log.record,
	})
	g.launch = func(Options) (page, error) { return fp, nil }
	g.timing = timing{
		check:          5 * time.Millisecond,
		aloneThreshold: 3,
		participants:   5 * time.Millisecond,
		drain:          2 * time.Millisecond,
		admitted:       time.Second,
		waitingRoom:    time.Second,
	}
	return g
}

func waitEnd(t *testing.T, g *GoogleMeet) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.WaitForEnd(ctx)
}

func TestGoogleMeet_RecordsUntilMeetingEnds(t *testing.T) {
	fp := &fakePage{state: pageState{Participants: 3}}
	log := &statusLog{}
	g := fastSession(t, fp, log)

	if err := g.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	for _, s := range []string{StatusNavigating, StatusJoining, StatusJoined, StatusAudioCapture} {
		if !log.has(s) {
			t.Fatalf("missing status %q in %v", s, log.statuses)
		}
	}

	fp.set(func(p *fakePage) {
		p.chunks = []string{base64.StdEncoding.EncodeToString([]byte("abc")), base64.StdEncoding.EncodeToString([]byte("def"))}
	})
	time.Sleep(20 * time.Millisecond)
	fp.set(func(p *fakePage) { p.state.Ended = true })

	path, err := waitEnd(t, g)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if string(data) != "abcdef" {
		t.Fatalf("unexpected audio content %q", data)
	}
	if !log.has(StatusEnded) || !log.has(StatusParticipants) {
		t.Fatalf("expected ended and participants statuses, got %v", log.statuses)
	}
	fp.mu.Lock()
	closed := fp.closed
	fp.mu.Unlock()
	if !closed {
		t.Fatalf("browser not closed after end")
	}
}

func TestGoogleMeet_LeavesWhenAlone(t *testing.T) {
	fp := &fakePage{state: pageState{Participants: 1}, chunks: []string{base64.StdEncoding.EncodeToString([]byte("x"))}}
	log := &statusLog{}
	g := fastSession(t, fp, log)

	if err := g.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := waitEnd(t, g); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !log.has(StatusAloneTimeout) {
		t.Fatalf("expected alone_timeout, got %v", log.statuses)
	}
	fp.mu.Lock()
	clicked := fp.leaveClicked
	fp.mu.Unlock()
	if !clicked {
		t.Fatalf("leave button not clicked")
	}
}

func TestGoogleMeet_JoinFailure(t *testing.T) {
	fp := &fakePage{waitErr: errors.New("timeout")}
	log := &statusLog{}
	g := fastSession(t, fp, log)

	err := g.Join(context.Background())
	if err == nil {
		t.Fatalf("expected join error")
	}
	if !log.has(StatusError) {
		t.Fatalf("expected error status, got %v", log.statuses)
	}
	if !fp.closed {
		t.Fatalf("browser not closed after failed join")
	}
	if err := g.Leave(context.Background()); err != nil {
		t.Fatalf("leave after failed join: %v", err)
	}
}

func TestGoogleMeet_LeaveWithoutAudio(t *testing.T) {
	fp := &fakePage{state: pageState{Participants: 4}}
	g := fastSession(t, fp, &statusLog{})
	g.timing.check = time.Hour

	if err := g.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := g.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := waitEnd(t, g); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
	if err := g.Leave(context.Background()); err != nil {
		t.Fatalf("second leave: %v", err)
	}
}

func TestGoogleMeet_WaitHonoursContext(t *testing.T) {
	g := NewGoogleMeet(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.WaitForEnd(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFactory(t *testing.T) {
	f := NewFactory(FactoryConfig{RecordingsDir: t.TempDir()})

	job := bot.NewJob("j1", "r1", "https://zoom.us/j/1", bot.PlatformZoom, "Bot", "", time.Now())
	_, err := f.NewSession(job, nil)
	if !errors.Is(err, ErrUnsupportedPlatform) || err.Error() != "Platform zoom not yet supported" {
		t.Fatalf("unexpected error %v", err)
	}

	job.Platform = bot.PlatformGoogleMeet
	s, err := f.NewSession(job, nil)
	if err != nil {
		t.Fatalf("google meet session: %v", err)
	}
	if _, ok := s.(*GoogleMeet); !ok {
		t.Fatalf("expected *GoogleMeet, got %T", s)
	}
}
