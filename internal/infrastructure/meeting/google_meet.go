package meeting

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"meeting-bot/internal/domain/bot"
)

type Options struct {
	MeetingURL    string
	BotName       string
	RecordingsDir string
	Headless      bool
	ChromePath    string
	MaxDuration   time.Duration
	OnStatus      StatusFunc
	Logger        *log.Logger
}

type timing struct {
	joinSettle     time.Duration
	nameSettle     time.Duration
	postJoinClick  time.Duration
	waitingRoom    time.Duration
	admitted       time.Duration
	check          time.Duration
	aloneThreshold int
	participants   time.Duration
	drain          time.Duration
	leaveSettle    time.Duration
	stopFlush      time.Duration
}

func defaultTiming() timing {
	return timing{
		joinSettle:     3 * time.Second,
		nameSettle:     500 * time.Millisecond,
		postJoinClick:  5 * time.Second,
		waitingRoom:    5 * time.Minute,
		admitted:       30 * time.Second,
		check:          10 * time.Second,
		aloneThreshold: 3,
		participants:   time.Minute,
		drain:          time.Second,
		leaveSettle:    2 * time.Second,
		stopFlush:      1500 * time.Millisecond,
	}
}

// GoogleMeet is a Session for meet.google.com driven through headless Chrome.
type GoogleMeet struct {
	opts   Options
	timing timing
	launch launcher
	now    func() time.Time

	mu        sync.Mutex
	page      page
	sink      *audioSink
	recording atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
	endErr   error
}

func NewGoogleMeet(opts Options) *GoogleMeet {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.RecordingsDir == "" {
		opts.RecordingsDir = os.TempDir()
	}
	return &GoogleMeet{
		opts:   opts,
		timing: defaultTiming(),
		launch: launchChrome,
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

func (g *GoogleMeet) emit(status string, data map[string]any) {
	if g.opts.OnStatus != nil {
		g.opts.OnStatus(status, data)
	}
}

func (g *GoogleMeet) logf(format string, args ...any) {
	if g.opts.Logger != nil {
		g.opts.Logger.Printf(format, args...)
	}
}

func (g *GoogleMeet) Join(ctx context.Context) error {
	if g == nil {
		return ErrNotJoined
	}
	if err := g.join(ctx); err != nil {
		g.emit(StatusError, map[string]any{"error": err.Error()})
		g.teardown()
		return err
	}
	return nil
}

func (g *GoogleMeet) join(ctx context.Context) error {
	p, err := g.launch(g.opts)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	g.mu.Lock()
	g.page = p
	g.mu.Unlock()

	g.emit(StatusNavigating, nil)
	if err := p.Navigate(ctx, g.opts.MeetingURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := sleepCtx(ctx, g.timing.joinSettle); err != nil {
		return err
	}

	if err := g.joinFlow(ctx, p); err != nil {
		return fmt.Errorf("failed to join meeting: %w", err)
	}

	g.emit(StatusJoined, nil)
	g.recording.Store(true)

	if err := g.startCapture(ctx, p); err != nil {
		return fmt.Errorf("start audio capture: %w", err)
	}

	go g.monitor()
	return nil
}

func (g *GoogleMeet) joinFlow(ctx context.Context, p page) error {
	var filled bool
	if err := p.Eval(ctx, fillNameScript(g.opts.BotName), &filled); err != nil {
		return err
	}
	if filled {
		if err := sleepCtx(ctx, g.timing.nameSettle); err != nil {
			return err
		}
	}

	var muted int
	if err := p.Eval(ctx, muteDevicesScript, &muted); err != nil {
		g.logf("[Meeting] step=mute status=skipped err=%v", err)
	}

	var clicked bool
	if err := p.Eval(ctx, clickJoinScript, &clicked); err != nil {
		return err
	}
	if clicked {
		g.emit(StatusJoining, nil)
	}
	if err := sleepCtx(ctx, g.timing.postJoinClick); err != nil {
		return err
	}

	var waiting bool
	if err := p.Eval(ctx, waitingRoomScript, &waiting); err == nil && waiting {
		g.emit(StatusWaiting, map[string]any{"message": "Waiting for host to admit"})
		if err := g.awaitAdmission(ctx, p); err != nil {
			return err
		}
	}

	admitCtx, cancel := context.WithTimeout(ctx, g.timing.admitted)
	defer cancel()
	return p.WaitVisible(admitCtx, admittedSelector)
}

func (g *GoogleMeet) awaitAdmission(ctx context.Context, p page) error {
	deadline := g.now().Add(g.timing.waitingRoom)
	for g.now().Before(deadline) {
		if err := sleepCtx(ctx, time.Second); err != nil {
			return err
		}
		var waiting bool
		if err := p.Eval(ctx, waitingRoomScript, &waiting); err != nil {
			return err
		}
		if !waiting {
			return nil
		}
	}
	return fmt.Errorf("not admitted within %s", g.timing.waitingRoom)
}

func (g *GoogleMeet) startCapture(ctx context.Context, p page) error {
	if err := os.MkdirAll(g.opts.RecordingsDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(g.opts.RecordingsDir, fmt.Sprintf("meeting-%d.webm", g.now().UnixMilli()))
	sink, err := newAudioSink(path)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.sink = sink
	g.mu.Unlock()

	var ok bool
	if err := p.Eval(ctx, startRecorderScript, &ok); err != nil {
		return err
	}
	g.emit(StatusAudioCapture, map[string]any{"path": path})

	var captions bool
	if err := p.Eval(ctx, enableCaptionsScript, &captions); err != nil {
		g.logf("[Meeting] step=captions status=skipped err=%v", err)
	} else if captions {
		g.emit(StatusCaptionsEnabled, nil)
	}
	return nil
}

type pageState struct {
	Ended        bool `json:"ended"`
	Participants int  `json:"participants"`
}

func (g *GoogleMeet) monitor() {
	check := time.NewTicker(g.timing.check)
	drain := time.NewTicker(g.timing.drain)
	roster := time.NewTicker(g.timing.participants)
	maxTimer := time.NewTimer(g.opts.MaxDuration)
	defer check.Stop()
	defer drain.Stop()
	defer roster.Stop()
	defer maxTimer.Stop()

	ctx := context.Background()
	alone := 0
	for {
		select {
		case <-g.done:
			return
		case <-drain.C:
			if err := g.drainAudio(ctx); err != nil {
				g.logf("[Meeting] step=drain status=error err=%v", err)
			}
		case <-roster.C:
			if ps := g.captureParticipants(ctx); len(ps) > 0 {
				g.emit(StatusParticipants, map[string]any{"participants": ps})
			}
		case <-check.C:
			p := g.currentPage()
			if p == nil {
				return
			}
			var st pageState
			if err := p.Eval(ctx, inspectScript, &st); err != nil {
				g.logf("[Meeting] step=inspect status=error err=%v", err)
				g.finish(ctx)
				return
			}
			if st.Ended {
				g.finish(ctx)
				return
			}
			if st.Participants <= 1 {
				alone++
				if alone >= g.timing.aloneThreshold {
					g.emit(StatusAloneTimeout, map[string]any{
						"message": fmt.Sprintf("Left meeting after being alone for %s", time.Duration(alone)*g.timing.check),
					})
					_ = g.Leave(ctx)
					return
				}
			} else {
				alone = 0
			}
		case <-maxTimer.C:
			if g.recording.Load() {
				g.emit(StatusMaxDurationReached, map[string]any{
					"message":    fmt.Sprintf("Meeting exceeded %s maximum duration limit", g.opts.MaxDuration),
					"durationMs": g.opts.MaxDuration.Milliseconds(),
				})
				_ = g.Leave(ctx)
			}
			return
		}
	}
}

func (g *GoogleMeet) currentPage() page {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.page
}

func (g *GoogleMeet) drainAudio(ctx context.Context) error {
	g.mu.Lock()
	p, sink := g.page, g.sink
	g.mu.Unlock()
	if p == nil || sink == nil {
		return nil
	}
	var chunks []string
	if err := p.Eval(ctx, drainAudioScript, &chunks); err != nil {
		return err
	}
	return sink.writeBase64(chunks)
}

func (g *GoogleMeet) captureParticipants(ctx context.Context) []bot.Participant {
	p := g.currentPage()
	if p == nil {
		return nil
	}
	var ps []bot.Participant
	if err := p.Eval(ctx, participantsScript, &ps); err != nil {
		return nil
	}
	return ps
}

// Leave clicks the leave button and finalizes the recording. Safe to call more than once.
func (g *GoogleMeet) Leave(ctx context.Context) error {
	if g == nil {
		return nil
	}
	p := g.currentPage()
	if p == nil {
		return nil
	}
	var clicked bool
	if err := p.Eval(ctx, clickLeaveScript, &clicked); err == nil && clicked {
		_ = sleepCtx(ctx, g.timing.leaveSettle)
	}
	g.finish(ctx)
	return nil
}

// finish runs once: stop the recorder, flush the last chunks, close the browser, release WaitForEnd.
func (g *GoogleMeet) finish(ctx context.Context) {
	g.doneOnce.Do(func() {
		g.recording.Store(false)
		g.emit(StatusEnded, nil)

		if p := g.currentPage(); p != nil {
			var ok bool
			if err := p.Eval(ctx, stopRecorderScript, &ok); err == nil {
				_ = sleepCtx(ctx, g.timing.stopFlush)
			}
			if err := g.drainAudio(ctx); err != nil {
				g.logf("[Meeting] step=final_drain status=error err=%v", err)
			}
		}

		g.mu.Lock()
		sink := g.sink
		g.mu.Unlock()
		if sink == nil {
			g.endErr = ErrNoAudio
		} else if err := sink.close(); err != nil {
			g.endErr = err
		} else if sink.size() == 0 {
			g.endErr = ErrNoAudio
		}

		g.teardown()
		close(g.done)
	})
}

func (g *GoogleMeet) teardown() {
	g.mu.Lock()
	p := g.page
	g.page = nil
	g.mu.Unlock()
	if p != nil {
		p.Close()
	}
}

func (g *GoogleMeet) WaitForEnd(ctx context.Context) (string, error) {
	if g == nil {
		return "", ErrNotJoined
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-g.done:
	}
	if g.endErr != nil {
		return "", g.endErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sink.path, nil
}

type audioSink struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	written int64
}

func newAudioSink(path string) (*audioSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &audioSink{path: path, f: f}, nil
}

func (s *audioSink) writeBase64(chunks []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	for _, c := range chunks {
		b, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			return fmt.Errorf("decode audio chunk: %w", err)
		}
		n, err := s.f.Write(b)
		s.written += int64(n)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *audioSink) size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *audioSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
