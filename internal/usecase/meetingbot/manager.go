// Package meetingbot runs bot jobs from intake to a terminal state: join, record, transcribe, summarize, report.
package meetingbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/infrastructure/meeting"
	"meeting-bot/internal/repository"
	"meeting-bot/internal/summary"
	"meeting-bot/internal/transcription"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrJobNotFound  = repository.ErrJobNotFound
	ErrJobExists    = repository.ErrJobExists
	ErrShuttingDown = errors.New("bot service is shutting down")
	errStopped      = errors.New("job stopped")
)

const (
	reportTimeout = 30 * time.Second

	// notifyBuffer bounds how far one notifier may fall behind before its updates are dropped.
	notifyBuffer = 256
)

type SessionFactory interface {
	NewSession(job bot.Job, onStatus meeting.StatusFunc) (meeting.Session, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioFilePath string) (transcription.Result, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (summary.MeetingSummary, error)
}

// Reporter pushes job facts to the system of record.
type Reporter interface {
	UpdateRecordingStatus(ctx context.Context, recordingID string, status bot.RecordingStatus, fields map[string]any) error
	SaveTranscript(ctx context.Context, recordingID string, res transcription.Result) (string, error)
	SaveSummary(ctx context.Context, recordingID, transcriptID string, s summary.MeetingSummary) (string, error)
	SaveParticipants(ctx context.Context, recordingID string, participants []bot.Participant) error
}

// Notifier observes every job snapshot change, in order. A notifier that falls behind loses updates.
type Notifier interface {
	JobUpdated(ctx context.Context, job bot.Job)
}

// drainer is a Notifier with deliveries still in flight after JobUpdated returns.
type drainer interface {
	Drain(ctx context.Context) error
}

// notifyQueue feeds one notifier from its own goroutine.
type notifyQueue struct {
	n      Notifier
	events chan bot.Job
}

type Deps struct {
	Repo        repository.BotJobRepository
	Sessions    SessionFactory
	Transcriber Transcriber
	Summarizer  Summarizer
	Reporter    Reporter
	Notifiers   []Notifier
	Logger      *log.Logger
}

type CreateJobParams struct {
	JobID       string `json:"jobId"`
	RecordingID string `json:"recordingId"`
	MeetingURL  string `json:"meetingUrl"`
	Platform    string `json:"platform"`
	BotName     string `json:"botName"`
	CallbackURL string `json:"callbackUrl"`
}

// activeRun is the live state of one orchestration goroutine.
type activeRun struct {
	cancel  context.CancelFunc
	stopped atomic.Bool

	mu      sync.Mutex
	session meeting.Session
}

func (r *activeRun) setSession(s meeting.Session) {
	r.mu.Lock()
	r.session = s
	r.mu.Unlock()
}

func (r *activeRun) currentSession() meeting.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

type Manager struct {
	repo        repository.BotJobRepository
	sessions    SessionFactory
	transcriber Transcriber
	summarizer  Summarizer
	reporter    Reporter
	log         *log.Logger

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	runs    map[string]*activeRun
	closing bool
	wg      sync.WaitGroup

	evMu         sync.RWMutex
	queues       []*notifyQueue
	eventsClosed bool
	dispatchers  sync.WaitGroup
}

func NewManager(d Deps) *Manager {
	repo := d.Repo
	if repo == nil {
		repo = repository.NewMemoryBotJobRepository()
	}
	m := &Manager{
		repo:        repo,
		sessions:    d.Sessions,
		transcriber: d.Transcriber,
		summarizer:  d.Summarizer,
		reporter:    d.Reporter,
		log:         d.Logger,
		now:         time.Now,
		newID:       uuid.NewString,
		runs:        map[string]*activeRun{},
	}
	for _, n := range d.Notifiers {
		m.AddNotifier(n)
	}
	return m
}

// AddNotifier registers n for subsequent job updates.
func (m *Manager) AddNotifier(n Notifier) {
	if m == nil || n == nil {
		return
	}
	m.evMu.Lock()
	defer m.evMu.Unlock()
	if m.eventsClosed {
		return
	}
	q := &notifyQueue{n: n, events: make(chan bot.Job, notifyBuffer)}
	m.queues = append(m.queues, q)
	m.dispatchers.Add(1)
	go m.dispatch(q)
}

// CreateJob persists a pending job and starts its orchestration in the background.
func (m *Manager) CreateJob(ctx context.Context, p CreateJobParams) (bot.Job, error) {
	job, err := m.newJob(p)
	if err != nil {
		return bot.Job{}, err
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return bot.Job{}, ErrShuttingDown
	}
	if err := m.repo.Create(ctx, job); err != nil {
		m.mu.Unlock()
		return bot.Job{}, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r := &activeRun{cancel: cancel}
	m.runs[job.ID] = r
	m.wg.Add(1)
	m.mu.Unlock()

	m.logf("[BotJob] id=%s recording_id=%s platform=%s status=created", job.ID, job.RecordingID, job.Platform)
	// pending is queued before the run can queue anything else.
	m.notify(job)
	go m.run(runCtx, r, job)
	return job, nil
}

func (m *Manager) newJob(p CreateJobParams) (bot.Job, error) {
	recordingID := strings.TrimSpace(p.RecordingID)
	meetingURL := strings.TrimSpace(p.MeetingURL)
	var missing []string
	if recordingID == "" {
		missing = append(missing, "recordingId")
	}
	if meetingURL == "" {
		missing = append(missing, "meetingUrl")
	}
	if len(missing) > 0 {
		return bot.Job{}, fmt.Errorf("%w: missing required fields: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}

	platform, err := bot.ParsePlatform(p.Platform)
	if err != nil {
		return bot.Job{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	callbackURL := strings.TrimSpace(p.CallbackURL)
	if callbackURL != "" {
		u, err := url.Parse(callbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return bot.Job{}, fmt.Errorf("%w: callbackUrl must be an http(s) URL", ErrInvalidInput)
		}
	}

	botName := strings.TrimSpace(p.BotName)
	if botName == "" {
		botName = bot.DefaultBotName
	}
	id := strings.TrimSpace(p.JobID)
	if id == "" {
		id = m.newID()
	}
	return bot.NewJob(id, recordingID, meetingURL, platform, botName, callbackURL, m.now().UTC()), nil
}

func (m *Manager) GetJob(ctx context.Context, id string) (bot.Job, error) {
	return m.repo.Get(ctx, strings.TrimSpace(id))
}

func (m *Manager) ListJobs(ctx context.Context) ([]bot.Job, error) {
	return m.repo.List(ctx)
}

// StopJob asks an active session to leave, cancels the orchestration and fails the job with "Stopped by user".
// Unknown and already finished jobs are left alone.
func (m *Manager) StopJob(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)

	m.mu.Lock()
	r := m.runs[id]
	m.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	if r != nil {
		r.stopped.Store(true)
		r.cancel()
		if s := r.currentSession(); s != nil {
			leaveCtx, cancel := context.WithTimeout(detached, reportTimeout)
			if err := s.Leave(leaveCtx); err != nil {
				m.logf("[BotJob] id=%s step=leave status=error err=%v", id, err)
			}
			cancel()
		}
	}

	job, err := m.repo.Update(detached, id, func(j *bot.Job) error {
		return j.Fail(bot.StoppedByUser, m.now().UTC())
	})
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) || errors.Is(err, bot.ErrInvalidTransition) {
			return nil
		}
		return err
	}

	m.logf("[BotJob] id=%s status=failed reason=stopped", id)
	m.report(detached, job, bot.PhaseOf(job.Status), map[string]any{"error": job.Error})
	m.notify(job)
	return nil
}

// RecoverInterrupted fails the jobs a previous process left unfinished. No run can own them once
// this process starts, so call it before accepting work.
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := m.repo.FailUnfinished(ctx, bot.Interrupted, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	for _, job := range jobs {
		m.logf("[BotJob] id=%s recording_id=%s status=failed reason=interrupted", job.ID, job.RecordingID)
		m.report(ctx, job, bot.PhaseOf(job.Status), map[string]any{"error": job.Error})
		m.notify(job)
	}
	return len(jobs), nil
}

// Shutdown cancels every running job, asks live sessions to leave and waits for the goroutines to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	runs := make([]*activeRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.Unlock()

	for _, r := range runs {
		r.cancel()
		if s := r.currentSession(); s != nil {
			leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			_ = s.Leave(leaveCtx)
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.evMu.Lock()
	if !m.eventsClosed {
		m.eventsClosed = true
		for _, q := range m.queues {
			close(q.events)
		}
	}
	queues := m.queues
	m.evMu.Unlock()

	dispatched := make(chan struct{})
	go func() {
		m.dispatchers.Wait()
		close(dispatched)
	}()
	select {
	case <-dispatched:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, q := range queues {
		if d, ok := q.n.(drainer); ok {
			if err := d.Drain(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// ActiveJobs reports how many orchestrations are still running.
func (m *Manager) ActiveJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.runs, id)
	m.mu.Unlock()
}

func (m *Manager) isClosing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing
}

// notify never blocks: a notifier whose queue is full misses this update.
func (m *Manager) notify(job bot.Job) {
	m.evMu.RLock()
	defer m.evMu.RUnlock()
	if m.eventsClosed {
		return
	}
	for _, q := range m.queues {
		select {
		case q.events <- job:
		default:
			m.logf("[BotJob] id=%s job_status=%s step=notify notifier=%T status=dropped", job.ID, job.Status, q.n)
		}
	}
}

func (m *Manager) dispatch(q *notifyQueue) {
	defer m.dispatchers.Done()
	for job := range q.events {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		q.n.JobUpdated(ctx, job)
		cancel()
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}
