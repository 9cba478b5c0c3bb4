package meetingbot

import (
	"context"
	"errors"
	"log"
	"time"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/infrastructure/convex"
	"meeting-bot/internal/pkg/workerpool"

	"github.com/google/uuid"
)

const (
	pollLockKey    = "meetingbot:poller:tick"
	claimKeyPrefix = "meetingbot:claim:"
	claimTTL       = 6 * time.Hour
)

type PendingSource interface {
	PendingJobs(ctx context.Context) ([]convex.PendingJob, error)
}

type JobCreator interface {
	CreateJob(ctx context.Context, p CreateJobParams) (bot.Job, error)
}

// Locker coordinates replicas. SetIfNotExists must report true when no shared store is configured.
type Locker interface {
	SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type PollerConfig struct {
	Interval    time.Duration
	Workers     int
	JoinsPerMin int
}

// Poller picks up recordings scheduled in the system of record and turns them into bot jobs.
type Poller struct {
	source   PendingSource
	jobs     JobCreator
	lock     Locker
	cfg      PollerConfig
	instance string
	log      *log.Logger
}

func NewPoller(source PendingSource, jobs JobCreator, lock Locker, cfg PollerConfig, logger *log.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Poller{
		source:   source,
		jobs:     jobs,
		lock:     lock,
		cfg:      cfg,
		instance: uuid.NewString(),
		log:      logger,
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	if p == nil || p.source == nil || p.jobs == nil {
		return
	}
	pool := workerpool.New(p.cfg.Workers, 64)
	pool.PerMinute(p.cfg.JoinsPerMin)
	results := pool.Run(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			if r.Err != nil {
				p.logf("[Poller] job_id=%s status=error err=%v", r.Key, r.Err)
			}
		}
	}()

	p.logf("[Poller] started interval=%s workers=%d joins_per_min=%d", p.cfg.Interval, p.cfg.Workers, p.cfg.JoinsPerMin)
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()
	for {
		if _, err := p.Tick(ctx, pool); err != nil && ctx.Err() == nil {
			p.logf("[Poller] status=error err=%v", err)
		}
		select {
		case <-ctx.Done():
			pool.Close()
			<-done
			p.logf("[Poller] stopped")
			return
		case <-t.C:
		}
	}
}

// Tick runs one poll and queues a creation task per newly claimed pending job. It returns how many were queued.
func (p *Poller) Tick(ctx context.Context, pool *workerpool.Pool) (int, error) {
	if p.lock != nil {
		ok, err := p.lock.SetIfNotExists(ctx, pollLockKey, p.instance, p.cfg.Interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
	}

	pending, err := p.source.PendingJobs(ctx)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, pj := range pending {
		if pj.ID == "" || pj.MeetingURL == "" {
			continue
		}
		if !p.claim(ctx, pj.ID) {
			continue
		}
		pj := pj
		err := pool.Submit(ctx, workerpool.Task{Key: pj.ID, Run: func(ctx context.Context) error {
			return p.start(ctx, pj)
		}})
		if err != nil {
			p.release(pj.ID)
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		p.logf("[Poller] pending=%d queued=%d", len(pending), queued)
	}
	return queued, nil
}

func (p *Poller) start(ctx context.Context, pj convex.PendingJob) error {
	_, err := p.jobs.CreateJob(ctx, CreateJobParams{
		JobID:       pj.ID,
		RecordingID: pj.RecordingID,
		MeetingURL:  pj.MeetingURL,
		Platform:    pj.Platform(),
		BotName:     pj.BotName(),
	})
	switch {
	case err == nil:
		p.logf("[Poller] job_id=%s recording_id=%s status=started", pj.ID, pj.RecordingID)
		return nil
	case errors.Is(err, ErrJobExists):
		return nil
	case errors.Is(err, ErrInvalidInput):
		return err
	default:
		// Let a later tick retry.
		p.release(pj.ID)
		return err
	}
}

func (p *Poller) claim(ctx context.Context, id string) bool {
	if p.lock == nil {
		return true
	}
	ok, err := p.lock.SetIfNotExists(ctx, claimKeyPrefix+id, p.instance, claimTTL)
	if err != nil {
		p.logf("[Poller] job_id=%s step=claim status=error err=%v", id, err)
		return false
	}
	return ok
}

func (p *Poller) release(id string) {
	if p.lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.lock.Delete(ctx, claimKeyPrefix+id)
}

func (p *Poller) logf(format string, args ...any) {
	if p.log != nil {
		p.log.Printf(format, args...)
	}
}
