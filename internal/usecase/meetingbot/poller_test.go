package meetingbot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/infrastructure/convex"
	"meeting-bot/internal/pkg/workerpool"
)

type fakeSource struct {
	jobs []convex.PendingJob
	err  error
}

func (f fakeSource) PendingJobs(context.Context) ([]convex.PendingJob, error) {
	return f.jobs, f.err
}

type fakeCreator struct {
	mu     sync.Mutex
	params []CreateJobParams
	err    error
}

func (f *fakeCreator) CreateJob(_ context.Context, p CreateJobParams) (bot.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)
	return bot.Job{ID: p.JobID}, f.err
}

type memLocker struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemLocker() *memLocker { return &memLocker{keys: map[string]string{}} }

func (l *memLocker) SetIfNotExists(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[key]; ok {
		return false, nil
	}
	l.keys[key] = value
	return true, nil
}

func (l *memLocker) Delete(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
	return nil
}

func (l *memLocker) has(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.keys[key]
	return ok
}

func drain(t *testing.T, pool *workerpool.Pool, results <-chan workerpool.Result) []workerpool.Result {
	t.Helper()
	pool.Close()
	var out []workerpool.Result
	for r := range results {
		out = append(out, r)
	}
	return out
}

func pendingJob(id string) convex.PendingJob {
	return convex.PendingJob{ID: id, RecordingID: "rec-" + id, MeetingURL: "https://meet.google.com/" + id}
}

func TestPoller_Tick_QueuesClaimedJobs(t *testing.T) {
	creator := &fakeCreator{}
	lock := newMemLocker()
	src := fakeSource{jobs: []convex.PendingJob{pendingJob("a"), pendingJob("b"), {ID: "no-url"}}}
	p := NewPoller(src, creator, lock, PollerConfig{Interval: time.Minute, Workers: 2}, nil)

	ctx := context.Background()
	pool := workerpool.New(2, 8)
	results := pool.Run(ctx)

	n, err := p.Tick(ctx, pool)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 queued, got %d", n)
	}
	for _, r := range drain(t, pool, results) {
		if r.Err != nil {
			t.Fatalf("unexpected task err for %s: %v", r.Key, r.Err)
		}
	}

	creator.mu.Lock()
	defer creator.mu.Unlock()
	if len(creator.params) != 2 {
		t.Fatalf("expected 2 creations, got %d", len(creator.params))
	}
	for _, cp := range creator.params {
		if cp.RecordingID != "rec-"+cp.JobID {
			t.Fatalf("unexpected params: %+v", cp)
		}
	}
}

func TestPoller_Tick_SkipsWhileLocked(t *testing.T) {
	creator := &fakeCreator{}
	lock := newMemLocker()
	lock.keys[pollLockKey] = "other-instance"
	p := NewPoller(fakeSource{jobs: []convex.PendingJob{pendingJob("a")}}, creator, lock, PollerConfig{}, nil)

	pool := workerpool.New(1, 1)
	n, err := p.Tick(context.Background(), pool)
	if err != nil || n != 0 {
		t.Fatalf("expected skipped tick, got n=%d err=%v", n, err)
	}
	pool.Close()
}

func TestPoller_Tick_AlreadyClaimed(t *testing.T) {
	creator := &fakeCreator{}
	lock := newMemLocker()
	lock.keys[claimKeyPrefix+"a"] = "other-instance"
	p := NewPoller(fakeSource{jobs: []convex.PendingJob{pendingJob("a")}}, creator, lock, PollerConfig{}, nil)

	pool := workerpool.New(1, 1)
	n, err := p.Tick(context.Background(), pool)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing queued, got n=%d err=%v", n, err)
	}
	pool.Close()
}

func TestPoller_Tick_SourceError(t *testing.T) {
	p := NewPoller(fakeSource{err: errors.New("convex down")}, &fakeCreator{}, nil, PollerConfig{}, nil)
	pool := workerpool.New(1, 1)
	defer pool.Close()
	if _, err := p.Tick(context.Background(), pool); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPoller_Start_ReleasesClaimOnFailure(t *testing.T) {
	lock := newMemLocker()
	creator := &fakeCreator{err: errors.New("db unavailable")}
	p := NewPoller(fakeSource{}, creator, lock, PollerConfig{}, nil)

	pj := pendingJob("a")
	lock.keys[claimKeyPrefix+"a"] = "me"
	if err := p.start(context.Background(), pj); err == nil {
		t.Fatalf("expected error")
	}
	if lock.has(claimKeyPrefix + "a") {
		t.Fatalf("expected claim to be released")
	}
}

func TestPoller_Start_ExistingJobIsOK(t *testing.T) {
	lock := newMemLocker()
	p := NewPoller(fakeSource{}, &fakeCreator{err: ErrJobExists}, lock, PollerConfig{}, nil)
	lock.keys[claimKeyPrefix+"a"] = "me"

	if err := p.start(context.Background(), pendingJob("a")); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if !lock.has(claimKeyPrefix + "a") {
		t.Fatalf("expected claim to be kept")
	}
}

func TestPoller_WithManager_StartsJob(t *testing.T) {
	sess := newFakeSession()
	m := newTestManager(&fakeFactory{session: sess}, nil, nil)
	defer func() {
		_ = m.Shutdown(context.Background())
	}()

	p := NewPoller(fakeSource{jobs: []convex.PendingJob{pendingJob("cvx1")}}, m, nil, PollerConfig{}, nil)
	ctx := context.Background()
	pool := workerpool.New(1, 4)
	results := pool.Run(ctx)
	if _, err := p.Tick(ctx, pool); err != nil {
		t.Fatalf("tick: %v", err)
	}
	// A second tick without a lock store relies on the job id for dedupe.
	if _, err := p.Tick(ctx, pool); err != nil {
		t.Fatalf("tick: %v", err)
	}
	for _, r := range drain(t, pool, results) {
		if r.Err != nil {
			t.Fatalf("unexpected task err: %v", r.Err)
		}
	}

	jobs, err := m.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "cvx1" || jobs[0].RecordingID != "rec-cvx1" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}
