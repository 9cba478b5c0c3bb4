package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"meeting-bot/internal/domain/bot"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// BotJobRepository stores bot jobs. Update runs mutate against the current record atomically;
// when mutate fails nothing is written.
type BotJobRepository interface {
	Create(ctx context.Context, job bot.Job) error
	Get(ctx context.Context, id string) (bot.Job, error)
	List(ctx context.Context) ([]bot.Job, error)
	Update(ctx context.Context, id string, mutate func(*bot.Job) error) (bot.Job, error)
	// FailUnfinished fails every non-terminal job with reason and returns them, oldest first.
	FailUnfinished(ctx context.Context, reason string, now time.Time) ([]bot.Job, error)
}

type MemoryBotJobRepository struct {
	mu   sync.Mutex
	jobs map[string]bot.Job
}

func NewMemoryBotJobRepository() *MemoryBotJobRepository {
	return &MemoryBotJobRepository{jobs: map[string]bot.Job{}}
}

func (r *MemoryBotJobRepository) Create(_ context.Context, job bot.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return ErrJobExists
	}
	r.jobs[job.ID] = clone(job)
	return nil
}

func (r *MemoryBotJobRepository) Get(_ context.Context, id string) (bot.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return bot.Job{}, ErrJobNotFound
	}
	return clone(j), nil
}

func (r *MemoryBotJobRepository) List(_ context.Context) ([]bot.Job, error) {
	r.mu.Lock()
	out := make([]bot.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, clone(j))
	}
	r.mu.Unlock()

	sortByStart(out)
	return out, nil
}

func (r *MemoryBotJobRepository) Update(_ context.Context, id string, mutate func(*bot.Job) error) (bot.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.jobs[id]
	if !ok {
		return bot.Job{}, ErrJobNotFound
	}
	next := clone(cur)
	if err := mutate(&next); err != nil {
		return clone(cur), err
	}
	r.jobs[id] = next
	return clone(next), nil
}

func (r *MemoryBotJobRepository) FailUnfinished(_ context.Context, reason string, now time.Time) ([]bot.Job, error) {
	r.mu.Lock()
	var failed []bot.Job
	for id, j := range r.jobs {
		if j.Status.Terminal() {
			continue
		}
		if err := j.Fail(reason, now); err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.jobs[id] = j
		failed = append(failed, clone(j))
	}
	r.mu.Unlock()

	sortByStart(failed)
	return failed, nil
}

func sortByStart(jobs []bot.Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		if jobs[i].StartedAt.Equal(jobs[k].StartedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].StartedAt.Before(jobs[k].StartedAt)
	})
}

// clone detaches EndedAt so callers never share the stored pointer.
func clone(j bot.Job) bot.Job {
	if j.EndedAt != nil {
		t := *j.EndedAt
		j.EndedAt = &t
	}
	return j
}

var _ BotJobRepository = (*MemoryBotJobRepository)(nil)
