// Package workerpool runs submitted tasks on a fixed number of goroutines with optional start spacing.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("worker pool closed")

type Task struct {
	Key string
	Run func(ctx context.Context) error
}

type Result struct {
	Key string
	Err error
}

type Pool struct {
	workers int
	tasks   chan Task
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	rate   <-chan time.Time
	ticker *time.Ticker
}

func New(workers, buffer int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan Task, buffer),
	}
}

// SetInterval spaces task starts at least d apart across all workers. Zero disables spacing.
func (p *Pool) SetInterval(d time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticker != nil {
		p.ticker.Stop()
		p.ticker = nil
		p.rate = nil
	}
	if d <= 0 {
		return
	}
	p.ticker = time.NewTicker(d)
	p.rate = p.ticker.C
}

// PerMinute is SetInterval expressed as starts per minute.
func (p *Pool) PerMinute(n int) {
	if n <= 0 {
		p.SetInterval(0)
		return
	}
	p.SetInterval(time.Minute / time.Duration(n))
}

// Submit blocks until the task is queued, ctx ends, or the pool is closed.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	if p == nil || t.Run == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.tasks <- t:
		return nil
	}
}

func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.ticker != nil {
		p.ticker.Stop()
		p.ticker = nil
		p.rate = nil
	}
	close(p.tasks)
}

// Run starts the workers. The result channel closes once the pool is closed and drained, or ctx ends.
func (p *Pool) Run(ctx context.Context) <-chan Result {
	if p == nil {
		out := make(chan Result)
		close(out)
		return out
	}
	out := make(chan Result, p.workers*16)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-p.tasks:
					if !ok {
						return
					}
					if !p.wait(ctx) {
						return
					}
					err := t.Run(ctx)
					select {
					case <-ctx.Done():
						return
					case out <- Result{Key: t.Key, Err: err}:
					}
				}
			}
		}()
	}

	go func() {
		p.wg.Wait()
		close(out)
	}()

	return out
}

func (p *Pool) wait(ctx context.Context) bool {
	p.mu.RLock()
	rate := p.rate
	p.mu.RUnlock()
	if rate == nil {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-rate:
		return true
	}
}
