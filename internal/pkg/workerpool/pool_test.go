package workerpool

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsAllTasks(t *testing.T) {
	p := New(3, 10)
	results := p.Run(context.Background())

	var ran atomic.Int32
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		key := key
		err := p.Submit(context.Background(), Task{Key: key, Run: func(context.Context) error {
			ran.Add(1)
			if key == "c" {
				return errors.New("boom")
			}
			return nil
		}})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	p.Close()

	var keys []string
	var failed []string
	for r := range results {
		keys = append(keys, r.Key)
		if r.Err != nil {
			failed = append(failed, r.Key)
		}
	}
	sort.Strings(keys)
	if ran.Load() != 5 || len(keys) != 5 || keys[0] != "a" || keys[4] != "e" {
		t.Fatalf("unexpected results %v ran=%d", keys, ran.Load())
	}
	if len(failed) != 1 || failed[0] != "c" {
		t.Fatalf("unexpected failures %v", failed)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New(1, 1)
	p.Close()
	p.Close()
	if err := p.Submit(context.Background(), Task{Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	p := New(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Submit(ctx, Task{Run: func(context.Context) error { return nil }}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPool_IntervalSpacesStarts(t *testing.T) {
	p := New(2, 4)
	p.SetInterval(20 * time.Millisecond)
	results := p.Run(context.Background())

	start := time.Now()
	for i := 0; i < 3; i++ {
		_ = p.Submit(context.Background(), Task{Run: func(context.Context) error { return nil }})
	}
	for i := 0; i < 3; i++ {
		<-results
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected spacing between starts, finished in %s", elapsed)
	}
	p.Close()
}
