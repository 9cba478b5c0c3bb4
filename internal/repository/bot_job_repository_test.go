package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meeting-bot/internal/domain/bot"
)

func newJob(id string, at time.Time) bot.Job {
	return bot.NewJob(id, "rec_"+id, "https://meet.google.com/abc-defg-hij", bot.PlatformGoogleMeet, bot.DefaultBotName, "", at)
}

func TestMemoryBotJobRepository_CreateGet(t *testing.T) {
	repo := NewMemoryBotJobRepository()
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := repo.Create(ctx, newJob("a", now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, newJob("a", now)); !errors.Is(err, ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}
	got, err := repo.Get(ctx, "a")
	if err != nil || got.Status != bot.StatusPending || got.RecordingID != "rec_a" {
		t.Fatalf("unexpected job %+v err=%v", got, err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryBotJobRepository_ListOrdered(t *testing.T) {
	repo := NewMemoryBotJobRepository()
	ctx := context.Background()
	base := time.Now()
	_ = repo.Create(ctx, newJob("late", base.Add(time.Minute)))
	_ = repo.Create(ctx, newJob("early", base))
	_ = repo.Create(ctx, newJob("mid", base.Add(time.Second)))

	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 || jobs[0].ID != "early" || jobs[1].ID != "mid" || jobs[2].ID != "late" {
		t.Fatalf("unexpected order %v", jobs)
	}
}

func TestMemoryBotJobRepository_UpdateFailureLeavesRecord(t *testing.T) {
	repo := NewMemoryBotJobRepository()
	ctx := context.Background()
	_ = repo.Create(ctx, newJob("a", time.Now()))

	_, err := repo.Update(ctx, "a", func(j *bot.Job) error {
		j.BotName = "changed"
		return j.Complete(time.Now())
	})
	if !errors.Is(err, bot.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	got, _ := repo.Get(ctx, "a")
	if got.BotName != bot.DefaultBotName || got.Status != bot.StatusPending {
		t.Fatalf("failed mutation leaked: %+v", got)
	}

	if _, err := repo.Update(ctx, "nope", func(*bot.Job) error { return nil }); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryBotJobRepository_SnapshotsAreDetached(t *testing.T) {
	repo := NewMemoryBotJobRepository()
	ctx := context.Background()
	_ = repo.Create(ctx, newJob("a", time.Now()))
	end := time.Now()
	_, _ = repo.Update(ctx, "a", func(j *bot.Job) error { return j.Fail("x", end) })

	got, _ := repo.Get(ctx, "a")
	*got.EndedAt = time.Time{}
	again, _ := repo.Get(ctx, "a")
	if again.EndedAt.IsZero() {
		t.Fatalf("stored EndedAt was mutated through a snapshot")
	}
}

func TestMemoryBotJobRepository_ConcurrentUpdatesSerialize(t *testing.T) {
	repo := NewMemoryBotJobRepository()
	ctx := context.Background()
	_ = repo.Create(ctx, newJob("a", time.Now()))

	var wg sync.WaitGroup
	var wins, losses int
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "a", func(j *bot.Job) error { return j.Fail("stop", time.Now()) })
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				losses++
			}
		}()
	}
	wg.Wait()
	if wins != 1 || losses != 19 {
		t.Fatalf("expected exactly one terminal transition, got wins=%d losses=%d", wins, losses)
	}
}

func TestMemoryBotJobRepository_FailUnfinished(t *testing.T) {
	repo := NewMemoryBotJobRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

	for i, id := range []string{"recording", "done", "pending"} {
		if err := repo.Create(ctx, newJob(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := repo.Update(ctx, "recording", func(j *bot.Job) error {
		if err := j.Start(); err != nil {
			return err
		}
		return j.MarkRecording()
	}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := repo.Update(ctx, "done", func(j *bot.Job) error {
		return j.Fail("earlier", base)
	}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	at := base.Add(time.Hour)
	failed, err := repo.FailUnfinished(ctx, bot.Interrupted, at)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(failed) != 2 || failed[0].ID != "recording" || failed[1].ID != "pending" {
		t.Fatalf("expected recording then pending, got %+v", failed)
	}
	for _, id := range []string{"recording", "pending"} {
		got, _ := repo.Get(ctx, id)
		if got.Status != bot.StatusFailed || got.Error != bot.Interrupted || got.EndedAt == nil || !got.EndedAt.Equal(at) {
			t.Fatalf("%s not swept: %+v", id, got)
		}
	}
	if got, _ := repo.Get(ctx, "done"); got.Error != "earlier" {
		t.Fatalf("terminal job rewritten: %+v", got)
	}

	again, err := repo.FailUnfinished(ctx, bot.Interrupted, at)
	if err != nil || len(again) != 0 {
		t.Fatalf("second sweep should be empty, got %+v err=%v", again, err)
	}
}
