package meetingbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meeting-bot/internal/domain/bot"
)

func (m *Manager) run(ctx context.Context, r *activeRun, job bot.Job) {
	defer m.wg.Done()
	defer m.forget(job.ID)
	defer r.cancel()

	err := m.orchestrate(ctx, r, job.ID)
	if err == nil {
		return
	}
	if r.stopped.Load() {
		m.logf("[BotJob] id=%s status=abandoned reason=stopped", job.ID)
		return
	}
	if ctx.Err() != nil && m.isClosing() {
		err = ErrShuttingDown
	}
	m.fail(job.ID, err)
}

func (m *Manager) orchestrate(ctx context.Context, r *activeRun, id string) error {
	job, err := m.transition(ctx, id, (*bot.Job).Start)
	if err != nil {
		return err
	}
	if err := m.reportStep(ctx, job, bot.PhaseOf(job.Status), nil); err != nil {
		return err
	}

	if m.sessions == nil {
		return errors.New("meeting sessions not configured")
	}
	session, err := m.sessions.NewSession(job, m.sessionStatusHandler(id))
	if err != nil {
		return err
	}
	r.setSession(session)
	defer r.setSession(nil)

	if err := session.Join(ctx); err != nil {
		return err
	}

	job, err = m.transition(ctx, id, (*bot.Job).MarkRecording)
	if err != nil {
		return err
	}
	if err := m.reportStep(ctx, job, bot.PhaseOf(job.Status), nil); err != nil {
		return err
	}

	audioPath, err := session.WaitForEnd(ctx)
	if err != nil {
		return err
	}
	r.setSession(nil)

	job, err = m.transition(ctx, id, func(j *bot.Job) error { return j.MarkProcessing(audioPath) })
	if err != nil {
		return err
	}
	if err := m.reportStep(ctx, job, bot.PhaseOf(job.Status), nil); err != nil {
		return err
	}

	return m.process(ctx, id, job)
}

// process transcribes and summarizes the recording. Either both land in the system of record or the job fails.
// ctx is checked after every external call, so a stopped job writes nothing further even when a collaborator ignores cancellation.
func (m *Manager) process(ctx context.Context, id string, job bot.Job) error {
	if m.transcriber == nil || m.summarizer == nil {
		return errors.New("processing pipeline not configured")
	}

	if err := m.reportStep(ctx, job, bot.PhaseTranscribing, nil); err != nil {
		return err
	}
	res, err := m.transcriber.Transcribe(ctx, job.AudioFilePath)
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	m.logf("[BotJob] id=%s step=transcribe status=done provider=%s words=%d", id, res.Provider, res.WordCount)

	var transcriptID string
	if m.reporter != nil {
		transcriptID, err = m.reporter.SaveTranscript(ctx, job.RecordingID, res)
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			return fmt.Errorf("save transcript: %w", err)
		}
	}

	if err := m.reportStep(ctx, job, bot.PhaseSummarizing, nil); err != nil {
		return err
	}
	sum, err := m.summarizer.Summarize(ctx, res.FullText)
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if err != nil {
		return fmt.Errorf("summary failed: %w", err)
	}
	if m.reporter != nil {
		_, err := m.reporter.SaveSummary(ctx, job.RecordingID, transcriptID, sum)
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			return fmt.Errorf("save summary: %w", err)
		}
	}

	job, err = m.transition(ctx, id, func(j *bot.Job) error { return j.Complete(m.now().UTC()) })
	if err != nil {
		return err
	}
	m.logf("[BotJob] id=%s status=completed", id)
	return m.reportStep(ctx, job, bot.PhaseOf(job.Status), nil)
}

// transition applies step under the store's lock. A cancelled run never writes.
func (m *Manager) transition(ctx context.Context, id string, step func(*bot.Job) error) (bot.Job, error) {
	job, err := m.repo.Update(context.WithoutCancel(ctx), id, func(j *bot.Job) error {
		if ctx.Err() != nil {
			return errStopped
		}
		return step(j)
	})
	if err != nil {
		if errors.Is(err, errStopped) {
			return bot.Job{}, ctx.Err()
		}
		return bot.Job{}, err
	}
	m.logf("[BotJob] id=%s status=%s", id, job.Status)
	m.notify(job)
	return job, nil
}

// fail records err on the job, stamps EndedAt and reports the failure. Already-terminal jobs are left untouched.
func (m *Manager) fail(id string, cause error) {
	msg := cause.Error()
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	job, err := m.repo.Update(ctx, id, func(j *bot.Job) error {
		return j.Fail(msg, m.now().UTC())
	})
	if err != nil {
		m.logf("[BotJob] id=%s step=fail status=skipped err=%v", id, err)
		return
	}
	m.logf("[BotJob] id=%s status=failed err=%q", id, msg)
	m.report(ctx, job, bot.PhaseOf(job.Status), map[string]any{"error": job.Error})
	m.notify(job)
}

// reportStep reports a phase; a failed report fails the job.
func (m *Manager) reportStep(ctx context.Context, job bot.Job, phase bot.Phase, fields map[string]any) error {
	if m.reporter == nil {
		return nil
	}
	if err := m.reporter.UpdateRecordingStatus(ctx, job.RecordingID, phase.RecordingStatus(), fields); err != nil {
		return fmt.Errorf("report %s: %w", phase, err)
	}
	return nil
}

// report is reportStep for paths that have nothing left to fail.
func (m *Manager) report(ctx context.Context, job bot.Job, phase bot.Phase, fields map[string]any) {
	if err := m.reportStep(ctx, job, phase, fields); err != nil {
		m.logf("[BotJob] id=%s step=report phase=%s status=error err=%v", job.ID, phase, err)
	}
}

func nowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
