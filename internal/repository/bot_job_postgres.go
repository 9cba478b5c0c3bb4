package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meeting-bot/internal/database"
	"meeting-bot/internal/domain/bot"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	botJobColumns = `id, recording_id, meeting_url, platform, bot_name, callback_url, status, error, started_at, ended_at, audio_file_path`

	uniqueViolation = "23505"
)

type PostgresBotJobRepository struct {
	db database.DB
}

func NewPostgresBotJobRepository(db database.DB) *PostgresBotJobRepository {
	return &PostgresBotJobRepository{db: db}
}

func (r *PostgresBotJobRepository) Create(ctx context.Context, job bot.Job) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO bot_jobs (`+botJobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.RecordingID, job.MeetingURL, string(job.Platform), job.BotName, job.CallbackURL,
		string(job.Status), job.Error, job.StartedAt.UTC(), endedAtArg(job.EndedAt), job.AudioFilePath,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrJobExists
		}
		return err
	}
	return nil
}

func (r *PostgresBotJobRepository) Get(ctx context.Context, id string) (bot.Job, error) {
	row := r.db.QueryRow(ctx, `SELECT `+botJobColumns+` FROM bot_jobs WHERE id = $1`, id)
	return scanBotJob(row)
}

func (r *PostgresBotJobRepository) List(ctx context.Context) ([]bot.Job, error) {
	rows, err := r.db.Query(ctx, `SELECT `+botJobColumns+` FROM bot_jobs ORDER BY started_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]bot.Job, 0)
	for rows.Next() {
		j, err := scanBotJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update locks the row for the duration of mutate so concurrent transitions serialize.
func (r *PostgresBotJobRepository) Update(ctx context.Context, id string, mutate func(*bot.Job) error) (bot.Job, error) {
	var out bot.Job
	err := database.WithTx(ctx, r.db, func(tx database.Tx) error {
		cur, err := scanBotJob(tx.QueryRow(ctx, `SELECT `+botJobColumns+` FROM bot_jobs WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next := clone(cur)
		if err := mutate(&next); err != nil {
			out = cur
			return err
		}
		if err := saveJob(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// FailUnfinished locks every non-terminal row, so a concurrent transition either lands first or waits and then finds the job failed.
func (r *PostgresBotJobRepository) FailUnfinished(ctx context.Context, reason string, now time.Time) ([]bot.Job, error) {
	var failed []bot.Job
	err := database.WithTx(ctx, r.db, func(tx database.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+botJobColumns+` FROM bot_jobs
			WHERE status NOT IN ('completed', 'failed')
			ORDER BY started_at ASC, id ASC
			FOR UPDATE`)
		if err != nil {
			return err
		}
		var pending []bot.Job
		for rows.Next() {
			j, err := scanBotJob(rows)
			if err != nil {
				rows.Close()
				return err
			}
			pending = append(pending, j)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, j := range pending {
			if err := j.Fail(reason, now); err != nil {
				return err
			}
			if err := saveJob(ctx, tx, j); err != nil {
				return err
			}
			failed = append(failed, j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

func saveJob(ctx context.Context, q database.Querier, j bot.Job) error {
	_, err := q.Exec(ctx,
		`UPDATE bot_jobs
		 SET status = $2, error = $3, ended_at = $4, audio_file_path = $5, bot_name = $6, callback_url = $7
		 WHERE id = $1`,
		j.ID, string(j.Status), j.Error, endedAtArg(j.EndedAt), j.AudioFilePath, j.BotName, j.CallbackURL,
	)
	if err != nil {
		return fmt.Errorf("update bot job %s: %w", j.ID, err)
	}
	return nil
}

func scanBotJob(row database.Row) (bot.Job, error) {
	var (
		j        bot.Job
		platform string
		status   string
		endedAt  *time.Time
	)
	err := row.Scan(&j.ID, &j.RecordingID, &j.MeetingURL, &platform, &j.BotName, &j.CallbackURL,
		&status, &j.Error, &j.StartedAt, &endedAt, &j.AudioFilePath)
	if err != nil {
		if err == sql.ErrNoRows || errors.Is(err, pgx.ErrNoRows) {
			return bot.Job{}, ErrJobNotFound
		}
		return bot.Job{}, err
	}
	j.Platform = bot.Platform(platform)
	j.Status = bot.Status(status)
	if !j.Status.Valid() {
		return bot.Job{}, fmt.Errorf("bot job %s: unknown status %q", j.ID, status)
	}
	if endedAt != nil {
		t := endedAt.UTC()
		j.EndedAt = &t
	}
	j.StartedAt = j.StartedAt.UTC()
	return j, nil
}

func endedAtArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

var _ BotJobRepository = (*PostgresBotJobRepository)(nil)
