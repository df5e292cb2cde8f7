// Package queue provides a durable, at-least-once job queue backed by SQLite,
// plus the worker pools that drain it.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Stage names the pipeline a job belongs to. Each stage has its own FIFO
// ordering and worker pool.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageScrape    Stage = "scrape"
	StageProfile   Stage = "profile"
	StagePretext   Stage = "pretext"
)

// Job statuses.
const (
	jobQueued = "queued"
	jobActive = "active"
	jobDone   = "done"
	jobFailed = "failed"
)

// Job is a unit of work pulled from the broker.
type Job struct {
	ID        string
	Stage     Stage
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Broker is the durable queue. Jobs survive process restarts; anything left
// active from a previous run is requeued by Recover.
type Broker struct {
	db *sql.DB
}

// NewBroker opens the broker database at the given path.
func NewBroker(dsn string) (*Broker, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "queue: open broker")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "queue: exec %s", pragma)
		}
	}
	return &Broker{db: db}, nil
}

const brokerMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_stage_status ON jobs(stage, status, created_at);
`

func (b *Broker) Migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, brokerMigration)
	return eris.Wrap(err, "queue: migrate")
}

func (b *Broker) Close() error {
	return b.db.Close()
}

// Enqueue stores a job for the given stage and returns its id. The payload is
// serialized to JSON.
func (b *Broker) Enqueue(ctx context.Context, stage Stage, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "queue: marshal payload")
	}

	id := uuid.NewString()
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO jobs (id, stage, payload) VALUES (?, ?, ?)`,
		id, string(stage), string(data))
	if err != nil {
		return "", eris.Wrapf(err, "queue: enqueue %s", stage)
	}
	return id, nil
}

// PollBatch claims up to limit queued jobs for a stage in FIFO order and marks
// them active. The claim runs in a transaction so concurrent pollers never
// receive the same job.
func (b *Broker) PollBatch(ctx context.Context, stage Stage, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "queue: begin poll")
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT id, payload, created_at FROM jobs
		 WHERE stage = ? AND status = ?
		 ORDER BY rowid LIMIT ?`,
		string(stage), jobQueued, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "queue: poll %s", stage)
	}

	var jobs []Job
	for rows.Next() {
		var j Job
		var payload string
		if err := rows.Scan(&j.ID, &payload, &j.CreatedAt); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "queue: scan job")
		}
		j.Stage = stage
		j.Payload = json.RawMessage(payload)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, eris.Wrap(err, "queue: poll iterate")
	}
	rows.Close()

	for _, j := range jobs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = datetime('now') WHERE id = ?`,
			jobActive, j.ID); err != nil {
			return nil, eris.Wrapf(err, "queue: claim job %s", j.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "queue: commit poll")
	}
	return jobs, nil
}

// Complete marks a job done.
func (b *Broker) Complete(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		jobDone, id)
	return eris.Wrapf(err, "queue: complete %s", id)
}

// Fail marks a job failed with the handler's error message. Failed jobs are
// not retried automatically; RequeueFailed re-enqueues them on request.
func (b *Broker) Fail(ctx context.Context, id, message string) error {
	_, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?`,
		jobFailed, message, id)
	return eris.Wrapf(err, "queue: fail %s", id)
}

// RequeueFailed moves every failed job in a stage back to queued and returns
// how many were moved.
func (b *Broker) RequeueFailed(ctx context.Context, stage Stage) (int, error) {
	res, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = '', updated_at = datetime('now')
		 WHERE stage = ? AND status = ?`,
		jobQueued, string(stage), jobFailed)
	if err != nil {
		return 0, eris.Wrapf(err, "queue: requeue failed %s", stage)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "queue: requeue rows affected")
}

// Recover requeues jobs left active by a previous process. Call once at
// startup before workers begin polling.
func (b *Broker) Recover(ctx context.Context) (int, error) {
	res, err := b.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = datetime('now') WHERE status = ?`,
		jobQueued, jobActive)
	if err != nil {
		return 0, eris.Wrap(err, "queue: recover active jobs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "queue: recover rows affected")
}

// Depth reports the number of queued jobs per stage.
func (b *Broker) Depth(ctx context.Context) (map[Stage]int, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT stage, COUNT(*) FROM jobs WHERE status = ? GROUP BY stage`, jobQueued)
	if err != nil {
		return nil, eris.Wrap(err, "queue: depth")
	}
	defer rows.Close()

	depth := make(map[Stage]int)
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, eris.Wrap(err, "queue: scan depth")
		}
		depth[Stage(stage)] = count
	}
	return depth, eris.Wrap(rows.Err(), "queue: depth iterate")
}
