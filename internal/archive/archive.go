// Package archive keeps a Postgres history of report runs.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDisabled = errors.New("run archive is not configured")

const (
	StatusOK     = "ok"
	StatusFailed = "failed"

	defaultRecent = 20
	maxRecent     = 500
)

// Entry is one finished run, successful or not.
type Entry struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	HoloportID string    `json:"holoport_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	AppCount   int       `json:"app_count"`
	Delivered  bool      `json:"delivered"`
	Signature  string    `json:"signature,omitempty"`
	Payload    []byte    `json:"-"`
}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and checks the connection. The caller closes the
// returned pool.
func Open(ctx context.Context, dsn string) (*Store, *pgxpool.Pool, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil, ErrDisabled
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("archive: ping: %w", err)
	}
	return New(pool), pool, nil
}

const schemaSQL = `
create table if not exists hpos_stats_runs (
  run_id uuid primary key,
  started_at timestamptz not null,
  finished_at timestamptz not null,
  holoport_id text not null default '',
  status text not null,
  error text not null default '',
  app_count integer not null default 0,
  delivered boolean not null default false,
  signature text not null default '',
  payload jsonb
);
create index if not exists hpos_stats_runs_started_idx on hpos_stats_runs (started_at desc);
`

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("archive: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	_, err := s.db.Exec(ctx, `
insert into hpos_stats_runs (run_id, started_at, finished_at, holoport_id, status, error, app_count, delivered, signature, payload)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
on conflict (run_id) do nothing`,
		e.RunID, e.StartedAt.UTC(), e.FinishedAt.UTC(), e.HoloportID, e.Status, e.Error, e.AppCount, e.Delivered, e.Signature, payload,
	)
	if err != nil {
		return fmt.Errorf("archive: record run %s: %w", e.RunID, err)
	}
	return nil
}

// Recent returns the newest runs first. limit is clamped to a sane
// range.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	if limit > maxRecent {
		limit = maxRecent
	}

	rows, err := s.db.Query(ctx, `
select run_id::text, started_at, finished_at, holoport_id, status, error, app_count, delivered, signature
from hpos_stats_runs
order by started_at desc
limit $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query runs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.StartedAt, &e.FinishedAt, &e.HoloportID, &e.Status, &e.Error, &e.AppCount, &e.Delivered, &e.Signature); err != nil {
			return nil, fmt.Errorf("archive: scan run: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: read runs: %w", err)
	}
	return entries, nil
}
