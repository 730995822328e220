package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs   []execCall
	execErr error
	rows    [][]any
	limit   any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	f.limit = args[0]
	return &fakeRows{data: f.rows, index: -1}, nil
}

// fakeRows serves fixed values through Scan by assigning each column to
// its destination pointer.
type fakeRows struct {
	data  [][]any
	index int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.index], nil }

func (r *fakeRows) Next() bool {
	r.index++
	return r.index < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.index]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, value := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = value.(string)
		case *time.Time:
			*d = value.(time.Time)
		case *int:
			*d = value.(int)
		case *bool:
			*d = value.(bool)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db).EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "create table if not exists hpos_stats_runs")

	db.execErr = errors.New("permission denied")
	assert.ErrorContains(t, New(db).EnsureSchema(context.Background()), "permission denied")
}

func TestRecord(t *testing.T) {
	db := &fakeDB{}
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	entry := Entry{
		RunID:      uuid.NewString(),
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		HoloportID: "abc",
		Status:     StatusOK,
		AppCount:   3,
		Delivered:  true,
		Signature:  "sig",
		Payload:    []byte(`{"holoportId":"abc"}`),
	}

	require.NoError(t, New(db).Record(context.Background(), entry))

	require.Len(t, db.execs, 1)
	args := db.execs[0].args
	require.Len(t, args, 10)
	assert.Equal(t, entry.RunID, args[0])
	assert.Equal(t, started.UTC(), args[1])
	assert.Equal(t, StatusOK, args[4])
	assert.Equal(t, true, args[7])
	assert.Equal(t, `{"holoportId":"abc"}`, args[9])
}

func TestRecordFailedRunWithoutPayload(t *testing.T) {
	db := &fakeDB{}
	err := New(db).Record(context.Background(), Entry{RunID: uuid.NewString(), Status: StatusFailed, Error: "conductor down"})
	require.NoError(t, err)
	assert.Nil(t, db.execs[0].args[9])
}

func TestRecent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{rows: [][]any{
		{"id-2", at.Add(time.Minute), at.Add(time.Minute + time.Second), "abc", StatusFailed, "boom", 0, false, ""},
		{"id-1", at, at.Add(time.Second), "abc", StatusOK, "", 4, true, "sig"},
	}}

	entries, err := New(db).Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "id-2", entries[0].RunID)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, 4, entries[1].AppCount)
	assert.True(t, entries[1].Delivered)
	assert.Equal(t, defaultRecent, db.limit)

	_, err = New(db).Recent(context.Background(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, maxRecent, db.limit)
}

func TestOpenWithoutDSN(t *testing.T) {
	_, _, err := Open(context.Background(), " ")
	assert.ErrorIs(t, err, ErrDisabled)
}

// TestPostgresRoundTrip runs against a real database when
// HPOS_STATS_TEST_DSN is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("HPOS_STATS_TEST_DSN"))
	if dsn == "" {
		t.Skip("HPOS_STATS_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, pool, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, store.EnsureSchema(ctx))

	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.Record(ctx, Entry{RunID: id, StartedAt: now.Add(time.Hour), FinishedAt: now.Add(time.Hour), Status: StatusOK, Payload: []byte(`{}`)}))
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), "delete from hpos_stats_runs where run_id = $1", id) })

	entries, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].RunID)
}
