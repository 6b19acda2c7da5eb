package snapshot

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/material-finder/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB records Exec calls and answers QueryRow with row.
type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
	row      pgx.Row
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return f.row
}

type fakeRow struct {
	body      string
	fetchedAt time.Time
	err       error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.body
	*dest[1].(*time.Time) = r.fetchedAt
	return nil
}

func TestSourceKey(t *testing.T) {
	a := SourceKey("https://example.com/a.csv")
	b := SourceKey("https://example.com/b.csv")

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, SourceKey("https://example.com/a.csv"))
}

func TestStore_SaveUpserts(t *testing.T) {
	db := &fakeDB{}
	store := New(db, "https://example.com/a.csv")
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	require.NoError(t, store.Save(context.Background(), core.Snapshot{Body: "Titulo\nx\n", FetchedAt: at}))

	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "ON CONFLICT (source_key)")
	args := db.execArgs[0]
	assert.Equal(t, SourceKey("https://example.com/a.csv"), args[0])
	assert.Equal(t, "Titulo\nx\n", args[1])
	assert.Equal(t, at.UTC(), args[2])
}

func TestStore_SaveError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection refused")}
	err := New(db, "u").Save(context.Background(), core.Snapshot{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save snapshot")
}

func TestStore_Latest(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{body: "Titulo\nx\n", fetchedAt: at}}

	snap, err := New(db, "u").Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Titulo\nx\n", snap.Body)
	assert.Equal(t, at, snap.FetchedAt)
}

func TestStore_LatestEmpty(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}

	_, err := New(db, "u").Latest(context.Background())
	assert.ErrorIs(t, err, core.ErrNoSnapshot)
}

func TestStore_Migrate(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db, "u").Migrate(context.Background()))
	require.Len(t, db.execSQL, 1)
	assert.True(t, strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS csv_snapshots"))
}

func TestStore_ServesStoreFallback(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{body: "Titulo,Tipo\nÓptica,Guía\n", fetchedAt: at}}

	src := sourceFunc(func(context.Context, core.Attempt) (string, error) {
		return "", &core.FetchError{Err: errors.New("connection refused")}
	})
	store := core.NewStore(src, core.StoreConfig{Snapshots: New(db, "u")})

	res, err := store.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.StatusStale, res.Status)
	assert.Equal(t, at, res.FetchedAt)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Óptica", res.Records[0].Get("titulo"))
}

type sourceFunc func(context.Context, core.Attempt) (string, error)

func (f sourceFunc) FetchCSV(ctx context.Context, a core.Attempt) (string, error) {
	return f(ctx, a)
}

// TestStore_Postgres runs against a real database when TEST_DATABASE_URL is set.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Open(ctx, PoolConfig{URL: dsn, MaxConns: 2, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer pool.Close()

	store := New(pool, "test://"+t.Name()+time.Now().String())
	require.NoError(t, store.Migrate(ctx))

	_, err = store.Latest(ctx)
	require.ErrorIs(t, err, core.ErrNoSnapshot)

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.Save(ctx, core.Snapshot{Body: "a\n", FetchedAt: at}))
	require.NoError(t, store.Save(ctx, core.Snapshot{Body: "b\n", FetchedAt: at}))

	snap, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b\n", snap.Body)
	assert.True(t, at.Equal(snap.FetchedAt))
}
