package pgxstmt

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mevdschee/tqbatch/verify"
	"github.com/mevdschee/tqbatch/writebatch"
)

func newDetached(query string, args ...any) *Statement {
	return &Statement{query: query, params: writebatch.NewParameterList(args...)}
}

func TestStatement_AddBatchQueuesNewParameters(t *testing.T) {
	s := newDetached("INSERT INTO t (a, b) VALUES ($1, $2)", 1, "one")
	require.NoError(t, s.AddBatch())

	s.Parameters().Add(&writebatch.Parameter{Value: 2})
	s.Parameters().Add(&writebatch.Parameter{Value: "two"})
	require.NoError(t, s.AddBatch())

	require.Equal(t, 2, s.Queued())
	assert.Equal(t, []any{1, "one"}, s.batch.QueuedQueries[0].Arguments)
	assert.Equal(t, []any{2, "two"}, s.batch.QueuedQueries[1].Arguments)
	assert.Equal(t, s.query, s.batch.QueuedQueries[1].SQL)
}

func TestStatement_NamedArguments(t *testing.T) {
	s := newDetached("UPDATE t SET a = @a WHERE id = @id")
	s.Parameters().Add(&writebatch.Parameter{Name: "@a", Value: "x"})
	s.Parameters().Add(&writebatch.Parameter{Name: "id", Value: 3})

	args := s.args(0)
	require.Len(t, args, 1)
	assert.Equal(t, pgx.NamedArgs{"a": "x", "id": 3}, args[0])
}

func TestStatement_ValidityRequiresPrepare(t *testing.T) {
	s := newDetached("INSERT INTO t VALUES ($1)", 1)
	_, err := s.ValidForBatching(context.Background())
	assert.ErrorIs(t, err, errNotPrepared)

	assert.ErrorIs(t, s.Prepare(context.Background()), errNotAttached)
}

func TestStatement_ConnectionHandle(t *testing.T) {
	s := newDetached("DELETE FROM t")
	assert.Nil(t, s.Connection())

	c := &Conn{name: "pgx-1"}
	s.SetConnection(c)
	assert.Equal(t, writebatch.Connection(c), s.Connection())
}

// Integration tests need a PostgreSQL server, e.g.
// TQBATCH_PG_DSN=postgres://postgres@localhost/postgres
func testSession(t *testing.T) *Session {
	dsn := os.Getenv("TQBATCH_PG_DSN")
	if dsn == "" {
		t.Skip("TQBATCH_PG_DSN not set - skipping PostgreSQL integration test")
	}
	ctx := context.Background()
	s, err := Connect(ctx, dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })

	_, err = s.conn.conn.Exec(ctx, `CREATE TEMPORARY TABLE test_writes (
		id SERIAL PRIMARY KEY,
		data TEXT,
		value INTEGER
	)`)
	require.NoError(t, err)
	return s
}

func TestIntegration_NativeBatching(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	cfg := writebatch.DefaultConfig()
	cfg.BatchSize = 3
	e := writebatch.New(s, verify.New(true), cfg)

	require.NoError(t, s.Begin(ctx))
	for i := 0; i < 7; i++ {
		stmt := s.New("INSERT INTO test_writes (data, value) VALUES ($1, $2)", "batch", i)
		require.NoError(t, e.AddToBatch(ctx, stmt, 1))
	}
	require.NoError(t, e.Flush(ctx))
	require.NoError(t, s.Commit(ctx))

	stats := e.Stats()
	assert.Equal(t, 3, stats.Flushes)
	assert.Equal(t, int64(7), stats.RowsTotal)
	assert.True(t, e.SupportsBatching())

	var count int
	require.NoError(t, s.conn.conn.QueryRow(ctx, "SELECT COUNT(*) FROM test_writes WHERE data = 'batch'").Scan(&count))
	assert.Equal(t, 7, count)
}

func TestIntegration_ReturningIsNotBatched(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	cfg := writebatch.DefaultConfig()
	cfg.BatchSize = 2
	e := writebatch.New(s, verify.New(false), cfg)

	stmt := s.New("INSERT INTO test_writes (data) VALUES ($1) RETURNING id", "ret")
	require.NoError(t, e.AddToBatch(ctx, stmt, 1))
	assert.Equal(t, 1, e.Stats().Immediate)
	assert.True(t, e.SupportsBatching())

	for i := 0; i < 2; i++ {
		require.NoError(t, e.AddToBatch(ctx, s.New("INSERT INTO test_writes (data) VALUES ($1)", "after"), 1))
	}
	assert.Equal(t, 1, e.Stats().Flushes)
}

func TestIntegration_UpdateMismatch(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	_, err := s.conn.conn.Exec(ctx, "INSERT INTO test_writes (data, value) VALUES ('x', 1), ('x', 2)")
	require.NoError(t, err)

	cfg := writebatch.DefaultConfig()
	cfg.BatchSize = 3
	e := writebatch.New(s, verify.New(false), cfg)

	for _, v := range []int{1, 2, 99} {
		err = e.AddToBatch(ctx, s.New("UPDATE test_writes SET data = 'y' WHERE value = $1", v), 1)
	}
	var mismatch *verify.RowCountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, int64(3), mismatch.Expected)
	assert.Equal(t, int64(2), mismatch.Actual)
}
