package writebatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mevdschee/tqbatch/metrics"
	"github.com/mevdschee/tqbatch/parser"
	"github.com/mevdschee/tqbatch/sqllog"
)

// Executor accumulates write statements into native driver batches, or
// executes them one at a time when the driver or statement cannot batch.
//
// An Executor is bound to one session and is not safe for concurrent use.
type Executor struct {
	session  Session
	verifier Verifier
	config   Config

	batchSize        int
	supportsBatching bool
	batch            pendingBatch
	stats            Stats
	closed           bool

	log    zerolog.Logger
	sqlLog *sqllog.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger used for executor events
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) {
		e.log = l
	}
}

// WithSQLLog sets the sink that receives rendered statements when
// Config.VerboseSQL is on.
func WithSQLLog(l *sqllog.Logger) Option {
	return func(e *Executor) {
		e.sqlLog = l
	}
}

// New creates a new batch executor
func New(session Session, verifier Verifier, config Config, opts ...Option) *Executor {
	e := &Executor{
		session:          session,
		verifier:         verifier,
		config:           config,
		supportsBatching: true,
		log:              zerolog.Nop(),
	}
	e.SetBatchSize(config.BatchSize)
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "writebatch").Logger()
	return e
}

// AddToBatch submits a write statement expected to affect expectedRows rows.
// The statement is merged into the open batch, starts a new one, or runs
// immediately when batching is disabled or unavailable.
func (e *Executor) AddToBatch(ctx context.Context, stmt Statement, expectedRows int64) error {
	if e.closed {
		return ErrExecutorClosed
	}

	if e.batchSize == 1 {
		// The size may have been lowered while a batch was open
		if err := e.Flush(ctx); err != nil {
			return err
		}
		return e.executeImmediate(ctx, stmt, expectedRows)
	}

	// A batch only ever holds one SQL text
	if e.batch.open() && e.batch.root.SQL() != stmt.SQL() {
		if err := e.Flush(ctx); err != nil {
			return err
		}
	}

	var native NativeBatchingStatement
	if !e.batch.open() {
		nb, ok, err := e.probe(ctx, stmt)
		if err != nil {
			return err
		}
		if !ok {
			return e.executeImmediate(ctx, stmt, expectedRows)
		}
		native = nb
	}

	rendered := e.render(stmt)
	e.batch.expected += expectedRows

	if !e.batch.open() {
		if err := e.attach(ctx, native); err != nil {
			e.batch.reset()
			return err
		}
		e.batch.id = uuid.NewString()
		e.batch.root = native
		if err := native.AddBatch(); err != nil {
			e.batch.reset()
			return err
		}
		e.log.Debug().Str("batch", e.batch.id).Str("sql", native.SQL()).Msg("opened batch")
	} else {
		transferParameters(e.batch.root.Parameters(), stmt.Parameters())
		if err := e.batch.root.AddBatch(); err != nil {
			e.batch.reset()
			return err
		}
	}

	e.batch.count++
	if rendered != "" {
		e.batch.log = append(e.batch.log, rendered)
	}
	e.stats.Batched++
	metrics.StatementsTotal.WithLabelValues("batched", queryType(stmt)).Inc()

	if e.batch.count >= e.batchSize {
		return e.Flush(ctx)
	}
	return nil
}

// executeImmediate runs stmt on its own and verifies its row count
func (e *Executor) executeImmediate(ctx context.Context, stmt Statement, expectedRows int64) error {
	if err := e.attach(ctx, stmt); err != nil {
		return err
	}
	if err := e.session.CloseReaders(); err != nil {
		return err
	}
	if err := stmt.Prepare(ctx); err != nil {
		return err
	}
	if rendered := e.render(stmt); rendered != "" {
		e.sqlLog.Statement(rendered)
	}

	start := time.Now()
	rows, err := stmt.ExecNonQuery(ctx)
	e.stats.Immediate++
	metrics.StatementsTotal.WithLabelValues("immediate", queryType(stmt)).Inc()
	metrics.ExecLatency.WithLabelValues("immediate").Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	if rows > 0 {
		e.stats.RowsTotal += rows
	}
	if err := e.verifier.VerifyImmediate(expectedRows, rows, stmt.SQL()); err != nil {
		e.stats.Mismatches++
		metrics.RowCountMismatches.WithLabelValues("immediate").Inc()
		return err
	}
	return nil
}

// render returns the SQL log line for stmt, or "" when verbose SQL logging
// is off.
func (e *Executor) render(stmt Statement) string {
	if !e.config.VerboseSQL || !e.sqlLog.Enabled() {
		return ""
	}
	params := stmt.Parameters()
	args := make([]sqllog.Arg, params.Len())
	for i := range args {
		p := params.At(i)
		args[i] = sqllog.Arg{Name: p.Name, Value: p.Value}
	}
	return sqllog.Format(stmt.SQL(), args)
}

func queryType(stmt Statement) string {
	return parser.Parse(stmt.SQL()).Type.String()
}

// BatchSize returns the number of statements that triggers a flush
func (e *Executor) BatchSize() int {
	return e.batchSize
}

// SetBatchSize changes the flush threshold. Values below 1 are treated as 1,
// which disables batching.
func (e *Executor) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	e.batchSize = n
}

// HasOpenBatch reports whether statements are waiting to be flushed
func (e *Executor) HasOpenBatch() bool {
	return e.batch.open()
}

// PendingStatements returns the number of statements in the open batch
func (e *Executor) PendingStatements() int {
	return e.batch.count
}

// ExpectedRows returns the affected-row total expected from the open batch
func (e *Executor) ExpectedRows() int64 {
	return e.batch.expected
}

// Stats returns a snapshot of executor activity
func (e *Executor) Stats() Stats {
	return e.stats
}

// Close discards any open batch without executing it. The statements
// themselves are owned by the caller.
func (e *Executor) Close() error {
	if e.closed {
		return nil
	}
	if e.batch.open() {
		e.log.Warn().
			Str("batch", e.batch.id).
			Int("statements", e.batch.count).
			Msg("discarding unflushed batch")
	}
	e.batch.reset()
	e.closed = true
	return nil
}
