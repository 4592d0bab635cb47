package writebatch

import (
	"context"
	"time"

	"github.com/mevdschee/tqbatch/metrics"
)

// Flush executes the open batch as one native round-trip and verifies the
// aggregate affected-row count. It is a no-op when no batch is open. The
// batch is reset whether or not execution and verification succeed.
func (e *Executor) Flush(ctx context.Context) error {
	if e.closed {
		return ErrExecutorClosed
	}
	if !e.batch.open() {
		return nil
	}

	batch := e.batch
	defer e.batch.reset()

	if len(batch.log) > 0 {
		e.sqlLog.Batch(batch.id, batch.log)
	}

	// Batched writes cannot run while a reader is open on the connection
	if err := e.session.CloseReaders(); err != nil {
		return err
	}
	// The session may have reconnected or restarted its transaction since
	// the batch opened
	if err := e.attach(ctx, batch.root); err != nil {
		return err
	}
	if err := batch.root.Prepare(ctx); err != nil {
		return err
	}

	start := time.Now()
	rows, err := batch.root.ExecNonQuery(ctx)
	elapsed := time.Since(start)

	e.stats.Flushes++
	metrics.Flushes.Inc()
	metrics.BatchSize.Observe(float64(batch.count))
	metrics.ExecLatency.WithLabelValues("batched").Observe(elapsed.Seconds())

	if err != nil {
		e.log.Debug().Err(err).Str("batch", batch.id).Msg("batch execution failed")
		return err
	}

	e.log.Debug().
		Str("batch", batch.id).
		Int("statements", batch.count).
		Int64("expected", batch.expected).
		Int64("actual", rows).
		Dur("elapsed", elapsed).
		Msg("flushed batch")

	if rows > 0 {
		e.stats.RowsTotal += rows
	}
	if err := e.verifier.VerifyBatched(batch.expected, rows); err != nil {
		e.stats.Mismatches++
		metrics.RowCountMismatches.WithLabelValues("batched").Inc()
		return err
	}
	return nil
}
