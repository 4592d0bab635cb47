package writebatch

import (
	"context"
	"fmt"

	"github.com/mevdschee/tqbatch/metrics"
)

// probe reports whether stmt can open a native batch. A statement type
// without batching support disables probing for the rest of the executor's
// life; a statement that is merely ineligible does not.
func (e *Executor) probe(ctx context.Context, stmt Statement) (NativeBatchingStatement, bool, error) {
	if !e.supportsBatching {
		return nil, false, nil
	}
	e.stats.Probes++

	native, ok := stmt.(NativeBatchingStatement)
	if !ok {
		e.supportsBatching = false
		metrics.Probes.WithLabelValues("unsupported").Inc()
		e.log.Info().
			Str("statement_type", fmt.Sprintf("%T", stmt)).
			Msg("driver has no native batching, executing writes immediately")
		return nil, false, nil
	}

	// Drivers answer the validity check reliably only for a prepared
	// statement on a live connection.
	if err := e.attach(ctx, stmt); err != nil {
		return nil, false, err
	}
	if err := stmt.Prepare(ctx); err != nil {
		return nil, false, err
	}

	valid, err := native.ValidForBatching(ctx)
	if err != nil {
		return nil, false, err
	}
	if !valid {
		metrics.Probes.WithLabelValues("ineligible").Inc()
		e.log.Debug().
			Str("sql", stmt.SQL()).
			Msg("statement not valid for batching, executing immediately")
		return nil, false, nil
	}

	metrics.Probes.WithLabelValues("supported").Inc()
	return native, true, nil
}

// attach binds stmt to the session's current connection and enlists it in
// the active transaction.
func (e *Executor) attach(ctx context.Context, stmt Statement) error {
	if conn := e.session.CurrentConnection(); stmt.Connection() != conn {
		stmt.SetConnection(conn)
	}
	return e.session.Enlist(ctx, stmt)
}

// SupportsBatching reports whether native batching is still considered
// available for this executor's driver.
func (e *Executor) SupportsBatching() bool {
	return e.supportsBatching
}
