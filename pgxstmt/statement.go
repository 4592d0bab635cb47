package pgxstmt

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mevdschee/tqbatch/writebatch"
)

var (
	errNotAttached = errors.New("statement is not attached to a connection")
	errNotPrepared = errors.New("statement must be prepared before checking batch validity")
)

// querier is satisfied by both *pgx.Conn and pgx.Tx
type querier interface {
	Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Statement is a pgx write statement with native batching
type Statement struct {
	query  string
	params *writebatch.ParameterList
	conn   *Conn
	tx     pgx.Tx

	desc       *pgconn.StatementDescription
	preparedOn *Conn
	preparedTx pgx.Tx

	batch     *pgx.Batch
	committed int
}

var _ writebatch.NativeBatchingStatement = (*Statement)(nil)

// SQL returns the statement text
func (s *Statement) SQL() string {
	return s.query
}

// Parameters returns the statement's parameter list
func (s *Statement) Parameters() *writebatch.ParameterList {
	return s.params
}

// Connection returns the attached connection, or nil
func (s *Statement) Connection() writebatch.Connection {
	if s.conn == nil {
		return nil
	}
	return s.conn
}

// SetConnection attaches the statement to conn
func (s *Statement) SetConnection(conn writebatch.Connection) {
	c, _ := conn.(*Conn)
	s.conn = c
}

func (s *Statement) querier() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.conn.conn
}

// Prepare creates a server-side prepared statement named after the SQL
// text, which pgx reuses for Exec and batched queries of the same text.
func (s *Statement) Prepare(ctx context.Context) error {
	if s.conn == nil {
		return errNotAttached
	}
	if s.desc != nil && s.preparedOn == s.conn && s.preparedTx == s.tx {
		return nil
	}
	desc, err := s.querier().Prepare(ctx, s.query, s.query)
	if err != nil {
		return err
	}
	s.desc = desc
	s.preparedOn = s.conn
	s.preparedTx = s.tx
	return nil
}

// ValidForBatching reports false for statements that return rows, such as
// writes with a RETURNING clause. Their results cannot be folded into an
// affected-row count.
func (s *Statement) ValidForBatching(ctx context.Context) (bool, error) {
	if s.desc == nil {
		return false, errNotPrepared
	}
	return len(s.desc.Fields) == 0, nil
}

// AddBatch queues the parameters added since the previous call
func (s *Statement) AddBatch() error {
	if s.batch == nil {
		s.batch = &pgx.Batch{}
	}
	s.batch.Queue(s.query, s.args(s.committed)...)
	s.committed = s.params.Len()
	return nil
}

// Queued returns the number of parameter sets waiting for execution
func (s *Statement) Queued() int {
	if s.batch == nil {
		return 0
	}
	return s.batch.Len()
}

// ExecNonQuery sends the queued batch in one round-trip and returns the
// summed affected rows. With nothing queued it runs the statement once.
func (s *Statement) ExecNonQuery(ctx context.Context) (int64, error) {
	if err := s.Prepare(ctx); err != nil {
		return 0, err
	}
	if s.Queued() == 0 {
		tag, err := s.querier().Exec(ctx, s.query, s.args(0)...)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}

	batch := s.batch
	s.batch = nil

	br := s.querier().SendBatch(ctx, batch)
	var total int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, err
		}
		total += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, err
	}
	return total, nil
}

// args converts parameters [from, Len()) to pgx arguments. Named
// parameters are passed as a single pgx.NamedArgs.
func (s *Statement) args(from int) []any {
	n := s.params.Len()
	if from >= n {
		return nil
	}
	var named pgx.NamedArgs
	out := make([]any, 0, n-from)
	for i := from; i < n; i++ {
		p := s.params.At(i)
		if p.Name != "" {
			if named == nil {
				named = pgx.NamedArgs{}
			}
			named[strings.TrimLeft(p.Name, "@:$")] = p.Value
			continue
		}
		out = append(out, p.Value)
	}
	if named != nil {
		return []any{named}
	}
	return out
}
