package sqlstmt

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mevdschee/tqbatch/parser"
	"github.com/mevdschee/tqbatch/writebatch"
)

var (
	errNotAttached = errors.New("statement is not attached to a connection")
	errNotPrepared = errors.New("statement must be prepared before checking batch validity")
)

// Statement is a plain database/sql write statement
type Statement struct {
	query  string
	params *writebatch.ParameterList
	conn   *Conn
	tx     *sql.Tx

	stmt       *sql.Stmt
	preparedOn *Conn
	preparedTx *sql.Tx
}

var _ writebatch.Statement = (*Statement)(nil)

func (s *Statement) base() *Statement {
	return s
}

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

// Prepare compiles the statement on its connection, or on its transaction
// when enlisted. It re-prepares after the connection or transaction changed.
func (s *Statement) Prepare(ctx context.Context) error {
	if s.conn == nil {
		return errNotAttached
	}
	if s.stmt != nil && s.preparedOn == s.conn && s.preparedTx == s.tx {
		return nil
	}
	s.Close()

	var (
		stmt *sql.Stmt
		err  error
	)
	if s.tx != nil {
		stmt, err = s.tx.PrepareContext(ctx, s.query)
	} else {
		stmt, err = s.conn.conn.PrepareContext(ctx, s.query)
	}
	if err != nil {
		return err
	}
	s.stmt = stmt
	s.preparedOn = s.conn
	s.preparedTx = s.tx
	return nil
}

// ExecNonQuery executes the statement with all of its parameters
func (s *Statement) ExecNonQuery(ctx context.Context) (int64, error) {
	return s.exec(ctx, s.args(0))
}

func (s *Statement) exec(ctx context.Context, args []any) (int64, error) {
	if err := s.Prepare(ctx); err != nil {
		return 0, err
	}
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Driver cannot report the count
		return -1, nil
	}
	return n, nil
}

// args converts parameters [from, Len()) to database/sql arguments
func (s *Statement) args(from int) []any {
	n := s.params.Len()
	if from >= n {
		return nil
	}
	out := make([]any, 0, n-from)
	for i := from; i < n; i++ {
		p := s.params.At(i)
		if p.Name != "" {
			out = append(out, sql.Named(strings.TrimLeft(p.Name, "@:$"), p.Value))
			continue
		}
		out = append(out, p.Value)
	}
	return out
}

// Close releases the prepared statement
func (s *Statement) Close() error {
	if s.stmt == nil {
		return nil
	}
	err := s.stmt.Close()
	s.stmt = nil
	s.preparedOn = nil
	s.preparedTx = nil
	return err
}

// BatchStatement collects parameter sets and executes them through one
// prepared statement.
type BatchStatement struct {
	Statement
	sets      [][]any
	committed int
}

var _ writebatch.NativeBatchingStatement = (*BatchStatement)(nil)

// AddBatch queues the parameters added since the previous call
func (s *BatchStatement) AddBatch() error {
	s.sets = append(s.sets, s.args(s.committed))
	s.committed = s.params.Len()
	return nil
}

// ValidForBatching reports false for non-writes and for statements with an
// output clause, whose rows would be discarded.
func (s *BatchStatement) ValidForBatching(ctx context.Context) (bool, error) {
	if s.stmt == nil {
		return false, errNotPrepared
	}
	return parser.Parse(s.query).IsBatchable(), nil
}

// ExecNonQuery runs every queued parameter set and returns the summed
// affected rows, or -1 when the driver could not report a count. With
// nothing queued it runs the statement once.
func (s *BatchStatement) ExecNonQuery(ctx context.Context) (int64, error) {
	if len(s.sets) == 0 {
		return s.Statement.ExecNonQuery(ctx)
	}
	sets := s.sets
	s.sets = nil

	var total int64
	unknown := false
	for _, args := range sets {
		n, err := s.exec(ctx, args)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			unknown = true
			continue
		}
		total += n
	}
	if unknown {
		return -1, nil
	}
	return total, nil
}

// Queued returns the number of parameter sets waiting for execution
func (s *BatchStatement) Queued() int {
	return len(s.sets)
}
