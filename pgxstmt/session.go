// Package pgxstmt binds the batch executor to PostgreSQL through pgx. Its
// statements batch natively: queued parameter sets are sent with
// SendBatch in one round-trip.
package pgxstmt

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/mevdschee/tqbatch/writebatch"
)

// Conn is the connection handle of a session
type Conn struct {
	name string
	conn *pgx.Conn
}

// Name returns the handle's name
func (c *Conn) Name() string {
	return c.name
}

// Session holds one pgx connection and its active transaction
type Session struct {
	connString string
	conn       *Conn
	tx         pgx.Tx
	readers    []pgx.Rows
	seq        int
	log        zerolog.Logger
}

var _ writebatch.Session = (*Session)(nil)

// Connect opens a connection to connString
func Connect(ctx context.Context, connString string, logger zerolog.Logger) (*Session, error) {
	s := &Session{
		connString: connString,
		log:        logger.With().Str("component", "pgxstmt").Logger(),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) connect(ctx context.Context) error {
	c, err := pgx.Connect(ctx, s.connString)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	s.seq++
	s.conn = &Conn{name: fmt.Sprintf("pgx-%d", s.seq), conn: c}
	return nil
}

// CurrentConnection returns the session's connection handle
func (s *Session) CurrentConnection() writebatch.Connection {
	return s.conn
}

// Enlist attaches stmt to the active transaction, or detaches it when no
// transaction is open.
func (s *Session) Enlist(ctx context.Context, stmt writebatch.Statement) error {
	st, ok := stmt.(*Statement)
	if !ok {
		return fmt.Errorf("%w: %T", writebatch.ErrNotEnlistable, stmt)
	}
	st.tx = s.tx
	return nil
}

// CloseReaders closes every result set opened through Query
func (s *Session) CloseReaders() error {
	var errs []error
	for _, r := range s.readers {
		r.Close()
		if err := r.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	s.readers = nil
	return errors.Join(errs...)
}

// Query runs a read on the session's connection or transaction. The rows
// stay tracked until CloseReaders.
func (s *Session) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if s.tx != nil {
		rows, err = s.tx.Query(ctx, query, args...)
	} else {
		rows, err = s.conn.conn.Query(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	s.readers = append(s.readers, rows)
	return rows, nil
}

// New creates a statement bound to this session's connection
func (s *Session) New(query string, args ...any) *Statement {
	return &Statement{
		query:  query,
		params: writebatch.NewParameterList(args...),
		conn:   s.conn,
	}
}

// Begin starts a transaction
func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return errors.New("transaction already active")
	}
	tx, err := s.conn.conn.Begin(ctx)
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

// Commit commits the active transaction
func (s *Session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return errors.New("no active transaction")
	}
	if err := s.CloseReaders(); err != nil {
		return err
	}
	err := s.tx.Commit(ctx)
	s.tx = nil
	return err
}

// Rollback aborts the active transaction, if any
func (s *Session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	s.CloseReaders()
	err := s.tx.Rollback(ctx)
	s.tx = nil
	return err
}

// Reconnect rolls back any transaction and opens a new connection.
// Statements attached to the old connection must be attached again.
func (s *Session) Reconnect(ctx context.Context) error {
	s.Rollback(ctx)
	old := s.conn
	if err := s.connect(ctx); err != nil {
		return err
	}
	s.log.Info().Str("old", old.name).Str("new", s.conn.name).Msg("connection replaced")
	return old.conn.Close(ctx)
}

// Close closes the connection
func (s *Session) Close(ctx context.Context) error {
	s.Rollback(ctx)
	return s.conn.conn.Close(ctx)
}
