// Package sqlstmt binds the batch executor to database/sql drivers.
//
// database/sql has no native batching API, so statements created here are
// plain by default and the executor runs them one at a time. A session opened
// with EmulateBatching hands out BatchStatements instead, which collect
// parameter sets and run them through a single prepared statement.
package sqlstmt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mevdschee/tqbatch/writebatch"
)

// Conn is the connection handle of a session
type Conn struct {
	name string
	conn *sql.Conn
}

// Name returns the handle's name
func (c *Conn) Name() string {
	return c.name
}

// Options configures a Session
type Options struct {
	EmulateBatching bool
	Logger          zerolog.Logger
}

// Session holds one connection borrowed from a *sql.DB and its active
// transaction.
type Session struct {
	db       *sql.DB
	conn     *Conn
	tx       *sql.Tx
	readers  []*sql.Rows
	batching bool
	seq      int
	log      zerolog.Logger
}

var _ writebatch.Session = (*Session)(nil)

// Open borrows a connection from db
func Open(ctx context.Context, db *sql.DB, opts Options) (*Session, error) {
	s := &Session{
		db:       db,
		batching: opts.EmulateBatching,
		log:      opts.Logger.With().Str("component", "sqlstmt").Logger(),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) connect(ctx context.Context) error {
	c, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	s.seq++
	s.conn = &Conn{name: fmt.Sprintf("conn-%d", s.seq), conn: c}
	return nil
}

// CurrentConnection returns the session's connection handle
func (s *Session) CurrentConnection() writebatch.Connection {
	return s.conn
}

// Enlist attaches stmt to the active transaction, or detaches it when no
// transaction is open.
func (s *Session) Enlist(ctx context.Context, stmt writebatch.Statement) error {
	b, ok := stmt.(interface{ base() *Statement })
	if !ok {
		return fmt.Errorf("%w: %T", writebatch.ErrNotEnlistable, stmt)
	}
	b.base().tx = s.tx
	return nil
}

// CloseReaders closes every result set opened through Query
func (s *Session) CloseReaders() error {
	var errs []error
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.readers = nil
	return errors.Join(errs...)
}

// Query runs a read on the session's connection or transaction. The rows
// stay tracked until CloseReaders.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if s.tx != nil {
		rows, err = s.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = s.conn.conn.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	s.readers = append(s.readers, rows)
	return rows, nil
}

// New creates a statement bound to this session's connection
func (s *Session) New(query string, args ...any) writebatch.Statement {
	st := Statement{
		query:  query,
		params: writebatch.NewParameterList(args...),
		conn:   s.conn,
	}
	if s.batching {
		return &BatchStatement{Statement: st}
	}
	return &st
}

// Begin starts a transaction on the session's connection
func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return errors.New("transaction already active")
	}
	tx, err := s.conn.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	s.tx = tx
	s.log.Debug().Str("conn", s.conn.name).Msg("transaction started")
	return nil
}

// Commit commits the active transaction
func (s *Session) Commit() error {
	if s.tx == nil {
		return errors.New("no active transaction")
	}
	if err := s.CloseReaders(); err != nil {
		return err
	}
	err := s.tx.Commit()
	s.tx = nil
	s.log.Debug().Str("conn", s.conn.name).Err(err).Msg("transaction committed")
	return err
}

// Rollback aborts the active transaction, if any
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	s.CloseReaders()
	err := s.tx.Rollback()
	s.tx = nil
	return err
}

// Reconnect rolls back any transaction and replaces the connection with a
// fresh one from the pool. Statements attached to the old connection must be
// attached again.
func (s *Session) Reconnect(ctx context.Context) error {
	s.Rollback()
	old := s.conn
	if err := s.connect(ctx); err != nil {
		return err
	}
	s.log.Info().Str("old", old.name).Str("new", s.conn.name).Msg("connection replaced")
	return old.conn.Close()
}

// Close releases the connection back to the pool
func (s *Session) Close() error {
	s.Rollback()
	return s.conn.conn.Close()
}
