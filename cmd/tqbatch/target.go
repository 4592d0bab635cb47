package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mevdschee/tqbatch/config"
	"github.com/mevdschee/tqbatch/pgxstmt"
	"github.com/mevdschee/tqbatch/sqlstmt"
	"github.com/mevdschee/tqbatch/writebatch"
)

// target is a driver session the replay can run a transaction on
type target interface {
	writebatch.Session
	statement(query string, args []any) writebatch.Statement
	begin(ctx context.Context) error
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
	close(ctx context.Context) error
}

// openTarget connects to the configured database
func openTarget(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (target, error) {
	switch cfg.Driver {
	case "pgx":
		s, err := pgxstmt.Connect(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return pgxTarget{s}, nil
	case "sqlite3", "sqlite", "mysql", "postgres", "sqlserver":
		db, err := sql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		s, err := sqlstmt.Open(ctx, db, sqlstmt.Options{EmulateBatching: cfg.EmulateBatching, Logger: logger})
		if err != nil {
			db.Close()
			return nil, err
		}
		return sqlTarget{Session: s, db: db}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

type sqlTarget struct {
	*sqlstmt.Session
	db *sql.DB
}

func (t sqlTarget) statement(query string, args []any) writebatch.Statement {
	return t.New(query, args...)
}

func (t sqlTarget) begin(ctx context.Context) error { return t.Begin(ctx) }
func (t sqlTarget) commit(context.Context) error    { return t.Commit() }
func (t sqlTarget) rollback(context.Context) error  { return t.Rollback() }

func (t sqlTarget) close(context.Context) error {
	t.Close()
	return t.db.Close()
}

type pgxTarget struct {
	*pgxstmt.Session
}

func (t pgxTarget) statement(query string, args []any) writebatch.Statement {
	return t.New(query, args...)
}

func (t pgxTarget) begin(ctx context.Context) error    { return t.Begin(ctx) }
func (t pgxTarget) commit(ctx context.Context) error   { return t.Commit(ctx) }
func (t pgxTarget) rollback(ctx context.Context) error { return t.Rollback(ctx) }
func (t pgxTarget) close(ctx context.Context) error    { return t.Close(ctx) }
