package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mevdschee/tqbatch/writebatch"
)

// record is one line of replay input
type record struct {
	SQL      string `json:"sql"`
	Params   []any  `json:"params"`
	Expected *int64 `json:"expected"`
}

// expected returns the row count the record should affect, 1 when unset
func (r record) expected() int64 {
	if r.Expected == nil {
		return 1
	}
	return *r.Expected
}

// replay feeds every record from in through the executor inside a single
// transaction. The transaction is rolled back on any error.
func replay(ctx context.Context, t target, e *writebatch.Executor, in io.Reader, logger zerolog.Logger) (err error) {
	if err := t.begin(ctx); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := t.rollback(context.Background()); rbErr != nil {
				logger.Error().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var r record
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if r.SQL == "" {
			return fmt.Errorf("line %d: %w", line, errEmptySQL)
		}
		if err := e.AddToBatch(ctx, t.statement(r.SQL, r.Params), r.expected()); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if err := e.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := t.commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logger.Info().Int("lines", line).Msg("replay committed")
	return nil
}

var errEmptySQL = errors.New("record has no sql")
