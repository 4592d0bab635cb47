// Package sqllog renders write statements and their parameters for the SQL
// log.
package sqllog

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mevdschee/tqbatch/parser"
)

// Arg is one parameter of a rendered statement
type Arg struct {
	Name  string
	Value any
}

// Logger writes rendered statements at debug level
type Logger struct {
	log zerolog.Logger
}

// New creates a SQL logger on top of l
func New(l zerolog.Logger) *Logger {
	return &Logger{log: l.With().Str("component", "sql").Logger()}
}

// Enabled reports whether rendered statements would be written. A nil
// Logger is disabled.
func (l *Logger) Enabled() bool {
	return l != nil && l.log.GetLevel() <= zerolog.DebugLevel
}

// Statement logs a statement executed on its own
func (l *Logger) Statement(rendered string) {
	if !l.Enabled() {
		return
	}
	l.log.Debug().Msg(rendered)
}

// Batch logs the statements of one batch as a single entry
func (l *Logger) Batch(id string, statements []string) {
	if !l.Enabled() {
		return
	}
	var b strings.Builder
	for i, s := range statements {
		fmt.Fprintf(&b, "\nCommand %d: %s", i, s)
	}
	l.log.Debug().Str("batch", id).Int("statements", len(statements)).Msg("Batch commands:" + b.String())
}

// Format renders sql followed by its parameters, e.g.
//
//	INSERT INTO t (a, b) VALUES (?, ?); p0 = 'x' [Type: string], p1 = 5 [Type: int]
//
// Hint comments are stripped from the SQL. Format never panics: values whose
// rendering fails are replaced by a placeholder.
func Format(sql string, args []Arg) string {
	var b strings.Builder
	b.WriteString(parser.Parse(sql).Query)
	if len(args) == 0 {
		return b.String()
	}
	b.WriteString(";")
	for i, a := range args {
		if i > 0 {
			b.WriteString(",")
		}
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("p%d", i)
		}
		fmt.Fprintf(&b, " %s = %s [Type: %T]", name, formatValue(a.Value), a.Value)
	}
	return b.String()
}

func formatValue(v any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = "<unprintable>"
		}
	}()

	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case []byte:
		if len(val) > 32 {
			return fmt.Sprintf("0x%X...", val[:32])
		}
		return fmt.Sprintf("0x%X", val)
	case time.Time:
		return "'" + val.Format(time.RFC3339Nano) + "'"
	case fmt.Stringer:
		return "'" + val.String() + "'"
	default:
		return fmt.Sprint(val)
	}
}
