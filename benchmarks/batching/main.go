package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/mevdschee/tqbatch/config"
	"github.com/mevdschee/tqbatch/pgxstmt"
	"github.com/mevdschee/tqbatch/sqlstmt"
	"github.com/mevdschee/tqbatch/verify"
	"github.com/mevdschee/tqbatch/writebatch"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

type BenchmarkResult struct {
	BatchSize       int
	Flushes         int
	ActualOpsPerSec float64
	AvgLatencyMs    float64
	TotalOps        int
}

// session is the part of a driver session the benchmark drives
type session interface {
	writebatch.Session
	statement(query string, args ...any) writebatch.Statement
	begin(ctx context.Context) error
	commit(ctx context.Context) error
	exec(ctx context.Context, query string) error
	close(ctx context.Context)
}

type sqlSession struct {
	*sqlstmt.Session
	db *sql.DB
}

func (s sqlSession) statement(query string, args ...any) writebatch.Statement {
	return s.New(query, args...)
}

func (s sqlSession) begin(ctx context.Context) error { return s.Begin(ctx) }
func (s sqlSession) commit(context.Context) error    { return s.Commit() }

func (s sqlSession) exec(ctx context.Context, query string) error {
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s sqlSession) close(context.Context) {
	s.Close()
	s.db.Close()
}

type pgxSession struct {
	*pgxstmt.Session
}

func (s pgxSession) statement(query string, args ...any) writebatch.Statement {
	return s.New(query, args...)
}

func (s pgxSession) begin(ctx context.Context) error  { return s.Begin(ctx) }
func (s pgxSession) commit(ctx context.Context) error { return s.Commit(ctx) }
func (s pgxSession) close(ctx context.Context)        { s.Close(ctx) }

func (s pgxSession) exec(ctx context.Context, query string) error {
	rows, err := s.Query(ctx, query)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func openSession(ctx context.Context, cfg config.DatabaseConfig) (session, error) {
	if cfg.Driver == "pgx" {
		s, err := pgxstmt.Connect(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return pgxSession{s}, nil
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	s, err := sqlstmt.Open(ctx, db, sqlstmt.Options{EmulateBatching: cfg.EmulateBatching, Logger: logger})
	if err != nil {
		db.Close()
		return nil, err
	}
	return sqlSession{Session: s, db: db}, nil
}

func setupTable(ctx context.Context, s session, driver string) (string, error) {
	s.exec(ctx, "DROP TABLE IF EXISTS test")
	switch driver {
	case "postgres", "pgx":
		return "INSERT INTO test (value, created_at) VALUES ($1, $2)",
			s.exec(ctx, "CREATE TABLE test (id SERIAL PRIMARY KEY, value INTEGER, created_at BIGINT)")
	case "mysql":
		return "INSERT INTO test (value, created_at) VALUES (?, ?)",
			s.exec(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY AUTO_INCREMENT, value INTEGER, created_at BIGINT)")
	default:
		return "INSERT INTO test (value, created_at) VALUES (?, ?)",
			s.exec(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY AUTOINCREMENT, value INTEGER, created_at BIGINT)")
	}
}

func runBenchmark(ctx context.Context, cfg config.DatabaseConfig, batchSize, ops int) (BenchmarkResult, error) {
	logger.Info().Str("driver", cfg.Driver).Int("batch_size", batchSize).Int("ops", ops).Msg("running")

	s, err := openSession(ctx, cfg)
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer s.close(ctx)

	insertQuery, err := setupTable(ctx, s, cfg.Driver)
	if err != nil {
		return BenchmarkResult{}, err
	}

	e := writebatch.New(s, verify.New(false), writebatch.Config{BatchSize: batchSize})
	defer e.Close()

	if err := s.begin(ctx); err != nil {
		return BenchmarkResult{}, err
	}

	var totalLatency time.Duration
	startTime := time.Now()
	for i := 0; i < ops; i++ {
		reqStart := time.Now()
		stmt := s.statement(insertQuery, i, time.Now().Unix())
		if err := e.AddToBatch(ctx, stmt, 1); err != nil {
			return BenchmarkResult{}, err
		}
		totalLatency += time.Since(reqStart)
	}
	if err := e.Flush(ctx); err != nil {
		return BenchmarkResult{}, err
	}
	if err := s.commit(ctx); err != nil {
		return BenchmarkResult{}, err
	}
	elapsed := time.Since(startTime)

	return BenchmarkResult{
		BatchSize:       batchSize,
		Flushes:         e.Stats().Flushes,
		ActualOpsPerSec: float64(ops) / elapsed.Seconds(),
		AvgLatencyMs:    float64(totalLatency.Microseconds()) / float64(ops) / 1e3,
		TotalOps:        ops,
	}, nil
}

func generateBarChart(results []BenchmarkResult, driver string) error {
	filename := fmt.Sprintf("bars_%s.dat", driver)
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "# BatchSize Throughput(k) Latency(ms)\n")
	for _, r := range results {
		fmt.Fprintf(f, "size:%d %.1f %.3f\n", r.BatchSize, r.ActualOpsPerSec/1000, r.AvgLatencyMs)
	}
	logger.Info().Str("file", filename).Msg("generated")
	return nil
}

func generateGnuplotScript(driver string) error {
	script := fmt.Sprintf(`#!/usr/bin/gnuplot
set terminal pngcairo size 800,600 enhanced font 'Arial,12'
set output 'batching_%[1]s.png'

set title "Write Batching Throughput (%[1]s)"
set xlabel "Batch Size"
set ylabel "Throughput (k ops/sec)" textcolor rgb "blue"
set y2label "Latency (ms)" textcolor rgb "red"
set yrange [0:*]
set y2range [0:*]
set ytics nomirror
set y2tics
set style data histograms
set style histogram clustered gap 1
set style fill solid 0.5 border -1
set boxwidth 0.8
set grid y

plot 'bars_%[1]s.dat' using 2:xtic(1) title 'Throughput' axes x1y1 linecolor rgb "blue", \
     'bars_%[1]s.dat' using 3 title 'Latency' axes x1y2 linecolor rgb "red"
`, driver)
	filename := fmt.Sprintf("plot_%s.gnu", driver)
	if err := os.WriteFile(filename, []byte(script), 0644); err != nil {
		return err
	}
	logger.Info().Str("file", filename).Msg("generated")
	return nil
}

func parseSizes(s string) ([]int, error) {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid batch size %q: %w", part, err)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	sizesFlag := flag.String("sizes", "1,10,100,1000", "Comma separated batch sizes")
	ops := flag.Int("ops", 10000, "Inserts per run")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatal().Err(err).Msg("failed to load config")
		}
	}
	sizes, err := parseSizes(*sizesFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad -sizes")
	}

	ctx := context.Background()
	var results []BenchmarkResult
	for _, size := range sizes {
		result, err := runBenchmark(ctx, cfg.Database, size, *ops)
		if err != nil {
			logger.Fatal().Err(err).Int("batch_size", size).Msg("benchmark failed")
		}
		results = append(results, result)
		speedup := result.ActualOpsPerSec / results[0].ActualOpsPerSec
		logger.Info().
			Int("batch_size", size).
			Int("flushes", result.Flushes).
			Float64("ops_per_sec", result.ActualOpsPerSec).
			Float64("avg_latency_ms", result.AvgLatencyMs).
			Msgf("%.1fx speedup", speedup)
	}

	if err := generateBarChart(results, cfg.Database.Driver); err != nil {
		logger.Fatal().Err(err).Msg("write data file")
	}
	if err := generateGnuplotScript(cfg.Database.Driver); err != nil {
		logger.Fatal().Err(err).Msg("write plot script")
	}
	logger.Info().Msgf("to generate graph, run: gnuplot plot_%s.gnu", cfg.Database.Driver)
}
