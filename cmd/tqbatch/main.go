package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mevdschee/tqbatch/config"
	"github.com/mevdschee/tqbatch/metrics"
	"github.com/mevdschee/tqbatch/sqllog"
	"github.com/mevdschee/tqbatch/verify"
	"github.com/mevdschee/tqbatch/writebatch"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults when empty)")
	inputPath := flag.String("input", "-", "JSON lines input file, - for stdin")
	metricsAddr := flag.String("metrics", "", "Metrics endpoint address (overrides config)")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
	}
	if *metricsAddr != "" {
		cfg.Metrics.Listen = *metricsAddr
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	// Initialize metrics
	metrics.Init()

	// Start metrics HTTP server with pprof
	if cfg.Metrics.Listen != "" {
		go func() {
			http.Handle("/metrics", metrics.Handler())
			logger.Info().Str("addr", cfg.Metrics.Listen).Msg("metrics and pprof endpoints listening")
			if err := http.ListenAndServe(cfg.Metrics.Listen, nil); err != nil {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *inputPath, logger); err != nil {
		stop()
		logger.Fatal().Err(err).Msg("replay failed")
	}
}

func run(ctx context.Context, cfg *config.Config, inputPath string, logger zerolog.Logger) error {
	var in io.Reader = os.Stdin
	if inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	t, err := openTarget(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer t.close(context.Background())

	e := writebatch.New(t, verify.New(cfg.Batch.ExactCounts),
		writebatch.Config{BatchSize: cfg.Batch.Size, VerboseSQL: cfg.Log.VerboseSQL},
		writebatch.WithLogger(logger),
		writebatch.WithSQLLog(sqllog.New(logger)),
	)
	defer e.Close()

	logger.Info().
		Str("driver", cfg.Database.Driver).
		Int("batch_size", e.BatchSize()).
		Bool("exact_counts", cfg.Batch.ExactCounts).
		Msg("replay started")

	err = replay(ctx, t, e, in, logger)

	stats := e.Stats()
	logger.Info().
		Int("probes", stats.Probes).
		Int("flushes", stats.Flushes).
		Int("batched", stats.Batched).
		Int("immediate", stats.Immediate).
		Int64("rows", stats.RowsTotal).
		Int("mismatches", stats.Mismatches).
		Bool("native_batching", e.SupportsBatching()).
		Msg("executor stats")
	return err
}
