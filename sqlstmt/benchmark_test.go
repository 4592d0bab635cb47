package sqlstmt

import (
	"context"
	"fmt"
	"testing"

	"github.com/mevdschee/tqbatch/verify"
	"github.com/mevdschee/tqbatch/writebatch"
)

// Benchmark comparing batched vs immediate writes
func BenchmarkWriteBatching(b *testing.B) {
	b.Run("Immediate", func(b *testing.B) {
		benchmarkInserts(b, 1)
	})

	b.Run("Batched_10", func(b *testing.B) {
		benchmarkInserts(b, 10)
	})

	b.Run("Batched_100", func(b *testing.B) {
		benchmarkInserts(b, 100)
	})

	b.Run("Batched_1000", func(b *testing.B) {
		benchmarkInserts(b, 1000)
	})
}

func benchmarkInserts(b *testing.B, batchSize int) {
	db := setupTestDB(b)
	sess := openSession(b, db, true)
	ctx := context.Background()

	cfg := writebatch.DefaultConfig()
	cfg.BatchSize = batchSize
	e := writebatch.New(sess, verify.New(false), cfg)

	if err := sess.Begin(ctx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stmt := sess.New("INSERT INTO test_writes (data, value) VALUES (?, ?)", fmt.Sprintf("test%d", i), i)
		if err := e.AddToBatch(ctx, stmt, 1); err != nil {
			b.Fatal(err)
		}
	}
	if err := e.Flush(ctx); err != nil {
		b.Fatal(err)
	}
	b.StopTimer()

	if err := sess.Commit(); err != nil {
		b.Fatal(err)
	}
}
