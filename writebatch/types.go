package writebatch

import "context"

// Connection is an opaque handle to a database connection. Two handles refer
// to the same connection when they compare equal.
type Connection interface {
	Name() string
}

// Session lends the executor its connection and transaction. It is borrowed,
// not owned: the connection or transaction may change between calls.
type Session interface {
	CurrentConnection() Connection
	// Enlist attaches the statement to the active transaction, if any.
	Enlist(ctx context.Context, stmt Statement) error
	// CloseReaders closes result readers left open by earlier queries on the
	// connection.
	CloseReaders() error
}

// Statement is a driver command that can run a single write.
type Statement interface {
	SQL() string
	Parameters() *ParameterList
	Connection() Connection
	SetConnection(conn Connection)
	// Prepare compiles the statement against the database. Calling it again
	// on a prepared statement is a no-op.
	Prepare(ctx context.Context) error
	ExecNonQuery(ctx context.Context) (int64, error)
}

// NativeBatchingStatement is a Statement whose driver can send several
// parameter sets in one round-trip.
type NativeBatchingStatement interface {
	Statement
	// AddBatch commits the parameters added since the previous call as one
	// entry of the statement's batch.
	AddBatch() error
	// ValidForBatching reports whether this prepared statement can be
	// executed through the driver's batching mode.
	ValidForBatching(ctx context.Context) (bool, error)
}

// Verifier checks affected-row counts against expectations.
type Verifier interface {
	VerifyBatched(expected, actual int64) error
	VerifyImmediate(expected, actual int64, stmt string) error
}

// Config holds configuration for the batch executor
type Config struct {
	BatchSize  int  // Statements per batch (1 disables batching)
	VerboseSQL bool // Render each merged statement to the SQL log
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BatchSize: 20,
	}
}

// Stats counts executor activity since creation.
type Stats struct {
	Probes     int // batch-validity checks issued to the driver
	Flushes    int // native batch executions
	Batched    int // statements merged into a batch
	Immediate  int // statements executed one at a time
	RowsTotal  int64
	Mismatches int
}

// pendingBatch is the accumulator state. root is nil exactly when count and
// expected are zero.
type pendingBatch struct {
	id       string
	root     NativeBatchingStatement
	count    int
	expected int64
	log      []string
}

func (p *pendingBatch) open() bool {
	return p.root != nil
}

func (p *pendingBatch) reset() {
	p.id = ""
	p.root = nil
	p.count = 0
	p.expected = 0
	p.log = nil
}
