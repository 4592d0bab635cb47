package writebatch

import (
	"context"
	"errors"
)

// driverLog records what the fake driver was asked to do
type driverLog struct {
	batchExecs     int
	immediateExecs int
	validityChecks int
	addBatchCalls  int
	// batchRows returns the aggregate result for a batch of n parameter
	// sets; nil means n.
	batchRows func(n int) int64
	execErr   error
}

type fakeConn struct {
	name string
}

func (c *fakeConn) Name() string { return c.name }

type fakeSession struct {
	conn         *fakeConn
	tx           string
	enlisted     int
	readerCloses int
	closeErr     error
	events       *[]string
}

func newFakeSession() *fakeSession {
	return &fakeSession{conn: &fakeConn{name: "conn-1"}, tx: "tx-1"}
}

func (s *fakeSession) CurrentConnection() Connection {
	return s.conn
}

func (s *fakeSession) Enlist(ctx context.Context, stmt Statement) error {
	st, ok := stmt.(interface{ setTx(string) })
	if !ok {
		return ErrNotEnlistable
	}
	st.setTx(s.tx)
	s.enlisted++
	return nil
}

func (s *fakeSession) CloseReaders() error {
	s.readerCloses++
	if s.events != nil {
		*s.events = append(*s.events, "close-readers")
	}
	return s.closeErr
}

// plainStmt has no batching operations
type plainStmt struct {
	sql        string
	params     *ParameterList
	conn       Connection
	tx         string
	setConns   int
	prepared   bool
	prepares   int
	prepareErr error
	rows       int64
	log        *driverLog
	events     *[]string
}

func newPlain(log *driverLog, sql string, args ...any) *plainStmt {
	return &plainStmt{sql: sql, params: NewParameterList(args...), rows: 1, log: log}
}

func (s *plainStmt) SQL() string                { return s.sql }
func (s *plainStmt) Parameters() *ParameterList { return s.params }
func (s *plainStmt) Connection() Connection     { return s.conn }
func (s *plainStmt) setTx(tx string)            { s.tx = tx }

func (s *plainStmt) SetConnection(c Connection) {
	s.conn = c
	s.setConns++
	s.prepared = false
}

func (s *plainStmt) Prepare(ctx context.Context) error {
	if s.prepareErr != nil {
		return s.prepareErr
	}
	if s.conn == nil {
		return errors.New("not attached")
	}
	if s.events != nil {
		*s.events = append(*s.events, "prepare")
	}
	s.prepared = true
	s.prepares++
	return nil
}

func (s *plainStmt) ExecNonQuery(ctx context.Context) (int64, error) {
	if !s.prepared {
		return 0, errors.New("not prepared")
	}
	if s.log.execErr != nil {
		return 0, s.log.execErr
	}
	s.log.immediateExecs++
	return s.rows, nil
}

// nativeStmt supports AddBatch and ValidForBatching
type nativeStmt struct {
	plainStmt
	valid     bool
	committed int
	batches   [][]any
}

func newNative(log *driverLog, sql string, args ...any) *nativeStmt {
	return &nativeStmt{plainStmt: *newPlain(log, sql, args...), valid: true}
}

func (s *nativeStmt) AddBatch() error {
	s.log.addBatchCalls++
	s.batches = append(s.batches, s.params.slice(s.committed))
	s.committed = s.params.Len()
	return nil
}

func (s *nativeStmt) ValidForBatching(ctx context.Context) (bool, error) {
	if !s.prepared || s.conn == nil || s.tx == "" {
		return false, errors.New("validity checked on unprepared statement")
	}
	s.log.validityChecks++
	return s.valid, nil
}

func (s *nativeStmt) ExecNonQuery(ctx context.Context) (int64, error) {
	if len(s.batches) == 0 {
		return s.plainStmt.ExecNonQuery(ctx)
	}
	if !s.prepared {
		return 0, errors.New("not prepared")
	}
	n := len(s.batches)
	s.batches = nil
	if s.events != nil {
		*s.events = append(*s.events, "exec-batch")
	}
	if s.log.execErr != nil {
		return 0, s.log.execErr
	}
	s.log.batchExecs++
	if s.log.batchRows != nil {
		return s.log.batchRows(n), nil
	}
	return int64(n), nil
}

// recordingVerifier collects batched verifications and delegates the
// decision to a strict comparison.
type recordingVerifier struct {
	batchedExpected []int64
	batchedActual   []int64
	immediate       int
}

var errMismatch = errors.New("mismatch")

func (v *recordingVerifier) VerifyBatched(expected, actual int64) error {
	v.batchedExpected = append(v.batchedExpected, expected)
	v.batchedActual = append(v.batchedActual, actual)
	if expected != actual {
		return errMismatch
	}
	return nil
}

func (v *recordingVerifier) VerifyImmediate(expected, actual int64, stmt string) error {
	v.immediate++
	if expected != actual {
		return errMismatch
	}
	return nil
}
