// Package testutil fakes the postgres state table behind database/sql so the
// store can be exercised without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Phase names a point where the fake connection can be told to fail.
type Phase string

const (
	PhasePing   Phase = "ping"
	PhaseExec   Phase = "exec"
	PhaseQuery  Phase = "query"
	PhaseBegin  Phase = "begin"
	PhaseCommit Phase = "commit"
)

// StateConn holds the bucket payloads written through the fake driver. Writes
// made inside a transaction are only visible after commit.
type StateConn struct {
	mu         sync.Mutex
	statements []string
	buckets    map[string][]byte
	pending    map[string][]byte
	failures   map[Phase]error
}

var driverSeq atomic.Uint64

// NewStateDB opens a sql.DB whose single connection is the returned fake.
func NewStateDB() (*sql.DB, *StateConn) {
	conn := &StateConn{buckets: make(map[string][]byte), failures: make(map[Phase]error)}
	name := fmt.Sprintf("chemcore-pgstate-%d", driverSeq.Add(1))
	sql.Register(name, stateDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

// FailOn makes every later call at phase return err. A nil err clears it.
func (c *StateConn) FailOn(phase Phase, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, phase)
		return
	}
	c.failures[phase] = err
}

// Statements returns every statement executed so far, in order.
func (c *StateConn) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.statements...)
}

// Bucket returns the committed payload for bucket.
func (c *StateConn) Bucket(bucket string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.buckets[bucket]
	return append([]byte(nil), payload...), ok
}

// Buckets lists committed bucket names in sorted order.
func (c *StateConn) Buckets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.buckets))
	for name := range c.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *StateConn) failure(phase Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures[phase]
}

type stateDriver struct{ conn *StateConn }

func (d stateDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *StateConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepared statements unsupported: %s", query)
}

func (c *StateConn) Close() error { return nil }

func (c *StateConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *StateConn) Ping(context.Context) error { return c.failure(PhasePing) }

func (c *StateConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if err := c.failure(PhaseBegin); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return nil, errors.New("transaction already open")
	}
	c.pending = make(map[string][]byte)
	return stateTx{conn: c}, nil
}

func (c *StateConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	c.statements = append(c.statements, query)
	c.mu.Unlock()
	if err := c.failure(PhaseExec); err != nil {
		return nil, err
	}
	normalized := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	switch {
	case strings.HasPrefix(normalized, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(normalized, "INSERT INTO STATE"):
		return c.upsert(args)
	default:
		return nil, fmt.Errorf("unsupported statement: %s", query)
	}
}

func (c *StateConn) upsert(args []driver.NamedValue) (driver.Result, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("state upsert wants bucket and payload, got %d args", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return nil, fmt.Errorf("bucket must be text, got %T", args[0].Value)
	}
	var payload []byte
	switch v := args[1].Value.(type) {
	case []byte:
		payload = append([]byte(nil), v...)
	case string:
		payload = []byte(v)
	default:
		return nil, fmt.Errorf("payload must be bytes, got %T", args[1].Value)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending[bucket] = payload
	} else {
		c.buckets[bucket] = payload
	}
	return driver.RowsAffected(1), nil
}

func (c *StateConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if err := c.failure(PhaseQuery); err != nil {
		return nil, err
	}
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if normalized != "select bucket, payload from state" {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	rows := &stateRows{}
	for _, name := range c.Buckets() {
		payload, _ := c.Bucket(name)
		rows.values = append(rows.values, []driver.Value{name, payload})
	}
	return rows, nil
}

type stateTx struct{ conn *StateConn }

func (t stateTx) Commit() error {
	c := t.conn
	if err := c.failure(PhaseCommit); err != nil {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for bucket, payload := range c.pending {
		c.buckets[bucket] = payload
	}
	c.pending = nil
	return nil
}

func (t stateTx) Rollback() error {
	t.conn.mu.Lock()
	t.conn.pending = nil
	t.conn.mu.Unlock()
	return nil
}

type stateRows struct {
	values [][]driver.Value
	next   int
}

func (r *stateRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stateRows) Close() error      { return nil }

func (r *stateRows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.next])
	r.next++
	return nil
}
