// Package memengine is an in-memory reference implementation of the engine
// interfaces, used by tests and the demo server. Tables live in a pebble
// store on a memory filesystem, with rows encoded as checksummed record
// images keyed by a monotonic sequence number so scans preserve insertion
// order. It accepts only the handful of statement forms the node needs;
// it is scaffolding, not a SQL engine.
package memengine

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/norndb/norn/pkg/engine"
)

// Driver hands out DB connections. Connections opened under the same name
// share one store, so multiple wire connections see the same data.
type Driver struct {
	mu  sync.Mutex
	dbs map[string]*DB
}

// NewDriver creates an empty driver.
func NewDriver() *Driver {
	return &Driver{dbs: make(map[string]*DB)}
}

// Open returns the database registered under name, creating it on first
// use.
func (d *Driver) Open(name string) (engine.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if db, ok := d.dbs[name]; ok {
		return db, nil
	}
	db, err := newDB(name)
	if err != nil {
		return nil, err
	}
	d.dbs[name] = db
	return db, nil
}

// Close releases every database the driver handed out.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for name, db := range d.dbs {
		if err := db.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.dbs, name)
	}
	return firstErr
}

type column struct {
	name     string
	declType string
}

type table struct {
	name string
	cols []column
	seq  uint64
}

// DB is an open in-memory database.
type DB struct {
	name   string
	store  *pebble.DB
	mu     sync.Mutex
	tables map[string]*table

	lastInsertRowID int64
	changes         int64
	errMsg          string
}

func newDB(name string) (*DB, error) {
	store, err := pebble.Open(name, &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open row store: %w", err)
	}
	return &DB{
		name:   name,
		store:  store,
		tables: make(map[string]*table),
	}, nil
}

// Prepare compiles the first statement in sql and returns the unparsed
// tail.
func (db *DB) Prepare(sql string) (engine.Stmt, string, engine.Code) {
	stmtText, tail := splitStatement(sql)
	s, err := db.parse(stmtText)
	if err != nil {
		db.setError(err.Error())
		return nil, tail, engine.Error
	}
	return s, tail, engine.OK
}

// Exec prepares and steps every statement in sql. It is a convenience for
// fixtures and tools; the wire layer goes through Prepare.
func (db *DB) Exec(sql string) error {
	for sql != "" {
		stmt, tail, rc := db.Prepare(sql)
		if rc != engine.OK {
			return fmt.Errorf("prepare failed: %s", db.ErrMsg())
		}
		for {
			rc = stmt.Step()
			if rc == engine.Row {
				continue
			}
			if rc == engine.Done {
				break
			}
			stmt.Finalize()
			return fmt.Errorf("step failed: %s", db.ErrMsg())
		}
		stmt.Finalize()
		sql = tail
	}
	return nil
}

// LastInsertRowID returns the sequence number of the most recent insert.
func (db *DB) LastInsertRowID() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lastInsertRowID
}

// Changes returns the number of rows affected by the most recent
// statement.
func (db *DB) Changes() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.changes
}

// ErrMsg returns the text of the last error.
func (db *DB) ErrMsg() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.errMsg
}

// Close is a no-op for shared in-memory databases; the driver owns the
// store.
func (db *DB) Close() engine.Code {
	return engine.OK
}

func (db *DB) setError(msg string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.errMsg = msg
}

func (db *DB) setResult(lastID, changes int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.lastInsertRowID = lastID
	db.changes = changes
}

func (db *DB) lookupTable(name string) (*table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("no such table: %s", name)
	}
	return t, nil
}

// rowKey builds the storage key of one row: a table prefix followed by a
// big-endian sequence number, so iteration order is insertion order.
func rowKey(tbl string, seq uint64) []byte {
	key := make([]byte, 0, len(tbl)+11)
	key = append(key, 'r', '/')
	key = append(key, tbl...)
	key = append(key, '/')
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(key, b[:]...)
}

// rowPrefix returns the iteration bounds covering every row of a table.
func rowPrefix(tbl string) (lower, upper []byte) {
	lower = make([]byte, 0, len(tbl)+3)
	lower = append(lower, 'r', '/')
	lower = append(lower, tbl...)
	lower = append(lower, '/')
	upper = append([]byte(nil), lower...)
	upper[len(upper)-1]++
	return lower, upper
}

// scanRows loads every row of a table in insertion order.
func (db *DB) scanRows(tbl string) ([][]Value, error) {
	lower, upper := rowPrefix(tbl)
	iter, err := db.store.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open row iterator: %w", err)
	}
	defer iter.Close()

	var rows [][]Value
	for iter.First(); iter.Valid(); iter.Next() {
		row, err := decodeRow(iter.Value())
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, iter.Error()
}
