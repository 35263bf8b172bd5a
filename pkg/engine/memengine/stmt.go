package memengine

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"github.com/norndb/norn/pkg/engine"
)

type stmtKind int

const (
	stmtCreateTable stmtKind = iota
	stmtInsert
	stmtSelect
	stmtCount
	stmtValues
	stmtDelete
)

// Stmt is a compiled statement.
type Stmt struct {
	db   *DB
	kind stmtKind

	table      string
	cols       []column // column definitions for CREATE TABLE
	tuples     [][]expr // INSERT row tuples
	selectCols []string // projected column names, or a single "*"
	countCol   string
	exprs      []expr // bare SELECT expressions

	nparams int
	params  []Value

	// run state
	outCols []column
	rows    [][]Value
	row     []Value
	started bool
	pos     int
	ran     bool
}

// bindAt validates a 1-based parameter index and stores the value.
func (s *Stmt) bindAt(i int, v Value) engine.Code {
	if i < 1 || i > s.nparams {
		s.db.setError("column index out of range")
		return engine.Range
	}
	s.params[i-1] = v
	return engine.OK
}

func (s *Stmt) BindInt64(i int, v int64) engine.Code     { return s.bindAt(i, IntValue(v)) }
func (s *Stmt) BindFloat64(i int, v float64) engine.Code { return s.bindAt(i, FloatValue(v)) }
func (s *Stmt) BindText(i int, v string) engine.Code     { return s.bindAt(i, TextValue(v)) }
func (s *Stmt) BindBlob(i int, v []byte) engine.Code     { return s.bindAt(i, BlobValue(v)) }
func (s *Stmt) BindNull(i int) engine.Code               { return s.bindAt(i, NullValue()) }

// ParamCount returns the number of placeholder slots.
func (s *Stmt) ParamCount() int { return s.nparams }

// resolve evaluates an expression against the current bindings. Unbound
// parameters evaluate to null.
func (s *Stmt) resolve(e expr) Value {
	if e.param > 0 {
		return s.params[e.param-1]
	}
	return e.val
}

// Step advances the statement. Mutating statements run once and return
// Done; row-producing statements materialize their result set on the first
// call and then yield one row per call.
func (s *Stmt) Step() engine.Code {
	switch s.kind {
	case stmtCreateTable, stmtInsert, stmtDelete:
		if s.ran {
			return engine.Done
		}
		s.ran = true
		if err := s.exec(); err != nil {
			s.db.setError(err.Error())
			return engine.Error
		}
		return engine.Done
	}

	if !s.started {
		if err := s.materialize(); err != nil {
			s.db.setError(err.Error())
			return engine.Error
		}
		s.started = true
		s.pos = -1
	}
	s.pos++
	if s.pos < len(s.rows) {
		s.row = s.rows[s.pos]
		return engine.Row
	}
	s.row = nil
	return engine.Done
}

// Reset rewinds the statement, keeping its bindings.
func (s *Stmt) Reset() engine.Code {
	s.started = false
	s.ran = false
	s.rows = nil
	s.row = nil
	s.pos = 0
	return engine.OK
}

// Finalize releases the statement.
func (s *Stmt) Finalize() engine.Code {
	s.rows = nil
	s.row = nil
	return engine.OK
}

func (s *Stmt) exec() error {
	switch s.kind {
	case stmtCreateTable:
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
		if _, ok := s.db.tables[s.table]; ok {
			return fmt.Errorf("table %s already exists", s.table)
		}
		s.db.tables[s.table] = &table{name: s.table, cols: s.cols}
		s.db.changes = 0
		return nil

	case stmtInsert:
		tbl, err := s.db.lookupTable(s.table)
		if err != nil {
			return err
		}
		for _, tuple := range s.tuples {
			if len(tuple) != len(tbl.cols) {
				return fmt.Errorf("table %s has %d columns but %d values were supplied",
					s.table, len(tbl.cols), len(tuple))
			}
			row := make([]Value, len(tuple))
			for i, e := range tuple {
				row[i] = s.resolve(e)
			}
			s.db.mu.Lock()
			tbl.seq++
			seq := tbl.seq
			s.db.mu.Unlock()
			if err := s.db.store.Set(rowKey(s.table, seq), encodeRow(row), pebble.NoSync); err != nil {
				return fmt.Errorf("failed to store row: %w", err)
			}
			s.db.setResult(int64(seq), int64(len(s.tuples)))
		}
		return nil

	case stmtDelete:
		if _, err := s.db.lookupTable(s.table); err != nil {
			return err
		}
		lower, upper := rowPrefix(s.table)
		iter, err := s.db.store.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
		if err != nil {
			return fmt.Errorf("failed to open row iterator: %w", err)
		}
		var keys [][]byte
		for iter.First(); iter.Valid(); iter.Next() {
			keys = append(keys, append([]byte(nil), iter.Key()...))
		}
		if err := iter.Close(); err != nil {
			return err
		}
		for _, key := range keys {
			if err := s.db.store.Delete(key, pebble.NoSync); err != nil {
				return fmt.Errorf("failed to delete row: %w", err)
			}
		}
		s.db.setResult(s.db.LastInsertRowID(), int64(len(keys)))
		return nil
	}
	return fmt.Errorf("not an executable statement")
}

func (s *Stmt) materialize() error {
	switch s.kind {
	case stmtSelect:
		tbl, err := s.db.lookupTable(s.table)
		if err != nil {
			return err
		}
		proj, err := projection(tbl, s.selectCols)
		if err != nil {
			return err
		}
		s.outCols = make([]column, len(proj))
		for i, idx := range proj {
			s.outCols[i] = tbl.cols[idx]
		}
		all, err := s.db.scanRows(s.table)
		if err != nil {
			return err
		}
		s.rows = make([][]Value, len(all))
		for r, row := range all {
			out := make([]Value, len(proj))
			for i, idx := range proj {
				if idx < len(row) {
					out[i] = row[idx]
				} else {
					out[i] = NullValue()
				}
			}
			s.rows[r] = out
		}
		return nil

	case stmtCount:
		tbl, err := s.db.lookupTable(s.table)
		if err != nil {
			return err
		}
		idx := -1
		if s.countCol != "*" {
			for i, col := range tbl.cols {
				if col.name == s.countCol {
					idx = i
					break
				}
			}
			if idx < 0 {
				return fmt.Errorf("no such column: %s", s.countCol)
			}
		}
		all, err := s.db.scanRows(s.table)
		if err != nil {
			return err
		}
		var count int64
		for _, row := range all {
			if idx < 0 || (idx < len(row) && row[idx].Type != engine.Null) {
				count++
			}
		}
		s.outCols = []column{{name: "COUNT(" + s.countCol + ")"}}
		s.rows = [][]Value{{IntValue(count)}}
		return nil

	case stmtValues:
		s.outCols = make([]column, len(s.exprs))
		row := make([]Value, len(s.exprs))
		for i, e := range s.exprs {
			s.outCols[i] = column{name: e.text}
			row[i] = s.resolve(e)
		}
		s.rows = [][]Value{row}
		return nil
	}
	return fmt.Errorf("statement yields no rows")
}

// projection maps requested column names to table column indexes.
func projection(tbl *table, names []string) ([]int, error) {
	if len(names) == 1 && names[0] == "*" {
		idx := make([]int, len(tbl.cols))
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	idx := make([]int, len(names))
	for i, name := range names {
		found := -1
		for j, col := range tbl.cols {
			if col.name == name {
				found = j
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("no such column: %s", name)
		}
		idx[i] = found
	}
	return idx, nil
}

// ColumnCount returns the width of the result set, or 0 for statements
// that yield no rows.
func (s *Stmt) ColumnCount() int {
	switch s.kind {
	case stmtSelect:
		tbl, err := s.db.lookupTable(s.table)
		if err != nil {
			return 0
		}
		if len(s.selectCols) == 1 && s.selectCols[0] == "*" {
			return len(tbl.cols)
		}
		return len(s.selectCols)
	case stmtCount:
		return 1
	case stmtValues:
		return len(s.exprs)
	}
	return 0
}

// ColumnName returns the name of a result column; expression columns
// report their source text.
func (s *Stmt) ColumnName(i int) string {
	switch s.kind {
	case stmtSelect:
		if s.outCols != nil {
			return s.outCols[i].name
		}
		tbl, err := s.db.lookupTable(s.table)
		if err != nil {
			return ""
		}
		if len(s.selectCols) == 1 && s.selectCols[0] == "*" {
			return tbl.cols[i].name
		}
		return s.selectCols[i]
	case stmtCount:
		return "COUNT(" + s.countCol + ")"
	case stmtValues:
		return s.exprs[i].text
	}
	return ""
}

// ColumnDeclType returns the declared type of a table column, or "" for
// expressions.
func (s *Stmt) ColumnDeclType(i int) string {
	if s.kind != stmtSelect {
		return ""
	}
	if s.outCols != nil {
		return s.outCols[i].declType
	}
	tbl, err := s.db.lookupTable(s.table)
	if err != nil {
		return ""
	}
	if len(s.selectCols) == 1 && s.selectCols[0] == "*" {
		return tbl.cols[i].declType
	}
	for _, col := range tbl.cols {
		if col.name == s.selectCols[i] {
			return col.declType
		}
	}
	return ""
}

// ColumnType returns the storage class of the value in the current row.
func (s *Stmt) ColumnType(i int) engine.Type {
	if s.row == nil || i >= len(s.row) {
		return engine.Null
	}
	return s.row[i].Type
}

func (s *Stmt) ColumnInt64(i int) int64 {
	if s.row == nil || i >= len(s.row) {
		return 0
	}
	switch v := s.row[i]; v.Type {
	case engine.Integer:
		return v.Int
	case engine.Float:
		return int64(v.Float)
	case engine.Text:
		n, _ := strconv.ParseInt(v.Text, 10, 64)
		return n
	}
	return 0
}

func (s *Stmt) ColumnFloat64(i int) float64 {
	if s.row == nil || i >= len(s.row) {
		return 0
	}
	switch v := s.row[i]; v.Type {
	case engine.Float:
		return v.Float
	case engine.Integer:
		return float64(v.Int)
	case engine.Text:
		f, _ := strconv.ParseFloat(v.Text, 64)
		return f
	}
	return 0
}

func (s *Stmt) ColumnText(i int) string {
	if s.row == nil || i >= len(s.row) {
		return ""
	}
	switch v := s.row[i]; v.Type {
	case engine.Text:
		return v.Text
	case engine.Integer:
		return strconv.FormatInt(v.Int, 10)
	case engine.Float:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case engine.Blob:
		return string(v.Blob)
	}
	return ""
}

func (s *Stmt) ColumnBlob(i int) []byte {
	if s.row == nil || i >= len(s.row) {
		return nil
	}
	switch v := s.row[i]; v.Type {
	case engine.Blob:
		return v.Blob
	case engine.Text:
		return []byte(v.Text)
	}
	return nil
}

func (s *Stmt) ColumnBytes(i int) int {
	if s.row == nil || i >= len(s.row) {
		return 0
	}
	switch v := s.row[i]; v.Type {
	case engine.Text:
		return len(v.Text)
	case engine.Blob:
		return len(v.Blob)
	}
	return 0
}
