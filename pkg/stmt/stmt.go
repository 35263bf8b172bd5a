// Package stmt adapts prepared statements to the wire protocol: it applies
// parameter tuples decoded from inbound messages and streams result sets
// into outbound messages.
package stmt

import (
	"github.com/norndb/norn/pkg/engine"
	"github.com/norndb/norn/pkg/wire"
)

// Stmt couples a prepared statement with the database it was prepared on
// and a scratch buffer holding the text of the last failure.
type Stmt struct {
	db       engine.DB
	stmt     engine.Stmt
	err      wire.Error
	lastRows int
}

// New wraps a prepared statement.
func New(db engine.DB, prepared engine.Stmt) *Stmt {
	return &Stmt{db: db, stmt: prepared}
}

// Error returns the text of the last failure.
func (s *Stmt) Error() string {
	return s.err.String()
}

// ParamCount returns the number of parameter slots of the underlying
// statement.
func (s *Stmt) ParamCount() int {
	return s.stmt.ParamCount()
}

// Finalize releases the underlying prepared statement.
func (s *Stmt) Finalize() engine.Code {
	if s.stmt == nil {
		return engine.OK
	}
	rc := s.stmt.Finalize()
	s.stmt = nil
	return rc
}

// Reset rewinds the underlying statement, keeping its bindings.
func (s *Stmt) Reset() engine.Code {
	return s.stmt.Reset()
}

// Bind consumes a parameter tuple from the message at its read cursor and
// applies it to the prepared statement. An exhausted message is a no-op.
//
// The tuple starts with a header whose first byte is the parameter count,
// followed by one tag byte per parameter; the tag run is padded to the
// word boundary and the values follow, one aligned word-multiple each.
func (s *Stmt) Bind(m *wire.Message) engine.Code {
	count, err := m.BodyGetUint8()
	if err != nil {
		// No bindings in this message.
		return engine.OK
	}

	tags := make([]uint8, count)
	for i := range tags {
		if tags[i], err = m.BodyGetUint8(); err != nil {
			s.err.Printf("incomplete param types")
			return engine.Error
		}
	}
	for i, t := range tags {
		if !validTag(t) {
			s.err.Printf("invalid param %d: unknown type %d", i+1, t)
			return engine.Error
		}
	}
	m.BodyAlign()

	for i, t := range tags {
		rc := engine.OK
		switch t {
		case TagInteger, TagUnixTime:
			v, err := m.BodyGetInt64()
			if err != nil {
				s.err.Printf("incomplete param values")
				return engine.Error
			}
			rc = s.stmt.BindInt64(i+1, v)
		case TagFloat:
			v, err := m.BodyGetFloat64()
			if err != nil {
				s.err.Printf("incomplete param values")
				return engine.Error
			}
			rc = s.stmt.BindFloat64(i+1, v)
		case TagText, TagISO8601:
			v, err := m.BodyGetText()
			if err != nil {
				s.err.Printf("incomplete param values")
				return engine.Error
			}
			rc = s.stmt.BindText(i+1, v)
		case TagBlob:
			v, err := m.BodyGetBlob()
			if err != nil {
				s.err.Printf("incomplete param values")
				return engine.Error
			}
			rc = s.stmt.BindBlob(i+1, v)
		case TagNull:
			if _, err := m.BodyGetUint64(); err != nil {
				s.err.Printf("incomplete param values")
				return engine.Error
			}
			rc = s.stmt.BindNull(i + 1)
		case TagBoolean:
			v, err := m.BodyGetUint64()
			if err != nil {
				s.err.Printf("incomplete param values")
				return engine.Error
			}
			rc = s.stmt.BindInt64(i+1, int64(v))
		}
		if rc != engine.OK {
			s.err.Printf("%s", s.db.ErrMsg())
			return rc
		}
	}
	return engine.OK
}

// Exec steps a mutating statement to completion.
func (s *Stmt) Exec() engine.Code {
	for {
		switch rc := s.stmt.Step(); rc {
		case engine.Row:
			continue
		case engine.Done:
			return engine.Done
		default:
			s.err.Printf("%s", s.db.ErrMsg())
			return rc
		}
	}
}

// RowsEncoded returns the number of rows the most recent Query wrote into
// its message.
func (s *Stmt) RowsEncoded() int {
	return s.lastRows
}

// Query executes the statement, streaming its column names and rows into
// the message. It returns Done when the result set was exhausted and every
// row fit, or Row when the buffer filled first; in the latter case the
// frame is valid and a further Query continues from the next row.
func (s *Stmt) Query(m *wire.Message) engine.Code {
	s.lastRows = 0
	columns := s.stmt.ColumnCount()
	if columns <= 0 {
		s.err.Printf("stmt doesn't yield any column")
		return engine.Error
	}

	if err := m.BodyPutUint64(uint64(columns)); err != nil {
		s.err.Printf("failed to encode column count: %v", err)
		return engine.Error
	}
	for i := 0; i < columns; i++ {
		if err := m.BodyPutText(s.stmt.ColumnName(i)); err != nil {
			s.err.Printf("failed to encode name of column %d: %v", i, err)
			return engine.Error
		}
	}

	for {
		// Once a row has landed in the overflow buffer the frame is as
		// large as we let it grow: yield what we have before consuming
		// another row.
		if m.Overflowed() {
			return engine.Row
		}
		switch rc := s.stmt.Step(); rc {
		case engine.Row:
			if code := s.encodeRow(m, columns); code != engine.OK {
				return code
			}
			s.lastRows++
		case engine.Done:
			return engine.Done
		default:
			s.err.Printf("%s", s.db.ErrMsg())
			return rc
		}
	}
}

// encodeRow writes the packed header and the column values of the current
// row.
func (s *Stmt) encodeRow(m *wire.Message, columns int) engine.Code {
	tags := make([]uint8, columns)
	for i := 0; i < columns; i++ {
		tags[i] = columnTag(s.stmt.ColumnDeclType(i), s.stmt.ColumnType(i))
	}

	header := make([]byte, (columns+1)/2)
	for i, t := range tags {
		if i%2 == 0 {
			header[i/2] |= t & 0x0f
		} else {
			header[i/2] |= t << 4
		}
	}
	if err := m.BodyPutRaw(header); err != nil {
		s.err.Printf("failed to encode row header: %v", err)
		return engine.Error
	}

	for i, t := range tags {
		var err error
		switch t {
		case TagInteger, TagUnixTime:
			err = m.BodyPutInt64(s.stmt.ColumnInt64(i))
		case TagFloat:
			err = m.BodyPutFloat64(s.stmt.ColumnFloat64(i))
		case TagText, TagISO8601:
			err = m.BodyPutText(s.stmt.ColumnText(i))
		case TagBlob:
			err = m.BodyPutBlob(s.stmt.ColumnBlob(i))
		case TagNull:
			err = m.BodyPutUint64(0)
		case TagBoolean:
			err = m.BodyPutUint64(uint64(s.stmt.ColumnInt64(i)))
		}
		if err != nil {
			s.err.Printf("failed to encode value of column %d: %v", i, err)
			return engine.Error
		}
	}
	return engine.OK
}
