// Package engine defines the surface NornDB consumes from an embedded
// relational engine: opening databases, preparing statements, binding
// parameters, stepping through rows and introspecting columns. Concrete
// engines live elsewhere; the wire layer only ever sees these interfaces.
package engine

// Code is an engine status code. The numeric values follow the embedded
// engine family this protocol grew around and travel inside Failure
// responses, so they are contractual.
type Code int

const (
	OK     Code = 0
	Error  Code = 1
	NoMem  Code = 7
	Misuse Code = 21
	Range  Code = 25
	Row    Code = 100
	Done   Code = 101
)

// Type is the storage class of a value. The first five transport tags are
// these same codes.
type Type int

const (
	Integer Type = 1
	Float   Type = 2
	Text    Type = 3
	Blob    Type = 4
	Null    Type = 5
)

// Driver opens databases by name.
type Driver interface {
	Open(name string) (DB, error)
}

// DB is an open database connection.
type DB interface {
	// Prepare compiles the first statement in sql and returns it along
	// with the unparsed tail. On failure the returned code is non-OK and
	// ErrMsg describes the problem.
	Prepare(sql string) (Stmt, string, Code)

	// LastInsertRowID returns the rowid of the most recent insert.
	LastInsertRowID() int64

	// Changes returns the number of rows affected by the most recent
	// statement.
	Changes() int64

	// ErrMsg returns the text of the last error on this connection.
	ErrMsg() string

	Close() Code
}

// Stmt is a prepared statement. Parameter and column indexes are 1-based
// for binds and 0-based for column accessors, matching the engine family.
type Stmt interface {
	BindInt64(i int, v int64) Code
	BindFloat64(i int, v float64) Code
	BindText(i int, s string) Code
	BindBlob(i int, b []byte) Code
	BindNull(i int) Code

	// ParamCount returns the number of parameter slots in the statement.
	ParamCount() int

	// Step advances to the next row. It returns Row when a row is
	// available, Done at the end of the result set, or an error code.
	Step() Code

	// Reset rewinds the statement so it can be stepped again. Bindings
	// are retained.
	Reset() Code

	ColumnCount() int
	ColumnName(i int) string

	// ColumnDeclType returns the declared type of the column in the table
	// definition, or "" for expressions.
	ColumnDeclType(i int) string

	// ColumnType returns the storage class of the column value in the
	// current row.
	ColumnType(i int) Type

	ColumnInt64(i int) int64
	ColumnFloat64(i int) float64
	ColumnText(i int) string
	ColumnBlob(i int) []byte

	// ColumnBytes returns the size in bytes of a text or blob value.
	ColumnBytes(i int) int

	Finalize() Code
}
