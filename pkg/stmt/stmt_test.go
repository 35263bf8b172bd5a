package stmt

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norndb/norn/pkg/engine"
	"github.com/norndb/norn/pkg/engine/memengine"
	"github.com/norndb/norn/pkg/wire"
)

type fixture struct {
	t  *testing.T
	db *memengine.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	driver := memengine.NewDriver()
	t.Cleanup(func() { driver.Close() })

	db, err := driver.Open("test")
	require.NoError(t, err)
	return &fixture{t: t, db: db.(*memengine.DB)}
}

func (f *fixture) exec(sql string) {
	f.t.Helper()
	require.NoError(f.t, f.db.Exec(sql))
}

func (f *fixture) prepare(sql string) *Stmt {
	f.t.Helper()
	prepared, _, rc := f.db.Prepare(sql)
	require.Equal(f.t, engine.OK, rc, "prepare failed: %s", f.db.ErrMsg())
	s := New(f.db, prepared)
	f.t.Cleanup(func() { s.Finalize() })
	return s
}

func TestBind_None(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT 1")

	var m wire.Message
	assert.Equal(t, engine.OK, s.Bind(&m))
}

func TestBind_MissingTypes(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	// Eight parameters declared, but only seven tag bytes fit in the
	// single body word.
	var m wire.Message
	m.SetWords(1)
	m.Body1()[0] = 8

	assert.Equal(t, engine.Error, s.Bind(&m))
	assert.Equal(t, "incomplete param types", s.Error())
}

func TestBind_NoValues(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	// One integer parameter, but no value words left.
	var m wire.Message
	m.SetWords(1)
	m.Body1()[0] = 1
	m.Body1()[1] = TagInteger

	assert.Equal(t, engine.Error, s.Bind(&m))
	assert.Equal(t, "incomplete param values", s.Error())
}

func TestBind_MissingValues(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	// Two integer parameters, but only one value word.
	var m wire.Message
	m.SetWords(2)
	m.Body1()[0] = 2
	m.Body1()[1] = TagInteger
	m.Body1()[2] = TagInteger

	assert.Equal(t, engine.Error, s.Bind(&m))
	assert.Equal(t, "incomplete param values", s.Error())
}

func TestBind_UnknownType(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	var m wire.Message
	m.SetWords(2)
	m.Body1()[0] = 1
	m.Body1()[1] = 127

	assert.Equal(t, engine.Error, s.Bind(&m))
	assert.Equal(t, "invalid param 1: unknown type 127", s.Error())
}

func TestBind_IndexOutOfRange(t *testing.T) {
	f := newFixture(t)

	// The statement has no parameter slots, but the message carries a
	// well-typed parameter.
	s := f.prepare("SELECT 1")

	var m wire.Message
	m.SetWords(2)
	m.Body1()[0] = 1
	m.Body1()[1] = TagInteger

	assert.Equal(t, engine.Range, s.Bind(&m))
	assert.Equal(t, "column index out of range", s.Error())
}

func TestBind_Integer(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	var m wire.Message
	m.SetWords(2)
	m.Body1()[0] = 1
	m.Body1()[1] = TagInteger
	var want int64 = -666
	binary.BigEndian.PutUint64(m.Body1()[8:], uint64(want))

	require.Equal(t, engine.OK, s.Bind(&m))

	raw := f.rawStmt(s)
	require.Equal(t, engine.Row, raw.Step())
	assert.Equal(t, engine.Integer, raw.ColumnType(0))
	assert.Equal(t, int64(-666), raw.ColumnInt64(0))
}

func TestBind_Float(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	var m wire.Message
	m.SetWords(2)
	m.Body1()[0] = 1
	m.Body1()[1] = TagFloat
	binary.BigEndian.PutUint64(m.Body1()[8:], math.Float64bits(3.1415))

	require.Equal(t, engine.OK, s.Bind(&m))

	raw := f.rawStmt(s)
	require.Equal(t, engine.Row, raw.Step())
	assert.Equal(t, engine.Float, raw.ColumnType(0))
	assert.Equal(t, 3.1415, raw.ColumnFloat64(0))
}

func TestBind_Text(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	var m wire.Message
	m.SetWords(2)
	m.Body1()[0] = 1
	m.Body1()[1] = TagText
	copy(m.Body1()[8:], "hello")

	require.Equal(t, engine.OK, s.Bind(&m))

	raw := f.rawStmt(s)
	require.Equal(t, engine.Row, raw.Step())
	assert.Equal(t, engine.Text, raw.ColumnType(0))
	assert.Equal(t, "hello", raw.ColumnText(0))
}

func TestBind_ISO8601(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	var m wire.Message
	m.SetWords(5)
	m.Body1()[0] = 1
	m.Body1()[1] = TagISO8601
	copy(m.Body1()[8:], "2018-07-20 09:49:05+00:00")

	require.Equal(t, engine.OK, s.Bind(&m))

	raw := f.rawStmt(s)
	require.Equal(t, engine.Row, raw.Step())
	assert.Equal(t, engine.Text, raw.ColumnType(0))
	assert.Equal(t, "2018-07-20 09:49:05+00:00", raw.ColumnText(0))
}

func TestBind_Boolean(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	var m wire.Message
	m.SetWords(2)
	m.Body1()[0] = 1
	m.Body1()[1] = TagBoolean
	binary.BigEndian.PutUint64(m.Body1()[8:], 1)

	require.Equal(t, engine.OK, s.Bind(&m))

	raw := f.rawStmt(s)
	require.Equal(t, engine.Row, raw.Step())
	assert.Equal(t, int64(1), raw.ColumnInt64(0))
}

func TestBind_Null(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	var m wire.Message
	m.SetWords(2)
	m.Body1()[0] = 1
	m.Body1()[1] = TagNull

	require.Equal(t, engine.OK, s.Bind(&m))

	raw := f.rawStmt(s)
	require.Equal(t, engine.Row, raw.Step())
	assert.Equal(t, engine.Null, raw.ColumnType(0))
}

func TestBind_Blob(t *testing.T) {
	f := newFixture(t)
	s := f.prepare("SELECT ?")

	var m wire.Message
	m.SetWords(4)
	m.Body1()[0] = 1
	m.Body1()[1] = TagBlob
	binary.BigEndian.PutUint64(m.Body1()[8:], 3)
	copy(m.Body1()[16:], []byte{0xca, 0xfe, 0xff})

	require.Equal(t, engine.OK, s.Bind(&m))

	raw := f.rawStmt(s)
	require.Equal(t, engine.Row, raw.Step())
	assert.Equal(t, engine.Blob, raw.ColumnType(0))
	assert.Equal(t, []byte{0xca, 0xfe, 0xff}, raw.ColumnBlob(0))
}

// rawStmt digs the engine statement back out for column assertions.
func (f *fixture) rawStmt(s *Stmt) engine.Stmt {
	f.t.Helper()
	return s.stmt
}

func TestQuery_NoColumns(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (n INT)")

	s := f.prepare("DELETE FROM test")

	var m wire.Message
	assert.Equal(t, engine.Error, s.Query(&m))
	assert.Equal(t, "stmt doesn't yield any column", s.Error())
}

func TestQuery_NoRows(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE master (name TEXT)")

	s := f.prepare("SELECT name FROM master")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	// One column.
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(m.Body1()[0:8]))
	// Its name.
	assert.Equal(t, "name", textAt(m.Body1(), 8))
	// And nothing else.
	assert.Equal(t, 16, m.Offset1())
}

func TestQuery_Integer(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (n INT)")
	f.exec("INSERT INTO test VALUES(-123)")

	s := f.prepare("SELECT n FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(m.Body1()[0:8]))
	assert.Equal(t, "n", textAt(m.Body1(), 8))
	assert.Equal(t, TagInteger, m.Body1()[16])
	assert.Equal(t, int64(-123), int64(binary.BigEndian.Uint64(m.Body1()[24:32])))
}

func TestQuery_Float(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (f FLOAT)")
	f.exec("INSERT INTO test VALUES(3.1415)")

	s := f.prepare("SELECT f FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	assert.Equal(t, TagFloat, m.Body1()[16])
	bits := binary.BigEndian.Uint64(m.Body1()[24:32])
	assert.Equal(t, 3.1415, math.Float64frombits(bits))
}

func TestQuery_Null(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (t TEXT)")
	f.exec("INSERT INTO test VALUES(NULL)")

	s := f.prepare("SELECT t FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	assert.Equal(t, TagNull, m.Body1()[16])
	assert.Equal(t, uint64(0), binary.BigEndian.Uint64(m.Body1()[24:32]))
}

func TestQuery_Text(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (t TEXT)")
	f.exec("INSERT INTO test VALUES('hello')")

	s := f.prepare("SELECT t FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	assert.Equal(t, TagText, m.Body1()[16])
	assert.Equal(t, "hello", textAt(m.Body1(), 24))
}

func TestQuery_UnixTime(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (t DATETIME)")

	now := time.Now().Unix()
	insert := f.prepare("INSERT INTO test VALUES(?)")
	var bind wire.Message
	bind.SetWords(2)
	bind.Body1()[0] = 1
	bind.Body1()[1] = TagUnixTime
	binary.BigEndian.PutUint64(bind.Body1()[8:], uint64(now))
	require.Equal(t, engine.OK, insert.Bind(&bind))
	require.Equal(t, engine.Done, insert.Exec())

	s := f.prepare("SELECT t FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	assert.Equal(t, "t", textAt(m.Body1(), 8))
	assert.Equal(t, TagUnixTime, m.Body1()[16])
	assert.Equal(t, now, int64(binary.BigEndian.Uint64(m.Body1()[24:32])))
}

func TestQuery_ISO8601(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (t DATETIME)")
	f.exec("INSERT INTO test VALUES('2018-07-20 09:18:12')")

	s := f.prepare("SELECT t FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	assert.Equal(t, TagISO8601, m.Body1()[16])
	assert.Equal(t, "2018-07-20 09:18:12", textAt(m.Body1(), 24))
}

func TestQuery_ISO8601Null(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (t DATETIME)")
	f.exec("INSERT INTO test VALUES(NULL)")

	s := f.prepare("SELECT t FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	// A null datetime travels as an empty ISO-8601 string.
	assert.Equal(t, TagISO8601, m.Body1()[16])
	assert.Equal(t, "", textAt(m.Body1(), 24))
}

func TestQuery_ISO8601Empty(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (t DATETIME)")
	f.exec("INSERT INTO test VALUES('')")

	s := f.prepare("SELECT t FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	assert.Equal(t, TagISO8601, m.Body1()[16])
	assert.Equal(t, "", textAt(m.Body1(), 24))
}

func TestQuery_Boolean(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (b BOOLEAN)")
	f.exec("INSERT INTO test VALUES(1)")

	s := f.prepare("SELECT b FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	assert.Equal(t, TagBoolean, m.Body1()[16])
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(m.Body1()[24:32]))
}

func TestQuery_TwoRows(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (n INT)")
	f.exec("INSERT INTO test VALUES(1)")
	f.exec("INSERT INTO test VALUES(2)")

	s := f.prepare("SELECT n FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))

	assert.Equal(t, TagInteger, m.Body1()[16])
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(m.Body1()[24:32]))
	assert.Equal(t, TagInteger, m.Body1()[32])
	assert.Equal(t, uint64(2), binary.BigEndian.Uint64(m.Body1()[40:48]))
}

func TestQuery_PackedHeader(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (n INT, t TEXT, f FLOAT)")
	f.exec("INSERT INTO test VALUES(1, 'hi', 3.1415)")
	f.exec("INSERT INTO test VALUES(2, 'hello world', NULL)")

	s := f.prepare("SELECT n, t, f FROM test")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))
	body := m.Body1()

	assert.Equal(t, uint64(3), binary.BigEndian.Uint64(body[0:8]))
	assert.Equal(t, "n", textAt(body, 8))
	assert.Equal(t, "t", textAt(body, 16))
	assert.Equal(t, "f", textAt(body, 24))

	// First row: header nibbles, then the values.
	assert.Equal(t, TagInteger, body[32]&0x0f)
	assert.Equal(t, TagText, body[32]>>4)
	assert.Equal(t, TagFloat, body[33])
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(body[40:48]))
	assert.Equal(t, "hi", textAt(body, 48))
	assert.Equal(t, 3.1415, math.Float64frombits(binary.BigEndian.Uint64(body[56:64])))

	// Second row.
	assert.Equal(t, TagInteger, body[64]&0x0f)
	assert.Equal(t, TagText, body[64]>>4)
	assert.Equal(t, TagNull, body[65])
	assert.Equal(t, uint64(2), binary.BigEndian.Uint64(body[72:80]))
	assert.Equal(t, "hello world", textAt(body, 80))
	assert.Equal(t, uint64(0), binary.BigEndian.Uint64(body[96:104]))
}

func TestQuery_ExpressionColumnName(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE master (name TEXT)")

	s := f.prepare("SELECT COUNT(name) FROM master")

	var m wire.Message
	require.Equal(t, engine.Done, s.Query(&m))
	body := m.Body1()

	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(body[0:8]))
	assert.Equal(t, "COUNT(name)", textAt(body, 8))

	assert.Equal(t, TagInteger, body[24]&0x0f)
	assert.Equal(t, uint64(0), binary.BigEndian.Uint64(body[32:40]))
}

func TestQuery_Overflow(t *testing.T) {
	f := newFixture(t)
	f.exec("CREATE TABLE test (n INT)")
	for i := 0; i < 256; i++ {
		f.exec("INSERT INTO test VALUES(123456789)")
	}

	s := f.prepare("SELECT n FROM test")

	// Row means the result set did not fit in one frame.
	var m wire.Message
	require.Equal(t, engine.Row, s.Query(&m))

	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(m.Body1()[0:8]))
	assert.Equal(t, "n", textAt(m.Body1(), 8))

	// The static body is full and the overflow was allocated.
	assert.Equal(t, wire.BufLen, m.Offset1())
	assert.NotNil(t, m.Body2())
}

// textAt reads the null-terminated string starting at off.
func textAt(body []byte, off int) string {
	for i := off; i < len(body); i++ {
		if body[i] == 0 {
			return string(body[off:i])
		}
	}
	return ""
}
