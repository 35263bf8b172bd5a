package stmt

import (
	"strings"

	"github.com/norndb/norn/pkg/engine"
)

// Transport tags. The first five coincide with the engine storage classes;
// the last three are logical extensions layered on top of them. The
// numeric values travel on the wire and are contractual.
const (
	TagInteger  uint8 = 1
	TagFloat    uint8 = 2
	TagText     uint8 = 3
	TagBlob     uint8 = 4
	TagNull     uint8 = 5
	TagUnixTime uint8 = 9
	TagISO8601  uint8 = 10
	TagBoolean  uint8 = 11
)

// validTag reports whether a parameter tag byte is recognized.
func validTag(t uint8) bool {
	switch t {
	case TagInteger, TagFloat, TagText, TagBlob, TagNull,
		TagUnixTime, TagISO8601, TagBoolean:
		return true
	}
	return false
}

// columnTag is the single authoritative mapping from a column's declared
// type name and storage class to the transport tag of its value.
//
// Datetime columns are transported as Unix timestamps when the engine
// stored an integer and as ISO-8601 text when it stored text; a NULL
// datetime travels as an empty ISO-8601 string so clients can keep a
// uniform column type. Datetime values stored as float or blob keep
// their storage-class tag. Boolean columns always use the boolean tag. Everything
// else uses the storage class directly.
func columnTag(declType string, storage engine.Type) uint8 {
	switch strings.ToUpper(declType) {
	case "DATETIME", "TIMESTAMP", "DATE", "TIME":
		switch storage {
		case engine.Integer:
			return TagUnixTime
		case engine.Text, engine.Null:
			return TagISO8601
		}
	case "BOOLEAN", "BOOL":
		return TagBoolean
	}
	return uint8(storage)
}
