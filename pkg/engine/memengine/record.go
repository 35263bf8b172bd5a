package memengine

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/norndb/norn/pkg/engine"
)

// Value is a single column value with its storage class.
type Value struct {
	Type  engine.Type
	Int   int64
	Float float64
	Text  string
	Blob  []byte
}

// Typed value constructors.

func IntValue(v int64) Value     { return Value{Type: engine.Integer, Int: v} }
func FloatValue(v float64) Value { return Value{Type: engine.Float, Float: v} }
func TextValue(s string) Value   { return Value{Type: engine.Text, Text: s} }
func BlobValue(b []byte) Value   { return Value{Type: engine.Blob, Blob: b} }
func NullValue() Value           { return Value{Type: engine.Null} }

// Row images are stored with the following binary layout:
//
//	[CRC32(4)][ColumnCount(4)] then per column [Class(1)][Payload]
//
// Integer and float payloads are 8 bytes little-endian; text and blob
// payloads are a 32-bit length followed by the bytes; null has no payload.
// The CRC32 covers everything after itself and is verified on decode.

// encodeRow serializes a row image.
func encodeRow(row []Value) []byte {
	size := 8
	for _, v := range row {
		size += 1 + payloadSize(v)
	}
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[4:], uint32(len(row)))
	off := 8
	for _, v := range row {
		buf[off] = byte(v.Type)
		off++
		switch v.Type {
		case engine.Integer:
			binary.LittleEndian.PutUint64(buf[off:], uint64(v.Int))
			off += 8
		case engine.Float:
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v.Float))
			off += 8
		case engine.Text:
			binary.LittleEndian.PutUint32(buf[off:], uint32(len(v.Text)))
			off += 4
			off += copy(buf[off:], v.Text)
		case engine.Blob:
			binary.LittleEndian.PutUint32(buf[off:], uint32(len(v.Blob)))
			off += 4
			off += copy(buf[off:], v.Blob)
		}
	}

	binary.LittleEndian.PutUint32(buf[0:], crc32.ChecksumIEEE(buf[4:]))
	return buf
}

// decodeRow deserializes a row image, validating its checksum.
func decodeRow(data []byte) ([]Value, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("row image too short: %d bytes", len(data))
	}
	sum := binary.LittleEndian.Uint32(data[0:4])
	if crc := crc32.ChecksumIEEE(data[4:]); crc != sum {
		return nil, fmt.Errorf("row image checksum mismatch: %d != %d", sum, crc)
	}

	count := binary.LittleEndian.Uint32(data[4:8])
	row := make([]Value, 0, count)
	off := 8
	for i := uint32(0); i < count; i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("row image truncated at column %d", i)
		}
		class := engine.Type(data[off])
		off++
		var v Value
		switch class {
		case engine.Integer:
			if off+8 > len(data) {
				return nil, fmt.Errorf("row image truncated at column %d", i)
			}
			v = IntValue(int64(binary.LittleEndian.Uint64(data[off:])))
			off += 8
		case engine.Float:
			if off+8 > len(data) {
				return nil, fmt.Errorf("row image truncated at column %d", i)
			}
			v = FloatValue(math.Float64frombits(binary.LittleEndian.Uint64(data[off:])))
			off += 8
		case engine.Text, engine.Blob:
			if off+4 > len(data) {
				return nil, fmt.Errorf("row image truncated at column %d", i)
			}
			n := int(binary.LittleEndian.Uint32(data[off:]))
			off += 4
			if off+n > len(data) {
				return nil, fmt.Errorf("row image truncated at column %d", i)
			}
			if class == engine.Text {
				v = TextValue(string(data[off : off+n]))
			} else {
				v = BlobValue(append([]byte(nil), data[off:off+n]...))
			}
			off += n
		case engine.Null:
			v = NullValue()
		default:
			return nil, fmt.Errorf("row image has unknown storage class %d", class)
		}
		row = append(row, v)
	}
	return row, nil
}

func payloadSize(v Value) int {
	switch v.Type {
	case engine.Integer, engine.Float:
		return 8
	case engine.Text:
		return 4 + len(v.Text)
	case engine.Blob:
		return 4 + len(v.Blob)
	}
	return 0
}
