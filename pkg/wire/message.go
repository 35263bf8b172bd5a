package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// BufLen is the capacity of the static body buffer. Encoding past it
	// spills into a dynamically allocated overflow buffer.
	BufLen = 4096

	// HeaderLen is the size of the frame header on the wire.
	HeaderLen = 8

	// maxFrameLen caps the declared body length of an inbound frame.
	maxFrameLen = 1 << 26
)

// Sentinel failures of the message buffer.
var (
	// ErrEOM is returned when a read runs past the declared body length.
	ErrEOM = errors.New("end of message")

	// ErrParse is returned when a text field is not null-terminated within
	// the available bytes, or a frame is otherwise malformed.
	ErrParse = errors.New("parse error")

	// ErrNoMem is returned when the overflow buffer cannot be grown.
	ErrNoMem = errors.New("out of memory")
)

// Message is a framed buffer carrying one request or response. The body is
// split between a fixed static buffer and an overflow buffer allocated on
// demand; once a write has landed in the overflow, no further write touches
// the static buffer. All values start at word boundaries and 64-bit values
// travel big-endian.
//
// A message is either being encoded (body puts, then WriteTo) or decoded
// (ReadFrom or hand-filled body, then body gets). It is not safe for
// concurrent use.
type Message struct {
	typ   uint8
	flags uint8
	words uint32

	body1   [BufLen]byte
	body2   []byte
	offset1 int // write cursor into body1
	offset2 int // write cursor into body2

	rpos  int // logical read cursor
	split int // logical offset where body2 starts on the read path

	lastErr error
}

// Type returns the schema variant discriminator of the header.
func (m *Message) Type() uint8 { return m.typ }

// Flags returns the header flags byte.
func (m *Message) Flags() uint8 { return m.flags }

// Words returns the declared body length in 8-byte units.
func (m *Message) Words() uint32 { return m.words }

// SetWords declares the body length, in 8-byte units, of a hand-filled
// message. ReadFrom and WriteTo maintain it on their own.
func (m *Message) SetWords(words uint32) { m.words = words }

// Offset1 returns the write cursor into the static body.
func (m *Message) Offset1() int { return m.offset1 }

// Offset2 returns the write cursor into the overflow body.
func (m *Message) Offset2() int { return m.offset2 }

// Body1 returns the full static body buffer. Tests and fixtures may fill it
// directly and declare the length with SetWords.
func (m *Message) Body1() []byte { return m.body1[:] }

// Body2 returns the overflow body written so far, or nil if encoding never
// spilled.
func (m *Message) Body2() []byte { return m.body2 }

// Overflowed reports whether any byte has been written to the overflow
// buffer.
func (m *Message) Overflowed() bool { return m.offset2 > 0 }

// LastError returns the failure recorded by the most recent body operation.
func (m *Message) LastError() error { return m.lastErr }

// HeaderPut stamps the pending header. The words field is computed from the
// body cursors when the message is serialized.
func (m *Message) HeaderPut(typ, flags uint8) {
	m.typ = typ
	m.flags = flags
}

// Reset returns the message to its initial state, releasing the overflow
// buffer.
func (m *Message) Reset() {
	m.typ = 0
	m.flags = 0
	m.words = 0
	m.body2 = nil
	m.offset1 = 0
	m.offset2 = 0
	m.rpos = 0
	m.split = 0
	m.lastErr = nil
}

// Close releases the overflow buffer. The message must not be used after.
func (m *Message) Close() {
	m.body2 = nil
}

// alloc reserves size bytes at the write cursor and returns the slice to
// fill. While the static buffer has room the reservation lands there; the
// first reservation that does not fit switches all subsequent writes to the
// overflow buffer, abandoning any static tail.
func (m *Message) alloc(size int) ([]byte, error) {
	if size > maxFrameLen {
		m.lastErr = ErrNoMem
		return nil, ErrNoMem
	}
	if m.body2 == nil {
		if m.offset1+size <= BufLen {
			b := m.body1[m.offset1 : m.offset1+size]
			m.offset1 += size
			return b, nil
		}
		capacity := BufLen
		for capacity < size {
			capacity *= 2
		}
		m.body2 = make([]byte, 0, capacity)
	}
	if m.offset2+size > cap(m.body2) {
		capacity := cap(m.body2)
		for capacity < m.offset2+size {
			capacity *= 2
		}
		grown := make([]byte, m.offset2, capacity)
		copy(grown, m.body2)
		m.body2 = grown
	}
	m.body2 = m.body2[:m.offset2+size]
	b := m.body2[m.offset2 : m.offset2+size]
	m.offset2 += size
	return b, nil
}

// BodyPutUint64 appends an 8-byte big-endian unsigned integer.
func (m *Message) BodyPutUint64(v uint64) error {
	b, err := m.alloc(WordSize)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, v)
	return nil
}

// BodyPutInt64 appends an 8-byte big-endian signed integer.
func (m *Message) BodyPutInt64(v int64) error {
	return m.BodyPutUint64(uint64(v))
}

// BodyPutFloat64 appends the IEEE-754 bits of v as an 8-byte big-endian
// word.
func (m *Message) BodyPutFloat64(v float64) error {
	return m.BodyPutUint64(math.Float64bits(v))
}

// BodyPutText appends s with a trailing null byte, zero-padded to the next
// word boundary.
func (m *Message) BodyPutText(s string) error {
	n := len(s) + 1
	b, err := m.alloc(Align(n))
	if err != nil {
		return err
	}
	copy(b, s)
	for i := len(s); i < len(b); i++ {
		b[i] = 0
	}
	return nil
}

// BodyPutBlob appends a 64-bit length followed by the bytes, zero-padded to
// the next word boundary.
func (m *Message) BodyPutBlob(data []byte) error {
	if err := m.BodyPutUint64(uint64(len(data))); err != nil {
		return err
	}
	b, err := m.alloc(Align(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	for i := len(data); i < len(b); i++ {
		b[i] = 0
	}
	return nil
}

// BodyPutRaw appends the given bytes verbatim, zero-padded to the next word
// boundary. Used for packed row headers.
func (m *Message) BodyPutRaw(data []byte) error {
	b, err := m.alloc(Align(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	for i := len(data); i < len(b); i++ {
		b[i] = 0
	}
	return nil
}

// limit returns the declared body length in bytes for the read path.
func (m *Message) limit() int {
	return int(m.words) * WordSize
}

// readSplit returns the logical offset at which the overflow buffer starts
// on the read path. A message that was never rewound or received reads from
// the static buffer.
func (m *Message) readSplit() int {
	if m.split > 0 || m.body2 != nil && m.offset1 == 0 {
		return m.split
	}
	return BufLen
}

// readAt consumes size bytes at the read cursor and returns them as a
// contiguous slice.
func (m *Message) readAt(size int) ([]byte, error) {
	if m.rpos+size > m.limit() {
		m.lastErr = ErrEOM
		return nil, ErrEOM
	}
	split := m.readSplit()
	if m.rpos < split {
		if m.rpos+size > split {
			m.lastErr = ErrParse
			return nil, ErrParse
		}
		b := m.body1[m.rpos : m.rpos+size]
		m.rpos += size
		return b, nil
	}
	b := m.body2[m.rpos-split : m.rpos-split+size]
	m.rpos += size
	return b, nil
}

// segment returns the unread bytes of the buffer the read cursor currently
// points into, clipped to the declared body length.
func (m *Message) segment() []byte {
	end := m.limit()
	split := m.readSplit()
	if m.rpos < split {
		if end > split {
			end = split
		}
		if end > BufLen {
			end = BufLen
		}
		return m.body1[m.rpos:end]
	}
	return m.body2[m.rpos-split : end-split]
}

// BodyGetUint64 consumes an 8-byte big-endian unsigned integer.
func (m *Message) BodyGetUint64() (uint64, error) {
	b, err := m.readAt(WordSize)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// BodyGetInt64 consumes an 8-byte big-endian signed integer.
func (m *Message) BodyGetInt64() (int64, error) {
	v, err := m.BodyGetUint64()
	return int64(v), err
}

// BodyGetFloat64 consumes an 8-byte big-endian word and reinterprets it as
// an IEEE-754 double.
func (m *Message) BodyGetFloat64() (float64, error) {
	v, err := m.BodyGetUint64()
	return math.Float64frombits(v), err
}

// BodyGetUint8 consumes a single byte. The cursor advances by one; callers
// that move on to word-sized values must realign with BodyAlign.
func (m *Message) BodyGetUint8() (uint8, error) {
	b, err := m.readAt(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// BodyAlign rounds the read cursor up to the next word boundary.
func (m *Message) BodyAlign() {
	m.rpos = Align(m.rpos)
}

// BodyGetText consumes a null-terminated string and skips its padding.
func (m *Message) BodyGetText() (string, error) {
	if m.rpos >= m.limit() {
		m.lastErr = ErrEOM
		return "", ErrEOM
	}
	seg := m.segment()
	for i := 0; i < len(seg); i++ {
		if seg[i] == 0 {
			s := string(seg[:i])
			m.rpos += Align(i + 1)
			return s, nil
		}
	}
	m.lastErr = ErrParse
	return "", ErrParse
}

// BodyGetBlob consumes a length-prefixed byte slice and skips its padding.
// The returned slice aliases the message body.
func (m *Message) BodyGetBlob() ([]byte, error) {
	n, err := m.BodyGetUint64()
	if err != nil {
		return nil, err
	}
	if n > maxFrameLen {
		m.lastErr = ErrParse
		return nil, ErrParse
	}
	b, err := m.readAt(Align(int(n)))
	if err != nil {
		return nil, err
	}
	return b[:n], nil
}

// Rewind seals the encoded body and positions the read cursor at its start,
// so the message can be decoded in place.
func (m *Message) Rewind() {
	m.words = uint32((m.offset1 + m.offset2) / WordSize)
	m.rpos = 0
	m.split = m.offset1
}

// WriteTo serializes the header and body to w. The words field is computed
// from the body cursors.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	m.words = uint32((m.offset1 + m.offset2) / WordSize)

	var header [HeaderLen]byte
	binary.BigEndian.PutUint32(header[0:], m.words)
	header[4] = m.typ
	header[5] = m.flags

	var total int64
	for _, chunk := range [][]byte{header[:], m.body1[:m.offset1], m.body2[:m.offset2]} {
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadFrom reads one frame from r: the fixed header, then words*8 body
// bytes. Bodies larger than the static buffer are read entirely into the
// overflow buffer so that no value straddles the two.
func (m *Message) ReadFrom(r io.Reader) error {
	var header [HeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	words := binary.BigEndian.Uint32(header[0:])
	n := int(words) * WordSize
	if n > maxFrameLen {
		return fmt.Errorf("%w: frame of %d words", ErrParse, words)
	}

	m.Reset()
	m.words = words
	m.typ = header[4]
	m.flags = header[5]

	var body []byte
	if n <= BufLen {
		body = m.body1[:n]
		m.split = BufLen
	} else {
		m.body2 = make([]byte, n)
		body = m.body2
		m.split = 0
	}
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	return nil
}
