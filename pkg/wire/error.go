package wire

import "fmt"

// errorCap bounds the error scratch buffer. Overlong messages are truncated
// rather than allocated for.
const errorCap = 256

// Error is a bounded string scratch used to carry a formatted error message
// across codec layers without allocating. The zero value is empty and ready
// to use.
type Error struct {
	buf [errorCap]byte
	n   int
}

// Printf replaces the error message with the formatted string.
func (e *Error) Printf(format string, args ...interface{}) {
	e.n = 0
	e.append(fmt.Sprintf(format, args...))
}

// Wrapf prepends a formatted message to src's current message, joined by
// ": ", and stores the result in e. It is safe to pass e itself as src.
func (e *Error) Wrapf(src *Error, format string, args ...interface{}) {
	old := src.String()
	e.n = 0
	e.append(fmt.Sprintf(format, args...))
	if old != "" {
		e.append(": ")
		e.append(old)
	}
}

// String returns the current message.
func (e *Error) String() string {
	return string(e.buf[:e.n])
}

// IsEmpty reports whether no message has been set.
func (e *Error) IsEmpty() bool {
	return e.n == 0
}

// Reset clears the message.
func (e *Error) Reset() {
	e.n = 0
}

func (e *Error) append(s string) {
	n := copy(e.buf[e.n:], s)
	e.n += n
}
