// Package serial turns the receiver micro-controller's chunked text stream
// into newline-delimited lines and feeds them to a handler. The underlying
// transport (a WebSocket bridge from the browser's serial connection) only
// guarantees arbitrary split points, so a carry-over buffer reassembles
// lines across chunks.
package serial

import "strings"

// LineFramer buffers arbitrary chunks and emits complete lines. A trailing
// partial line is held until the terminating newline arrives; it is never
// emitted on its own.
type LineFramer struct {
	buf strings.Builder
}

// Push appends a chunk and returns the complete lines it closed, in order.
func (f *LineFramer) Push(chunk string) []string {
	if chunk == "" {
		return nil
	}
	f.buf.WriteString(chunk)

	data := f.buf.String()
	if !strings.Contains(data, "\n") {
		return nil
	}

	parts := strings.Split(data, "\n")
	f.buf.Reset()
	f.buf.WriteString(parts[len(parts)-1]) // keep incomplete line in buffer
	return parts[:len(parts)-1]
}

// Pending returns the buffered partial line, for diagnostics.
func (f *LineFramer) Pending() string {
	return f.buf.String()
}
