package events

import "strings"

// eofMarker terminates a FinishLynx scoreboard publication.
const eofMarker = `],"eof":"1"}`

// FrameAssembler accumulates chunks from one connection until the eof
// marker appears, then hands the whole buffer back as a single message.
// The buffer is treated monolithically: if two device publications land
// before a read they are emitted as one (and fail decoding), matching the
// device's paced output where this does not occur in practice.
type FrameAssembler struct {
	buf strings.Builder
}

// Append adds a chunk to the buffer, stripping newlines the device
// inserts between packets. If the buffer now contains the eof marker the
// accumulated message is returned and the buffer resets; otherwise more
// data is awaited.
func (f *FrameAssembler) Append(chunk []byte) (string, bool) {
	f.buf.WriteString(strings.ReplaceAll(string(chunk), "\n", ""))
	if !strings.Contains(f.buf.String(), eofMarker) {
		return "", false
	}
	msg := f.buf.String()
	f.buf.Reset()
	return msg, true
}

// Reset discards buffered partial input, used when a connection opens or
// closes.
func (f *FrameAssembler) Reset() {
	f.buf.Reset()
}

// Len reports the number of buffered bytes awaiting a marker.
func (f *FrameAssembler) Len() int {
	return f.buf.Len()
}
