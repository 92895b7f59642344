// Package framer implements the byte-stream to message-payload transform
// described for the serial link: frames are delimited by an EOT byte,
// two checksum bytes (owned by an external codec, never inspected here)
// and a trailing newline.
package framer

import (
	"bytes"

	"gridctl/internal/coreerr"
)

const (
	eot byte = 0x04
	lf  byte = 0x0A

	// maxBuffer bounds how long the Framer will accumulate bytes without
	// seeing a delimiter before giving up and resetting.
	maxBuffer = 1 << 20 // 1 MiB
)

// Framer accumulates inbound bytes and extracts payloads. It knows nothing
// about class payloads or checksums — only the EOT-before-newline signature.
// Not safe for concurrent use; callers serialize access (the Link does this
// from its single reader goroutine).
type Framer struct {
	buf []byte
}

// New returns an empty Framer.
func New() *Framer {
	return &Framer{buf: make([]byte, 0, 4096)}
}

// Push appends chunk to the internal buffer and extracts every complete
// payload now available. Returned payload slices are copies, safe to retain
// past the next Push call.
//
// If the buffer grows to maxBuffer bytes without yielding a delimiter, the
// buffer is discarded and a Framing error is returned; any payloads already
// extracted during this call are still returned alongside the error.
func (f *Framer) Push(chunk []byte) ([][]byte, error) {
	f.buf = append(f.buf, chunk...)

	var out [][]byte
	scanFrom := 0
	for {
		idx := bytes.IndexByte(f.buf[scanFrom:], lf)
		if idx < 0 {
			break
		}
		j := scanFrom + idx
		if j >= 3 && f.buf[j-3] == eot {
			payload := make([]byte, j)
			copy(payload, f.buf[:j])
			out = append(out, payload)
			f.buf = f.buf[j+1:]
			scanFrom = 0
			continue
		}
		// Newline that isn't a frame terminator (e.g. a checksum byte that
		// happens to equal 0x0A) — keep scanning past it.
		scanFrom = j + 1
	}

	if len(f.buf) >= maxBuffer {
		f.buf = f.buf[:0]
		return out, coreerr.New(coreerr.Framing, "framer.Push", "buffer overflow with no delimiter")
	}
	return out, nil
}

// Reset discards any partially accumulated bytes. Used when the stream ends;
// a dangling partial payload is never emitted.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// Pending reports how many unconsumed bytes are currently buffered, mostly
// useful for tests and diagnostics.
func (f *Framer) Pending() int { return len(f.buf) }

// Frame applies the trivial outbound framing: payload followed by a single
// newline. The Framer only decodes; encoding is this one line, kept here so
// callers never need to remember the asymmetry.
func Frame(payload []byte) []byte {
	out := make([]byte, len(payload)+1)
	copy(out, payload)
	out[len(payload)] = lf
	return out
}
