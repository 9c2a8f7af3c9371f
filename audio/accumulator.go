// Package audio holds per-utterance audio buffering and the pitch estimate
// taken from a finished utterance.
package audio

import (
	"bytes"
	"sync"
)

// Accumulator collects the frames of one utterance in arrival order.
// DrainAndReset is the only way to read it back.
type Accumulator struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	frames int
}

func NewAccumulator() *Accumulator { return &Accumulator{} }

// Append adds a frame to the end of the buffer. Frames are never reordered
// or deduplicated.
func (a *Accumulator) Append(frame []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Write(frame)
	a.frames++
}

// DrainAndReset returns everything appended since the last drain and leaves
// the accumulator empty. The returned slice is owned by the caller.
func (a *Accumulator) DrainAndReset() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]byte, a.buf.Len())
	copy(out, a.buf.Bytes())
	a.buf.Reset()
	a.frames = 0
	return out
}

// Empty reports whether no audio bytes are pending. Zero-length frames
// count toward Stats but not here.
func (a *Accumulator) Empty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Len() == 0
}

// Stats returns the frame and byte counts of the pending utterance.
func (a *Accumulator) Stats() (frames, size int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames, a.buf.Len()
}
