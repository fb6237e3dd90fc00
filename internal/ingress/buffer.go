package ingress

import (
	"bytes"
	"fmt"
	"sync"
)

// FrameBuffer is an append-only log of the audio frames received on one
// connection. The first frame is remembered as the header: WAV ingress puts
// the RIFF header there, raw PCM puts ordinary audio. Snapshots taken
// mid-stream are prepended with the header so a window stays decodable on
// its own.
//
// Safe for concurrent use.
type FrameBuffer struct {
	mu     sync.Mutex
	frames [][]byte
	size   int
}

// NewFrameBuffer returns an empty buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Append records one frame. The bytes are copied; the caller may reuse the
// slice. Empty frames are ignored.
func (b *FrameBuffer) Append(frame []byte) {
	if len(frame) == 0 {
		return
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)

	b.mu.Lock()
	b.frames = append(b.frames, cp)
	b.size += len(cp)
	b.mu.Unlock()
}

// Count returns the number of frames recorded so far.
func (b *FrameBuffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Header returns the first recorded frame, or nil before any frame arrived.
func (b *FrameBuffer) Header() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return nil
	}
	return b.frames[0]
}

// FullPayload returns every frame concatenated in arrival order.
func (b *FrameBuffer) FullPayload() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.size)
	for _, f := range b.frames {
		out = append(out, f...)
	}
	return out
}

// SnapshotFrom returns the frames with index >= offset concatenated. A
// snapshot that starts mid-stream (offset > 0) is prepended with the header
// unless it already begins with those bytes. offset == Count() yields nil;
// anything beyond is an error.
func (b *FrameBuffer) SnapshotFrom(offset int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset < 0 || offset > len(b.frames) {
		return nil, fmt.Errorf("ingress: snapshot offset %d out of range (%d frames)", offset, len(b.frames))
	}
	if offset == len(b.frames) {
		return nil, nil
	}

	var out []byte
	if offset > 0 {
		header := b.frames[0]
		if !bytes.HasPrefix(b.frames[offset], header) {
			out = append(out, header...)
		}
	}
	for _, f := range b.frames[offset:] {
		out = append(out, f...)
	}
	return out, nil
}
