// Package capturefake provides synthetic capture.VideoSource and
// capture.PCMSource implementations for tests: deterministic frame/chunk
// production without any real hardware, including controllable sequence
// gaps and a configurable frame cadence.
package capturefake

import (
	"sync"
	"time"

	"github.com/haldane-systems/avrec/internal/capture"
)

// VideoSource produces frames at a fixed cadence with a caller-supplied
// sequence number stream, letting tests exercise gap-drop accounting
// deterministically.
type VideoSource struct {
	FrameInterval time.Duration
	MaxFrames     int
	// Sequences, if non-empty, is consumed one entry per DequeueOne call in
	// order instead of an auto-incrementing counter, letting a test inject
	// a gap (e.g. ..., 100, 103, 104, ...).
	Sequences []uint64

	mu      sync.Mutex
	seq     uint64
	emitted int
	closed  bool
}

// Open is a no-op; the fake needs no real device.
func (v *VideoSource) Open(device string, width, height int) error { return nil }

// Start is a no-op.
func (v *VideoSource) Start() error { return nil }

// DequeueOne returns one synthetic 1280x720-shaped buffer per call, up to
// MaxFrames (0 means unlimited), sleeping FrameInterval to simulate capture
// cadence.
func (v *VideoSource) DequeueOne() (capture.VideoBuffer, uint64, capture.DequeueStatus, error) {
	v.mu.Lock()
	if v.closed || (v.MaxFrames > 0 && v.emitted >= v.MaxFrames) {
		v.mu.Unlock()
		return capture.VideoBuffer{}, 0, capture.DequeueFatal, nil
	}
	var seq uint64
	if len(v.Sequences) > 0 {
		idx := v.emitted
		if idx >= len(v.Sequences) {
			v.mu.Unlock()
			return capture.VideoBuffer{}, 0, capture.DequeueFatal, nil
		}
		seq = v.Sequences[idx]
	} else {
		v.seq++
		seq = v.seq
	}
	v.emitted++
	v.mu.Unlock()

	if v.FrameInterval > 0 {
		time.Sleep(v.FrameInterval)
	}

	const w, h = 1280, 720
	luma := make([]byte, w*h)
	chroma := make([]byte, w*h/2)
	return capture.VideoBuffer{
		Planes: [][]byte{luma, chroma},
		Width:  w,
		Height: h,
		Stride: w,
	}, seq, capture.DequeueGotFrame, nil
}

// Requeue is a no-op; the fake allocates a fresh buffer every call.
func (v *VideoSource) Requeue(buf capture.VideoBuffer) error { return nil }

// Close marks the fake closed so a subsequent DequeueOne returns fatal.
func (v *VideoSource) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	return nil
}

// PCMSource produces a fixed-size chunk of silence every ReadPeriod call.
type PCMSource struct {
	mu sync.Mutex
}

// Open is a no-op.
func (p *PCMSource) Open(device string, sampleRate, channels int) error { return nil }

// ReadPeriod fills buf with silence and reports it fully read.
func (p *PCMSource) ReadPeriod(buf []byte) (int, error) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

// Close is a no-op.
func (p *PCMSource) Close() error { return nil }
