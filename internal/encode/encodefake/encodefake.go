// Package encodefake provides a deterministic encode.H264Encoder stand-in:
// one packet per input frame with a GOP-cadence keyframe flag and an
// optional artificial processing delay. Tests use the delay to starve the
// raw-frame queue; the avrec binary wires it as its encoder in every build,
// since no hardware encoder binding is included.
package encodefake

import (
	"sync"
	"time"
)

// Encoder is a deterministic software stand-in for a hardware H.264
// encoder. It never actually compresses: it emits a zero-filled placeholder
// packet of len(input)/20+1 bytes per call, marking every gopSize-th frame
// as a keyframe.
type Encoder struct {
	// Delay simulates encoder processing time, e.g. to model an encoder
	// that cannot keep up with the capture rate.
	Delay time.Duration

	mu      sync.Mutex
	gopSize int
	count   int
}

// Init records the GOP length (2*fps) used to decide keyframe placement.
func (e *Encoder) Init(width, height, fps, bitrateBps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gopSize = 2 * fps
	if e.gopSize <= 0 {
		e.gopSize = 1
	}
	e.count = 0
	return nil
}

// Encode returns one placeholder packet per call, simulating a fixed
// compression ratio and the configured processing delay.
func (e *Encoder) Encode(input []byte) (data []byte, keyframe bool, err error) {
	if e.Delay > 0 {
		time.Sleep(e.Delay)
	}

	e.mu.Lock()
	isKey := e.count%e.gopSize == 0
	e.count++
	e.mu.Unlock()

	out := make([]byte, len(input)/20+1)
	return out, isKey, nil
}

// Deinit is a no-op.
func (e *Encoder) Deinit() error { return nil }
