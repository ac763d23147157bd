// Package capture implements the video and audio capture pipeline stages
// reading from a hardware capability interface and pushing the result onto
// the stage's output queue. The video stage stamps each frame from the
// monotonic clock and counts a drop when its queue is saturated; the audio
// stage stamps chunks with a sample-counted running timestamp, and a chunk
// that finds its queue full is discarded without being counted.
package capture

import (
	"errors"
	"time"

	"github.com/haldane-systems/avrec/internal/avclock"
	"github.com/haldane-systems/avrec/internal/errkind"
	"github.com/haldane-systems/avrec/internal/logging"
	"github.com/haldane-systems/avrec/internal/media"
	"github.com/haldane-systems/avrec/internal/queue"
	"github.com/haldane-systems/avrec/internal/stats"
)

// DequeueStatus is the outcome of one VideoSource.DequeueOne call.
type DequeueStatus int

const (
	// DequeueGotFrame means a completed hardware buffer is ready.
	DequeueGotFrame DequeueStatus = iota
	// DequeueNoData means the device is non-blocking and has nothing ready
	// yet; the caller should retry after a short sleep.
	DequeueNoData
	// DequeueFatal means the device has failed unrecoverably.
	DequeueFatal
)

// VideoBuffer is one dequeued hardware buffer, holding one byte slice per
// plane in driver-native layout (e.g. a separate luma and chroma plane for
// a multi-plane NV12 format).
type VideoBuffer struct {
	Planes [][]byte
	Width  int
	Height int
	Stride int
}

// VideoSource is the capability interface the concrete V4L2 camera binding
// (or a test double) must provide.
type VideoSource interface {
	Open(device string, width, height int) error
	Start() error
	// DequeueOne returns one completed hardware buffer along with its
	// driver-assigned sequence number, used to detect dropped frames on a
	// gap. When status is DequeueNoData or DequeueFatal, buf is unused.
	DequeueOne() (buf VideoBuffer, seq uint64, status DequeueStatus, err error)
	// Requeue returns a previously dequeued buffer to the driver so its
	// backing memory can be reused for a future capture.
	Requeue(buf VideoBuffer) error
	Close() error
}

// VideoStageConfig configures the video capture stage.
type VideoStageConfig struct {
	Device string
	Width  int
	Height int
}

// VideoStage is the video capture pipeline stage: it owns a VideoSource,
// copies each completed hardware buffer into an owned media.VideoFrame, and
// pushes it onto Out, dropping (and counting) frames when Out is saturated.
type VideoStage struct {
	src   VideoSource
	clock *avclock.Clock
	stats *stats.Stats
	log   *logging.Logger
	cfg   VideoStageConfig

	out *queue.Queue[*media.VideoFrame]

	lastSeq     uint64
	haveLastSeq bool
	frameID     uint64
}

// NewVideoStage creates a video capture stage writing frames to out.
func NewVideoStage(src VideoSource, clock *avclock.Clock, st *stats.Stats, log *logging.Logger, cfg VideoStageConfig, out *queue.Queue[*media.VideoFrame]) *VideoStage {
	return &VideoStage{src: src, clock: clock, stats: st, log: log, cfg: cfg, out: out}
}

// Run opens the device, starts capture, and loops until the device is fatal
// or Out is closed, copying each hardware buffer into a VideoFrame and
// pushing it downstream. It always closes the device before returning.
func (vs *VideoStage) Run() error {
	if err := vs.src.Open(vs.cfg.Device, vs.cfg.Width, vs.cfg.Height); err != nil {
		return errors.Join(errkind.ErrDeviceUnavailable, err)
	}
	defer vs.src.Close()

	if err := vs.src.Start(); err != nil {
		return errors.Join(errkind.ErrDeviceUnavailable, err)
	}

	for {
		buf, seq, status, err := vs.src.DequeueOne()
		switch status {
		case DequeueNoData:
			time.Sleep(time.Millisecond)
			continue
		case DequeueFatal:
			vs.log.Error("video capture fatal", "error", err)
			return errors.Join(errkind.ErrDeviceFatal, err)
		}

		vs.accountGap(seq)

		frame := &media.VideoFrame{
			Data:    concatPlanes(buf.Planes),
			Width:   buf.Width,
			Height:  buf.Height,
			Stride:  buf.Stride,
			PTSUs:   vs.clock.NowUS(),
			FrameID: vs.frameID,
		}
		vs.frameID++

		switch vs.out.TryPush(frame) {
		case queue.PushOK:
			// ownership transferred to the queue
		case queue.PushFull:
			vs.stats.AddDrop(1)
		case queue.PushClosed:
			_ = vs.src.Requeue(buf)
			return nil
		}

		if err := vs.src.Requeue(buf); err != nil {
			vs.log.Warn("video buffer requeue failed", "error", err)
		}
	}
}

// accountGap adds any skipped sequence numbers to the drop counter. A gap
// of cur - last - 1 frames were lost between the previous and current
// dequeue.
func (vs *VideoStage) accountGap(seq uint64) {
	if vs.haveLastSeq && seq > vs.lastSeq+1 {
		vs.stats.AddDrop(int64(seq - vs.lastSeq - 1))
	}
	vs.lastSeq = seq
	vs.haveLastSeq = true
}

// concatPlanes copies every plane into one contiguous buffer, luma first.
func concatPlanes(planes [][]byte) []byte {
	total := 0
	for _, p := range planes {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range planes {
		out = append(out, p...)
	}
	return out
}
