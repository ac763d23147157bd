// Package encode implements the video encode pipeline stage: popping
// raw frames, submitting them to a hardware H.264 encoder capability, and
// pushing the resulting compressed packets downstream with the source
// frame's timestamp carried through unchanged.
package encode

import (
	"errors"

	"github.com/haldane-systems/avrec/internal/errkind"
	"github.com/haldane-systems/avrec/internal/logging"
	"github.com/haldane-systems/avrec/internal/media"
	"github.com/haldane-systems/avrec/internal/queue"
	"github.com/haldane-systems/avrec/internal/stats"
)

// H264Encoder is the capability interface the concrete hardware H.264
// encoder binding (or a test double) must provide.
type H264Encoder interface {
	Init(width, height, fps, bitrateBps int) error
	// Encode submits one input frame (in the encoder's expected aligned
	// layout) and returns zero or one compressed packet. Zero bytes with a
	// nil error means "no output ready yet" for this input, not a failure.
	Encode(input []byte) (data []byte, keyframe bool, err error)
	Deinit() error
}

// Config configures the video encode stage's target geometry and bitrate.
type Config struct {
	Width      int
	Height     int
	FPS        int
	BitrateBps int
}

// BitrateBounds returns the encoder's target bitrate window and GOP length:
// bps_min = bps*15/16, bps_max = bps*17/16, gop = 2*fps.
func (c Config) BitrateBounds() (min, max, gop int) {
	return c.BitrateBps * 15 / 16, c.BitrateBps * 17 / 16, 2 * c.FPS
}

// AlignedFrameSize returns the size of the hardware-visible input buffer
// the encoder expects: width and height rounded up to the next multiple of
// 16, in a 4:2:0 (3/2 bytes-per-pixel) layout.
func (c Config) AlignedFrameSize() int {
	return ceil16(c.Width) * ceil16(c.Height) * 3 / 2
}

func ceil16(v int) int {
	return (v + 15) &^ 15
}

// Stage is the video encode pipeline stage.
type Stage struct {
	enc   H264Encoder
	log   *logging.Logger
	stats *stats.Stats
	cfg   Config

	in  *queue.Queue[*media.VideoFrame]
	out *queue.Queue[*media.EncodedPacket]
}

// NewStage creates a video encode stage reading from in and writing to out.
func NewStage(enc H264Encoder, log *logging.Logger, st *stats.Stats, cfg Config, in *queue.Queue[*media.VideoFrame], out *queue.Queue[*media.EncodedPacket]) *Stage {
	return &Stage{enc: enc, log: log, stats: st, cfg: cfg, in: in, out: out}
}

// Run initializes the encoder and loops popping raw frames, submitting them
// for compression, and pushing resulting packets downstream until In is
// drained or Out is closed.
func (s *Stage) Run() error {
	if err := s.enc.Init(s.cfg.Width, s.cfg.Height, s.cfg.FPS, s.cfg.BitrateBps); err != nil {
		return errors.Join(errkind.ErrDeviceUnavailable, err)
	}
	defer s.enc.Deinit()

	aligned := s.cfg.AlignedFrameSize()

	for {
		frame, result := s.in.Pop()
		if result == queue.PopDrained {
			return nil
		}

		input := padOrTruncate(frame.Data, aligned)

		data, keyframe, err := s.enc.Encode(input)
		if err != nil {
			s.stats.AddDrop(1)
			s.log.Warn("encode submission failed", "error", err)
			continue
		}
		if len(data) == 0 {
			continue
		}

		packet := &media.EncodedPacket{
			Data:     data,
			PTSUs:    frame.PTSUs,
			Keyframe: keyframe,
		}

		switch s.out.Push(packet) {
		case queue.PushClosed:
			return nil
		case queue.PushOK:
			s.stats.AddVideoFrame(len(data))
		case queue.PushFull:
			s.stats.AddDrop(1)
		}
	}
}

// padOrTruncate returns a buffer of exactly size bytes: data padded with
// zeroes if short, or truncated if long. It always returns a fresh copy, so
// it never mutates or aliases data.
func padOrTruncate(data []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, data)
	return out
}
