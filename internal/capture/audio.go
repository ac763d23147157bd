package capture

import (
	"errors"

	"github.com/haldane-systems/avrec/internal/avclock"
	"github.com/haldane-systems/avrec/internal/errkind"
	"github.com/haldane-systems/avrec/internal/logging"
	"github.com/haldane-systems/avrec/internal/media"
	"github.com/haldane-systems/avrec/internal/queue"
)

const (
	framesPerPeriod = 1024
	bitsPerSample   = 16
)

// PCMSource is the capability interface the concrete PCM capture binding
// (or a test double) must provide.
type PCMSource interface {
	// Open prepares interleaved 16-bit LE capture at the given rate and
	// channel count.
	Open(device string, sampleRate, channels int) error
	// ReadPeriod blocks until one full period is captured into buf,
	// returning the number of bytes actually read.
	ReadPeriod(buf []byte) (int, error)
	Close() error
}

// AudioStageConfig configures the audio capture stage.
type AudioStageConfig struct {
	Device     string
	SampleRate int
	Channels   int
}

// AudioStage is the audio capture pipeline stage: it owns a PCMSource,
// reads fixed-size periods, and pushes each as an owned media.AudioChunk
// onto Out with a sample-counted running presentation timestamp.
type AudioStage struct {
	src   PCMSource
	clock *avclock.Clock
	log   *logging.Logger
	cfg   AudioStageConfig

	out *queue.Queue[*media.AudioChunk]
}

// NewAudioStage creates an audio capture stage writing chunks to out.
func NewAudioStage(src PCMSource, clock *avclock.Clock, log *logging.Logger, cfg AudioStageConfig, out *queue.Queue[*media.AudioChunk]) *AudioStage {
	return &AudioStage{src: src, clock: clock, log: log, cfg: cfg, out: out}
}

// Run opens the device and loops reading one period at a time, pushing a
// chunk per period until Out is closed. It always closes the device before
// returning.
func (as *AudioStage) Run() error {
	if err := as.src.Open(as.cfg.Device, as.cfg.SampleRate, as.cfg.Channels); err != nil {
		return errors.Join(errkind.ErrDeviceUnavailable, err)
	}
	defer as.src.Close()

	bytesPerFrame := (bitsPerSample / 8) * as.cfg.Channels
	ptsUs := as.clock.NowUS()

	for {
		buf := make([]byte, framesPerPeriod*bytesPerFrame)

		n, err := as.src.ReadPeriod(buf)
		if err != nil {
			// One recovery attempt on a transient error (underrun / paused
			// device), then give up on this cycle and retry the next one.
			n, err = as.src.ReadPeriod(buf)
			if err != nil {
				as.log.Warn("pcm read failed, continuing", "error", err)
				continue
			}
		}

		frames := n / bytesPerFrame
		if frames == 0 {
			continue
		}

		chunk := &media.AudioChunk{
			Data:           buf[:frames*bytesPerFrame],
			SampleRate:     as.cfg.SampleRate,
			Channels:       as.cfg.Channels,
			BytesPerSample: bitsPerSample / 8,
			Frames:         frames,
			PTSUs:          ptsUs,
		}

		ptsUs += int64(frames) * 1_000_000 / int64(as.cfg.SampleRate)

		if as.out.Push(chunk) == queue.PushClosed {
			return nil
		}
	}
}
