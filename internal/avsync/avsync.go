// Package avsync computes per-second A/V timing quality — offset, aligned
// residual, drift, and jitter percentiles — from paired video/audio
// timestamps. All state lives behind one mutex; the sort done once a second
// in Report1s is bounded (at most 256 float64s) and acceptable to do under
// lock.
package avsync

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/haldane-systems/avrec/internal/avclock"
)

func formatMs(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

const (
	maxVideoJitterSamples = 128
	maxAudioJitterSamples = 256
	maxOffsetSamples      = 128
	maxResidualSamples    = 128

	defaultFPS = 30
)

// Sync tracks the running A/V synchronization state for one session. Create
// one per recording; it is not reusable across sessions.
type Sync struct {
	clock *avclock.Clock

	mu sync.Mutex

	hasVideo0    bool
	video0Us     int64
	hasAudio0    bool
	audio0Us     int64
	offsetLocked bool
	offsetUs     int64

	hasLastVideo bool
	lastVideoUs  int64

	hasLastAudio        bool
	lastAudioUs         int64
	hasLastAudioMeta    bool
	lastAudioFrames     int
	lastAudioSampleRate int
	hasLastAudioArrival bool
	lastAudioArrivalUs  int64

	expectedVideoDeltaUs int64

	videoJitterMs   []float64
	audioJitterMs   []float64
	offsetSamplesMs []float64
	residualMs      []float64

	driftBaseSet  bool
	driftT0Us     int64
	residual0Ms   float64
}

// New creates a Sync for the given clock and target video frame rate. A
// non-positive fps is clamped to 30.
func New(clock *avclock.Clock, fps int) *Sync {
	if fps <= 0 {
		fps = defaultFPS
	}
	return &Sync{
		clock:                clock,
		expectedVideoDeltaUs: int64(1_000_000) / int64(fps),
	}
}

func (s *Sync) tryLockOffset() {
	if s.offsetLocked {
		return
	}
	if s.hasVideo0 && s.hasAudio0 {
		s.offsetUs = s.audio0Us - s.video0Us
		s.offsetLocked = true
	}
}

// OnVideo records the presentation timestamp of a video frame as it is
// written to the sink.
func (s *Sync) OnVideo(ptsUs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasVideo0 {
		s.hasVideo0 = true
		s.video0Us = ptsUs
	}
	s.tryLockOffset()

	if s.hasLastAudio {
		offMs := float64(ptsUs-s.lastAudioUs) / 1000.0
		if len(s.offsetSamplesMs) < maxOffsetSamples {
			s.offsetSamplesMs = append(s.offsetSamplesMs, offMs)
		}
		if s.offsetLocked {
			resMs := float64((ptsUs+s.offsetUs)-s.lastAudioUs) / 1000.0
			if len(s.residualMs) < maxResidualSamples {
				s.residualMs = append(s.residualMs, resMs)
			}
		}
	}

	if s.hasLastVideo && ptsUs > s.lastVideoUs {
		deltaUs := ptsUs - s.lastVideoUs
		jitterMs := math.Abs(float64(deltaUs-s.expectedVideoDeltaUs) / 1000.0)
		if len(s.videoJitterMs) < maxVideoJitterSamples {
			s.videoJitterMs = append(s.videoJitterMs, jitterMs)
		}
	}

	s.hasLastVideo = true
	s.lastVideoUs = ptsUs
}

// OnAudio records the presentation timestamp, frame count, and sample rate
// of an audio chunk as it is written to the sink. sampleRate == 0 is a
// no-op: it would make the expected inter-arrival time undefined.
func (s *Sync) OnAudio(ptsUs int64, frames, sampleRate int) {
	if sampleRate == 0 {
		return
	}
	nowUs := s.clock.NowUS()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasAudio0 {
		s.hasAudio0 = true
		s.audio0Us = ptsUs
		s.tryLockOffset()
	}

	if s.hasLastAudioArrival && nowUs > s.lastAudioArrivalUs && s.hasLastAudioMeta {
		deltaUs := nowUs - s.lastAudioArrivalUs
		expectedUs := int64(s.lastAudioFrames) * 1_000_000 / int64(s.lastAudioSampleRate)
		jitterMs := math.Abs(float64(deltaUs-expectedUs) / 1000.0)
		if len(s.audioJitterMs) < maxAudioJitterSamples {
			s.audioJitterMs = append(s.audioJitterMs, jitterMs)
		}
	}

	s.hasLastAudio = true
	s.lastAudioUs = ptsUs
	s.lastAudioFrames = frames
	s.lastAudioSampleRate = sampleRate
	s.hasLastAudioMeta = true
	s.hasLastAudioArrival = true
	s.lastAudioArrivalUs = nowUs
}

// Metric is a possibly-absent floating point measurement. Absent metrics
// format as "n/a", matching the per-second log line's convention.
type Metric struct {
	Value float64
	Valid bool
}

func valid(v float64) Metric { return Metric{Value: v, Valid: true} }

// String renders the metric to three decimal places, or "n/a" when absent.
func (m Metric) String() string {
	if !m.Valid {
		return "n/a"
	}
	return formatMs(m.Value)
}

// Report is the one-second A/V synchronization summary produced by Report1s.
type Report struct {
	Locked bool

	AVOffsetMs Metric
	ResidualMs Metric
	DriftMsps  Metric

	// DriftDirection is one of "stable", "video_faster_or_audio_slower",
	// "video_slower_or_audio_faster", or "n/a".
	DriftDirection string

	VideoJitterP50Ms Metric
	VideoJitterP95Ms Metric
	AudioJitterP50Ms Metric
	AudioJitterP95Ms Metric
}

// Report1s computes the per-second report and resets all four sample rings
// to empty. nowUs is the caller's current monotonic timestamp, used as the
// drift baseline's reference clock.
func (s *Sync) Report1s(nowUs int64) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	vp50, vp95 := percentilePair(s.videoJitterMs)
	ap50, ap95 := percentilePair(s.audioJitterMs)
	offP50, _ := percentilePair(s.offsetSamplesMs)
	resP50, _ := percentilePair(s.residualMs)

	s.videoJitterMs = s.videoJitterMs[:0]
	s.audioJitterMs = s.audioJitterMs[:0]
	s.offsetSamplesMs = s.offsetSamplesMs[:0]
	s.residualMs = s.residualMs[:0]

	rep := Report{
		Locked:           s.offsetLocked,
		VideoJitterP50Ms: vp50,
		VideoJitterP95Ms: vp95,
		AudioJitterP50Ms: ap50,
		AudioJitterP95Ms: ap95,
		DriftDirection:   "n/a",
	}
	rep.AVOffsetMs = offP50
	rep.ResidualMs = resP50

	if resP50.Valid && s.offsetLocked {
		if !s.driftBaseSet {
			s.driftBaseSet = true
			s.driftT0Us = nowUs
			s.residual0Ms = resP50.Value
		} else if nowUs > s.driftT0Us {
			elapsedS := float64(nowUs-s.driftT0Us) / 1_000_000.0
			if elapsedS > 0 {
				drift := (resP50.Value - s.residual0Ms) / elapsedS
				rep.DriftMsps = valid(drift)
				switch {
				case drift > 0:
					rep.DriftDirection = "video_faster_or_audio_slower"
				case drift < 0:
					rep.DriftDirection = "video_slower_or_audio_faster"
				default:
					rep.DriftDirection = "stable"
				}
			}
		}
	}

	return rep
}

// percentilePair sorts samples in place and returns the nearest-rank p50
// and p95. An empty slice yields two invalid Metrics.
func percentilePair(samples []float64) (p50, p95 Metric) {
	if len(samples) == 0 {
		return Metric{}, Metric{}
	}
	sort.Float64s(samples)
	return valid(percentileNearestRank(samples, 0.50)), valid(percentileNearestRank(samples, 0.95))
}

// percentileNearestRank returns the nearest-rank quantile of a sorted slice:
// rank = ceil(q*n), clamped to [1,n].
func percentileNearestRank(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	rank := int(math.Ceil(q * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}
