package avsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/haldane-systems/avrec/internal/avclock"
)

func TestPercentileNearestRank_SingleElement(t *testing.T) {
	got := percentileNearestRank([]float64{5}, 0.50)
	assert.Equal(t, 5.0, got)
	got = percentileNearestRank([]float64{5}, 0.95)
	assert.Equal(t, 5.0, got)
}

func TestPercentileNearestRank_RankFormula(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	// rank = ceil(0.5*10) = 5 -> sorted[4] = 5
	assert.Equal(t, 5.0, percentileNearestRank(sorted, 0.50))
	// rank = ceil(0.95*10) = 10 -> sorted[9] = 10
	assert.Equal(t, 10.0, percentileNearestRank(sorted, 0.95))
}

func TestPercentilePair_EmptyIsInvalid(t *testing.T) {
	p50, p95 := percentilePair(nil)
	assert.False(t, p50.Valid)
	assert.False(t, p95.Valid)
}

func TestNew_NonPositiveFPSClampsTo30(t *testing.T) {
	clock := avclock.New()
	s := New(clock, 0)
	require.Equal(t, int64(1_000_000)/30, s.expectedVideoDeltaUs)

	s = New(clock, -5)
	require.Equal(t, int64(1_000_000)/30, s.expectedVideoDeltaUs)
}

func TestOffset_LatchesOnceAndIsIdempotent(t *testing.T) {
	clock := avclock.New()
	s := New(clock, 30)

	s.OnVideo(1000)
	s.OnAudio(1500, 1024, 48000)
	require.True(t, s.offsetLocked)
	require.Equal(t, int64(500), s.offsetUs)

	// Further video/audio PTS must not move the already-locked offset.
	s.OnVideo(5000)
	s.OnAudio(9000, 1024, 48000)
	assert.Equal(t, int64(500), s.offsetUs)
	assert.True(t, s.offsetLocked)
}

func TestOnAudio_ZeroSampleRateIsNoOp(t *testing.T) {
	clock := avclock.New()
	s := New(clock, 30)

	s.OnAudio(1000, 1024, 0)
	assert.False(t, s.hasAudio0)
	assert.Empty(t, s.audioJitterMs)
}

func TestOnVideo_JitterIsZeroAtExactCadence(t *testing.T) {
	clock := avclock.New()
	s := New(clock, 30)

	s.OnVideo(0)
	s.OnVideo(s.expectedVideoDeltaUs)
	require.Len(t, s.videoJitterMs, 1)
	assert.Zero(t, s.videoJitterMs[0])

	// An off-cadence frame contributes the absolute deviation in ms.
	s.OnVideo(2*s.expectedVideoDeltaUs + 1000)
	require.Len(t, s.videoJitterMs, 2)
	assert.InDelta(t, 1.0, s.videoJitterMs[1], 1e-9)
}

func TestReport1s_DriftDirectionSigns(t *testing.T) {
	clock := avclock.New()
	s := New(clock, 30)

	s.driftBaseSet = true
	s.driftT0Us = 0
	s.residual0Ms = 0
	s.offsetLocked = true
	s.residualMs = []float64{10}

	rep := s.Report1s(1_000_000)
	require.True(t, rep.DriftMsps.Valid)
	assert.Equal(t, "video_faster_or_audio_slower", rep.DriftDirection)
	assert.InDelta(t, 10.0, rep.DriftMsps.Value, 1e-9)
}

// TestReport1s_DriftInjectionConverges simulates an audio clock running at
// 0.999x real speed: video pts advance one real second per report window
// while audio pts advance only 0.999s. The reported drift must converge to
// +1 ms/s with the matching direction.
func TestReport1s_DriftInjectionConverges(t *testing.T) {
	clock := avclock.New()
	s := New(clock, 30)

	s.OnVideo(0)
	s.OnAudio(0, 1024, 48000)
	require.True(t, s.offsetLocked)

	var rep Report
	for sec := int64(1); sec <= 6; sec++ {
		s.OnAudio(sec*999_000, 1024, 48000)
		s.OnVideo(sec * 1_000_000)
		rep = s.Report1s(sec * 1_000_000)
	}

	require.True(t, rep.DriftMsps.Valid)
	assert.InDelta(t, 1.0, rep.DriftMsps.Value, 0.05)
	assert.Equal(t, "video_faster_or_audio_slower", rep.DriftDirection)
}

func TestReport1s_ResetsSampleRings(t *testing.T) {
	clock := avclock.New()
	s := New(clock, 30)
	s.videoJitterMs = []float64{1, 2, 3}
	s.audioJitterMs = []float64{1, 2}

	s.Report1s(0)
	assert.Empty(t, s.videoJitterMs)
	assert.Empty(t, s.audioJitterMs)
}

// TestPercentileNearestRank_AlwaysFromInput is a property test: the
// nearest-rank percentile of any sample set is always one of the input
// values, and p50 never exceeds p95 for q in [0.5, 0.95].
func TestPercentileNearestRank_AlwaysFromInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		samples := rapid.SliceOfN(rapid.Float64Range(-1000, 1000), 1, 64).Draw(t, "samples")
		sorted := append([]float64(nil), samples...)
		p50, p95 := percentilePair(sorted)

		require.True(t, p50.Valid)
		require.True(t, p95.Valid)
		if p50.Value > p95.Value {
			t.Fatalf("p50 %v > p95 %v", p50.Value, p95.Value)
		}
		assertIsMember(t, samples, p50.Value)
		assertIsMember(t, samples, p95.Value)
	})
}

func assertIsMember(t *rapid.T, samples []float64, v float64) {
	for _, s := range samples {
		if s == v {
			return
		}
	}
	t.Fatalf("%v not found among input samples", v)
}
