package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haldane-systems/avrec/internal/avclock"
	"github.com/haldane-systems/avrec/internal/avsync"
	"github.com/haldane-systems/avrec/internal/logging"
	"github.com/haldane-systems/avrec/internal/media"
	"github.com/haldane-systems/avrec/internal/queue"
	"github.com/haldane-systems/avrec/internal/sink/sinkfake"
	"github.com/haldane-systems/avrec/internal/stats"
)

type stopRecorder struct {
	called int
}

func (s *stopRecorder) RequestStop() { s.called++ }

func TestVideoStage_WritesBytesAndNotifiesSync(t *testing.T) {
	buf := &sinkfake.Buffer{}
	in := queue.New[*media.EncodedPacket](4, nil)
	sy := avsync.New(avclock.New(), 30)
	stop := &stopRecorder{}

	stage := NewVideoStage(buf, sy, logging.Discard(), stop, in)

	require.Equal(t, queue.PushOK, in.Push(&media.EncodedPacket{Data: []byte{1, 2, 3}, PTSUs: 1000}))
	require.Equal(t, queue.PushOK, in.Push(&media.EncodedPacket{Data: []byte{4, 5}, PTSUs: 2000}))
	in.Close()

	require.NoError(t, stage.Run())

	assert.Equal(t, []byte{1, 2, 3, 4, 5}, buf.Bytes())
	assert.True(t, buf.Closed())
	assert.Equal(t, int64(1000), stage.LastPTSDeltaUs())
	assert.Zero(t, stop.called)

	// Both packets reached OnVideo: 1000us apart at 30fps leaves one video
	// jitter sample of |1000-33333|/1000 ms.
	rep := sy.Report1s(0)
	require.True(t, rep.VideoJitterP50Ms.Valid)
	assert.InDelta(t, 32.333, rep.VideoJitterP50Ms.Value, 1e-9)
}

func TestVideoStage_ShortWriteRequestsStop(t *testing.T) {
	in := queue.New[*media.EncodedPacket](4, nil)
	sy := avsync.New(avclock.New(), 30)
	stop := &stopRecorder{}

	stage := NewVideoStage(sinkfake.ShortWriter{}, sy, logging.Discard(), stop, in)

	require.Equal(t, queue.PushOK, in.Push(&media.EncodedPacket{Data: []byte{1, 2, 3, 4}, PTSUs: 1000}))
	in.Close()

	err := stage.Run()
	assert.Error(t, err)
	assert.Equal(t, 1, stop.called)
}

func TestAudioStage_WritesChunksAndCountsStats(t *testing.T) {
	buf := &sinkfake.Buffer{}
	in := queue.New[*media.AudioChunk](4, nil)
	sy := avsync.New(avclock.New(), 30)
	st := stats.New()
	stop := &stopRecorder{}

	stage := NewAudioStage(buf, sy, st, logging.Discard(), stop, in)

	require.Equal(t, queue.PushOK, in.Push(&media.AudioChunk{
		Data: []byte{1, 2}, SampleRate: 48000, Frames: 1, PTSUs: 0,
	}))
	in.Close()

	require.NoError(t, stage.Run())
	assert.Equal(t, int64(1), st.Tick().AudioChunks)
}
