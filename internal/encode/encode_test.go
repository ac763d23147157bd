package encode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haldane-systems/avrec/internal/encode/encodefake"
	"github.com/haldane-systems/avrec/internal/logging"
	"github.com/haldane-systems/avrec/internal/media"
	"github.com/haldane-systems/avrec/internal/queue"
	"github.com/haldane-systems/avrec/internal/stats"
)

func TestConfig_BitrateBounds(t *testing.T) {
	c := Config{BitrateBps: 2_000_000, FPS: 30}
	min, max, gop := c.BitrateBounds()
	assert.Equal(t, 2_000_000*15/16, min)
	assert.Equal(t, 2_000_000*17/16, max)
	assert.Equal(t, 60, gop)
}

func TestConfig_AlignedFrameSize(t *testing.T) {
	c := Config{Width: 1280, Height: 720}
	assert.Equal(t, 1280*720*3/2, c.AlignedFrameSize())

	// Non-multiple-of-16 dimensions round up.
	c = Config{Width: 1281, Height: 721}
	assert.Equal(t, 1296*736*3/2, c.AlignedFrameSize())
}

func TestPadOrTruncate(t *testing.T) {
	assert.Equal(t, []byte{1, 2, 0, 0}, padOrTruncate([]byte{1, 2}, 4))
	assert.Equal(t, []byte{1, 2}, padOrTruncate([]byte{1, 2, 3}, 2))
	original := []byte{1, 2, 3}
	out := padOrTruncate(original, 3)
	out[0] = 9
	assert.Equal(t, byte(1), original[0], "padOrTruncate must not mutate its input")
}

func TestStage_CarriesPTSUnchangedIntoPacket(t *testing.T) {
	in := queue.New[*media.VideoFrame](4, nil)
	out := queue.New[*media.EncodedPacket](4, nil)
	enc := &encodefake.Encoder{}

	stage := NewStage(enc, logging.Discard(), stats.New(), Config{Width: 64, Height: 64, FPS: 30, BitrateBps: 100_000}, in, out)

	frame := &media.VideoFrame{Data: make([]byte, 64*64*3/2), PTSUs: 123456}
	require.Equal(t, queue.PushOK, in.Push(frame))
	in.Close()

	done := make(chan error, 1)
	go func() { done <- stage.Run() }()

	pkt, result := out.Pop()
	require.Equal(t, queue.PopGot, result)
	assert.Equal(t, int64(123456), pkt.PTSUs)
	assert.True(t, pkt.Keyframe, "first frame of a GOP must be a keyframe")

	out.Close()
	require.NoError(t, <-done)
}
