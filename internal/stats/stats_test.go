package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_TickDrainsAndResets(t *testing.T) {
	s := New()
	s.AddVideoFrame(100)
	s.AddVideoFrame(200)
	s.AddAudioChunk()
	s.AddDrop(3)

	tick := s.Tick()
	assert.Equal(t, int64(2), tick.VideoFrames)
	assert.Equal(t, int64(300), tick.EncBytes)
	assert.Equal(t, int64(1), tick.AudioChunks)
	assert.Equal(t, int64(3), tick.Drops)

	second := s.Tick()
	assert.Zero(t, second.VideoFrames)
	assert.Zero(t, second.EncBytes)
	assert.Zero(t, second.AudioChunks)
	assert.Zero(t, second.Drops)
}

func TestStats_AddDropIgnoresNonPositive(t *testing.T) {
	s := New()
	s.AddDrop(0)
	s.AddDrop(-5)
	assert.Zero(t, s.Tick().Drops)
}

func TestStats_ConcurrentAdds(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddVideoFrame(1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), s.Tick().VideoFrames)
}

func TestKbpsOf(t *testing.T) {
	assert.Equal(t, 8.0, KbpsOf(1000))
	assert.Equal(t, 0.0, KbpsOf(0))
}
