// Package stats implements the lock-free counters the pipeline stages feed,
// drained once a second into a single log line. Every counter is an
// independent atomic and Tick swaps them to zero one after another, so an
// Add that lands between two of those swaps may be split across adjacent
// one-second windows; the windows this system cares about tolerate that.
package stats

import (
	"sync/atomic"
)

// Stats accumulates frame, byte, chunk, and drop counts across the pipeline
// without any contention between producers.
type Stats struct {
	videoFrames atomic.Int64
	encBytes    atomic.Int64
	audioChunks atomic.Int64
	drops       atomic.Int64
}

// New returns a zeroed Stats.
func New() *Stats {
	return &Stats{}
}

// AddVideoFrame counts one encoded video frame of the given size in bytes.
func (s *Stats) AddVideoFrame(bytes int) {
	s.videoFrames.Add(1)
	s.encBytes.Add(int64(bytes))
}

// AddAudioChunk counts one audio chunk written to the sink.
func (s *Stats) AddAudioChunk() {
	s.audioChunks.Add(1)
}

// AddDrop counts n dropped items (frames or chunks).
func (s *Stats) AddDrop(n int64) {
	if n <= 0 {
		return
	}
	s.drops.Add(n)
}

// Tick is a point-in-time drain: every counter is atomically swapped to
// zero and returned, representing counts accumulated since the previous
// Tick (nominally one second earlier).
type Tick struct {
	VideoFrames int64
	EncBytes    int64
	AudioChunks int64
	Drops       int64
}

// Tick atomically swaps each of the four counters to zero and returns what
// they held. The four swaps are separate, not one combined snapshot.
func (s *Stats) Tick() Tick {
	return Tick{
		VideoFrames: s.videoFrames.Swap(0),
		EncBytes:    s.encBytes.Swap(0),
		AudioChunks: s.audioChunks.Swap(0),
		Drops:       s.drops.Swap(0),
	}
}

// KbpsOf converts a byte count over one second into kilobits per second.
func KbpsOf(bytes int64) float64 {
	return float64(bytes) * 8 / 1000
}
