// Package sink implements the video and audio sink pipeline stages:
// popping packets/chunks from their queue, writing bytes to a file capability,
// notifying the A/V synchronizer, and feeding the stats aggregator.
package sink

import (
	"errors"
	"sync/atomic"

	"github.com/haldane-systems/avrec/internal/avsync"
	"github.com/haldane-systems/avrec/internal/errkind"
	"github.com/haldane-systems/avrec/internal/logging"
	"github.com/haldane-systems/avrec/internal/media"
	"github.com/haldane-systems/avrec/internal/queue"
	"github.com/haldane-systems/avrec/internal/stats"
)

// FileWriter is the capability interface the concrete file-write primitive
// (or a test double) must provide: byte-exact append, no framing.
type FileWriter interface {
	Write(p []byte) (int, error)
	Close() error
}

// VideoStage is the video sink pipeline stage.
type VideoStage struct {
	w    FileWriter
	sync *avsync.Sync
	log  *logging.Logger
	stop StopRequester

	in *queue.Queue[*media.EncodedPacket]

	lastPTSUs   int64
	havePrevPTS bool
	lastDeltaUs atomic.Int64
}

// StopRequester lets a sink ask the session to begin shutdown after an
// unrecoverable write error, without the sink package depending on session.
type StopRequester interface {
	RequestStop()
}

// NewVideoStage creates a video sink stage reading from in.
func NewVideoStage(w FileWriter, sync *avsync.Sync, log *logging.Logger, stop StopRequester, in *queue.Queue[*media.EncodedPacket]) *VideoStage {
	return &VideoStage{w: w, sync: sync, log: log, stop: stop, in: in}
}

// LastPTSDeltaUs returns the most recently observed inter-packet pts delta,
// for the per-second diagnostics line; 0 means none observed yet.
func (vs *VideoStage) LastPTSDeltaUs() int64 {
	return vs.lastDeltaUs.Load()
}

// Run loops popping encoded packets, writing them to the file and notifying
// the synchronizer, until In is drained.
func (vs *VideoStage) Run() error {
	defer vs.w.Close()

	for {
		pkt, result := vs.in.Pop()
		if result == queue.PopDrained {
			return nil
		}

		if vs.havePrevPTS && pkt.PTSUs > vs.lastPTSUs {
			vs.lastDeltaUs.Store(pkt.PTSUs - vs.lastPTSUs)
		}
		vs.lastPTSUs = pkt.PTSUs
		vs.havePrevPTS = true

		vs.sync.OnVideo(pkt.PTSUs)

		n, err := vs.w.Write(pkt.Data)
		if err != nil || n != len(pkt.Data) {
			vs.log.Warn("short video write, requesting shutdown", "wrote", n, "want", len(pkt.Data), "error", err)
			vs.stop.RequestStop()
			return errors.Join(errkind.ErrSinkPartialWrite, err)
		}
	}
}

// AudioStage is the audio sink pipeline stage.
type AudioStage struct {
	w     FileWriter
	sync  *avsync.Sync
	stats *stats.Stats
	log   *logging.Logger
	stop  StopRequester

	in *queue.Queue[*media.AudioChunk]

	lastPTSUs   int64
	havePrevPTS bool
	lastDeltaUs atomic.Int64
}

// NewAudioStage creates an audio sink stage reading from in.
func NewAudioStage(w FileWriter, sync *avsync.Sync, st *stats.Stats, log *logging.Logger, stop StopRequester, in *queue.Queue[*media.AudioChunk]) *AudioStage {
	return &AudioStage{w: w, sync: sync, stats: st, log: log, stop: stop, in: in}
}

// LastPTSDeltaUs returns the most recently observed inter-chunk pts delta.
func (as *AudioStage) LastPTSDeltaUs() int64 {
	return as.lastDeltaUs.Load()
}

// Run loops popping audio chunks, writing them to the file and notifying
// the synchronizer, until In is drained.
func (as *AudioStage) Run() error {
	defer as.w.Close()

	for {
		chunk, result := as.in.Pop()
		if result == queue.PopDrained {
			return nil
		}

		if as.havePrevPTS && chunk.PTSUs > as.lastPTSUs {
			as.lastDeltaUs.Store(chunk.PTSUs - as.lastPTSUs)
		}
		as.lastPTSUs = chunk.PTSUs
		as.havePrevPTS = true

		as.sync.OnAudio(chunk.PTSUs, chunk.Frames, chunk.SampleRate)

		n, err := as.w.Write(chunk.Data)
		if err != nil || n != len(chunk.Data) {
			as.log.Warn("short audio write, requesting shutdown", "wrote", n, "want", len(chunk.Data), "error", err)
			as.stop.RequestStop()
			return errors.Join(errkind.ErrSinkPartialWrite, err)
		}

		as.stats.AddAudioChunk()
	}
}
