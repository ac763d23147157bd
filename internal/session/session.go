// Package session implements the lifecycle coordinator: it owns the
// three transport queues, the stats aggregator, and the A/V synchronizer,
// spawns the five pipeline stages plus the signal/timer/stats tasks, and
// drives an orderly, idempotent shutdown on signal, timer expiry, or a
// fatal stage error.
package session

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/haldane-systems/avrec/internal/avclock"
	"github.com/haldane-systems/avrec/internal/avsync"
	"github.com/haldane-systems/avrec/internal/capture"
	"github.com/haldane-systems/avrec/internal/config"
	"github.com/haldane-systems/avrec/internal/encode"
	"github.com/haldane-systems/avrec/internal/logging"
	"github.com/haldane-systems/avrec/internal/media"
	"github.com/haldane-systems/avrec/internal/queue"
	"github.com/haldane-systems/avrec/internal/sink"
	"github.com/haldane-systems/avrec/internal/stats"
)

// Queue capacities. Q_raw is small and drop-newest so a slow encoder sheds
// frames instead of stalling capture; Q_enc and Q_aud are large because
// their sinks are fast file appends.
const (
	qRawCapacity = 8
	qEncCapacity = 64
	qAudCapacity = 256
)

// Devices bundles the capability interfaces the session needs, all supplied
// by the caller (the CLI entry point for real hardware, a test for fakes).
type Devices struct {
	Video    capture.VideoSource
	PCM      capture.PCMSource
	Encoder  encode.H264Encoder
	VideoOut sink.FileWriter
	AudioOut sink.FileWriter
}

// Session is the lifecycle coordinator for one recording.
type Session struct {
	cfg   config.Config
	log   *logging.Logger
	clock *avclock.Clock
	stats *stats.Stats
	sync  *avsync.Sync

	qRaw *queue.Queue[*media.VideoFrame]
	qEnc *queue.Queue[*media.EncodedPacket]
	qAud *queue.Queue[*media.AudioChunk]

	videoCapture *capture.VideoStage
	audioCapture *capture.AudioStage
	encodeStage  *encode.Stage
	videoSink    *sink.VideoStage
	audioSink    *sink.AudioStage

	stopped  atomic.Bool
	stopOnce sync.Once

	captureWG sync.WaitGroup
	encodeWG  sync.WaitGroup
	sinkWG    sync.WaitGroup
	statsWG   sync.WaitGroup
	signalWG  sync.WaitGroup
	timerWG   sync.WaitGroup

	errMu sync.Mutex
	errs  []error

	sigCh chan os.Signal
}

// New wires the three queues and five pipeline stages from cfg and devices.
func New(cfg config.Config, devices Devices, log *logging.Logger) *Session {
	clock := avclock.New()
	st := stats.New()
	sy := avsync.New(clock, cfg.FPS)

	s := &Session{
		cfg:   cfg,
		log:   log,
		clock: clock,
		stats: st,
		sync:  sy,
		qRaw:  queue.New[*media.VideoFrame](qRawCapacity, nil),
		qEnc:  queue.New[*media.EncodedPacket](qEncCapacity, nil),
		qAud:  queue.New[*media.AudioChunk](qAudCapacity, nil),
	}

	s.videoCapture = capture.NewVideoStage(devices.Video, clock, st, log.With("component", "capture-video"),
		capture.VideoStageConfig{Device: cfg.VideoDevice, Width: cfg.Width, Height: cfg.Height}, s.qRaw)

	s.audioCapture = capture.NewAudioStage(devices.PCM, clock, log.With("component", "capture-audio"),
		capture.AudioStageConfig{Device: cfg.AudioDevice, SampleRate: cfg.SampleRate, Channels: cfg.Channels}, s.qAud)

	s.encodeStage = encode.NewStage(devices.Encoder, log.With("component", "encode"), st,
		encode.Config{Width: cfg.Width, Height: cfg.Height, FPS: cfg.FPS, BitrateBps: cfg.BitrateBps}, s.qRaw, s.qEnc)

	s.videoSink = sink.NewVideoStage(devices.VideoOut, sy, log.With("component", "sink-video"), s, s.qEnc)
	s.audioSink = sink.NewAudioStage(devices.AudioOut, sy, st, log.With("component", "sink-audio"), s, s.qAud)

	return s
}

// RequestStop idempotently sets the stop flag and closes all three queues,
// unblocking any task waiting on them. It implements sink.StopRequester so
// a sink can ask for shutdown after an unrecoverable write error.
func (s *Session) RequestStop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.qRaw.Close()
		s.qEnc.Close()
		s.qAud.Close()
	})
}

func (s *Session) recordErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	s.errs = append(s.errs, err)
	s.errMu.Unlock()
}

// Run starts the signal, timer, and stats tasks plus all five pipeline
// stages, then blocks until every task has joined in the prescribed order:
// capture stages, encode stage, sink stages, stats task, signal task,
// timer task. It returns a joined error of every stage failure observed, or
// nil on a clean shutdown.
func (s *Session) Run() error {
	s.sigCh = make(chan os.Signal, 1)
	signal.Notify(s.sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.sigCh)

	s.signalWG.Add(1)
	go s.runSignalTask()

	if s.cfg.DurationSeconds > 0 {
		s.timerWG.Add(1)
		go s.runTimerTask()
	}

	s.statsWG.Add(1)
	go s.runStatsTask()

	s.captureWG.Add(2)
	go s.runStage(&s.captureWG, "capture-video", s.videoCapture.Run)
	go s.runStage(&s.captureWG, "capture-audio", s.audioCapture.Run)

	s.encodeWG.Add(1)
	go s.runStage(&s.encodeWG, "encode", s.encodeStage.Run)

	s.sinkWG.Add(2)
	go s.runStage(&s.sinkWG, "sink-video", s.videoSink.Run)
	go s.runStage(&s.sinkWG, "sink-audio", s.audioSink.Run)

	s.captureWG.Wait()
	s.encodeWG.Wait()
	s.sinkWG.Wait()
	s.statsWG.Wait()
	s.wakeSignalTask()
	s.signalWG.Wait()
	s.timerWG.Wait()

	s.qRaw.Destroy()
	s.qEnc.Destroy()
	s.qAud.Destroy()

	tick := s.stats.Tick()
	s.log.Info("session stopped",
		"video_frames", tick.VideoFrames,
		"enc_bytes", tick.EncBytes,
		"audio_chunks", tick.AudioChunks,
		"drops", tick.Drops,
		"video_output", s.cfg.VideoOutputPath,
		"audio_output", s.cfg.AudioOutputPath,
	)

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return errors.Join(s.errs...)
}

// runStage runs one pipeline stage, recording a fatal error (if any) and
// requesting session-wide shutdown so sibling stages unwind too.
func (s *Session) runStage(wg *sync.WaitGroup, name string, fn func() error) {
	defer wg.Done()
	if err := fn(); err != nil {
		s.log.Error("pipeline stage exited with error", "stage", name, "error", err)
		s.recordErr(err)
	}
	s.RequestStop()
}

func (s *Session) runSignalTask() {
	defer s.signalWG.Done()
	sig, ok := <-s.sigCh
	if !ok {
		return
	}
	s.log.Info("received termination signal", "signal", sig)
	s.RequestStop()
}

// wakeSignalTask lets the signal task return once the rest of shutdown has
// completed, even when no real signal arrived, by re-delivering SIGTERM to
// this process.
func (s *Session) wakeSignalTask() {
	_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
}

func (s *Session) runTimerTask() {
	defer s.timerWG.Done()
	for i := 0; i < s.cfg.DurationSeconds; i++ {
		if s.stopped.Load() {
			return
		}
		time.Sleep(time.Second)
	}
	if !s.stopped.Load() {
		s.log.Info("recording duration elapsed")
		s.RequestStop()
	}
}

func (s *Session) runStatsTask() {
	defer s.statsWG.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if s.stopped.Load() {
			return
		}
		<-ticker.C
		if s.stopped.Load() {
			return
		}
		s.logTick()
	}
}

func (s *Session) logTick() {
	tick := s.stats.Tick()
	now := s.clock.NowUS()
	report := s.sync.Report1s(now)

	s.log.Info("tick",
		"fps", tick.VideoFrames,
		"kbps", stats.KbpsOf(tick.EncBytes),
		"chunks_per_sec", tick.AudioChunks,
		"drops_per_sec", tick.Drops,
		"q_raw", s.qRaw.Size(),
		"q_enc", s.qEnc.Size(),
		"q_aud", s.qAud.Size(),
		"video_pts_delta_us", formatDelta(s.videoSink.LastPTSDeltaUs()),
		"audio_pts_delta_us", formatDelta(s.audioSink.LastPTSDeltaUs()),
		"av_offset_ms", report.AVOffsetMs.String(),
		"residual_ms", report.ResidualMs.String(),
		"drift_msps", report.DriftMsps.String(),
		"drift_direction", report.DriftDirection,
		"video_jitter_p50_ms", report.VideoJitterP50Ms.String(),
		"video_jitter_p95_ms", report.VideoJitterP95Ms.String(),
		"audio_jitter_p50_ms", report.AudioJitterP50Ms.String(),
		"audio_jitter_p95_ms", report.AudioJitterP95Ms.String(),
	)
}

func formatDelta(us int64) string {
	if us == 0 {
		return "n/a"
	}
	return time.Duration(us * int64(time.Microsecond)).String()
}
