// Package media defines the frame and chunk types that flow through the
// capture/encode/sink pipeline, from hardware capture through the file
// sinks. Each value has exactly one owner at any instant: the producer
// before it is pushed onto a queue, the queue while enqueued, and the
// consumer after it is popped — consumed (and discarded) exactly once.
package media

// VideoFrame is one raw captured picture, produced by the video capture
// stage and consumed exactly once by the video encode stage.
type VideoFrame struct {
	// Data holds the frame in the encoder's expected layout: luma plane
	// followed by chroma, contiguous. len(Data) must be >= Width*Height*3/2.
	Data []byte

	Width  int
	Height int
	Stride int

	// PTSUs is the monotonic timestamp, in microseconds, of the instant the
	// capture stage dequeued the underlying hardware buffer. It is carried, unchanged,
	// into the EncodedPacket produced from this frame.
	PTSUs int64

	// FrameID is a monotonically increasing per-session sequence number
	// assigned by the capture stage.
	FrameID uint64
}

// EncodedPacket is one compressed video access unit, produced by the video
// encode stage and consumed exactly once by the video sink stage.
type EncodedPacket struct {
	Data []byte

	// PTSUs is copied verbatim from the source VideoFrame's PTSUs — it is
	// never regenerated at encode time, so downstream jitter measurements
	// reflect capture-time timing, not encode-time timing.
	PTSUs int64

	Keyframe bool
}

// AudioChunk is one period's worth of interleaved PCM samples, produced by
// the audio capture stage and consumed exactly once by the audio sink stage.
type AudioChunk struct {
	Data []byte

	SampleRate     int
	Channels       int
	BytesPerSample int

	// Frames is the per-channel sample count actually read for this chunk.
	// len(Data) == Frames*Channels*BytesPerSample; a short read yields a
	// chunk with fewer Frames rather than a longer Data.
	Frames int

	// PTSUs is the running, sample-counted presentation timestamp: it is
	// advanced by Frames*1e6/SampleRate microseconds after every chunk,
	// not re-derived from wall-clock arrival.
	PTSUs int64
}
