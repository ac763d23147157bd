// Package config defines the recorder's configuration contract: the fields
// the out-of-scope CLI/config-file layer must populate, their defaults, and
// the clamping rules applied to invalid values. Only Config and Validate are
// part of the tested contract — how a caller arrives at a Config (flags, a
// file, hard-coded values in a test) is not.
package config

import "github.com/haldane-systems/avrec/internal/errkind"

// Default values and clamping bounds.
const (
	DefaultWidth           = 1280
	DefaultHeight          = 720
	DefaultFPS             = 30
	DefaultBitrateBps      = 2_000_000
	DefaultSampleRate      = 48_000
	DefaultChannels        = 2
	DefaultDurationSeconds = 20
	DefaultVideoOutputPath = "output.h264"
	DefaultAudioOutputPath = "output.pcm"

	MaxWidth      = 7680
	MaxHeight     = 4320
	MaxFPS        = 240
	MaxBitrateBps = 200_000_000
	MaxSampleRate = 192_000
	MaxChannels   = 8
)

// Config holds every value the core pipeline needs to start a recording
// session. A zero-valued field does not mean "use the default": call
// Default() for a pre-populated Config and override only what the caller
// actually wants to change, then call Validate before use.
type Config struct {
	VideoDevice string
	Width       int
	Height      int
	FPS         int
	BitrateBps  int

	AudioDevice string
	SampleRate  int
	Channels    int

	// DurationSeconds is the recording length; 0 means run until a
	// termination signal is received.
	DurationSeconds int

	VideoOutputPath string
	AudioOutputPath string
}

// Default returns a Config populated with the default values.
func Default() Config {
	return Config{
		VideoDevice:     "/dev/video0",
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		FPS:             DefaultFPS,
		BitrateBps:      DefaultBitrateBps,
		AudioDevice:     "default",
		SampleRate:      DefaultSampleRate,
		Channels:        DefaultChannels,
		DurationSeconds: DefaultDurationSeconds,
		VideoOutputPath: DefaultVideoOutputPath,
		AudioOutputPath: DefaultAudioOutputPath,
	}
}

// Validate clamps out-of-range numeric fields to their nearest valid bound
// and substitutes the default for anything non-positive, returning the
// adjusted Config. It only returns an error (wrapping errkind.ErrConfigInvalid)
// for values that cannot be sensibly clamped, such as an empty device path.
func Validate(c Config) (Config, error) {
	if c.VideoDevice == "" {
		return c, errkind.ErrConfigInvalid
	}
	if c.AudioDevice == "" {
		return c, errkind.ErrConfigInvalid
	}
	if c.VideoOutputPath == "" {
		c.VideoOutputPath = DefaultVideoOutputPath
	}
	if c.AudioOutputPath == "" {
		c.AudioOutputPath = DefaultAudioOutputPath
	}

	c.Width = clamp(c.Width, 1, MaxWidth, DefaultWidth)
	c.Height = clamp(c.Height, 1, MaxHeight, DefaultHeight)
	c.FPS = clamp(c.FPS, 1, MaxFPS, DefaultFPS)
	c.BitrateBps = clamp(c.BitrateBps, 1, MaxBitrateBps, DefaultBitrateBps)
	c.SampleRate = clamp(c.SampleRate, 1, MaxSampleRate, DefaultSampleRate)
	c.Channels = clamp(c.Channels, 1, MaxChannels, DefaultChannels)
	if c.DurationSeconds < 0 {
		c.DurationSeconds = DefaultDurationSeconds
	}

	return c, nil
}

// clamp substitutes def for a non-positive value, then clamps into [lo, hi].
func clamp(v, lo, hi, def int) int {
	if v <= 0 {
		v = def
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
