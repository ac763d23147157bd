// Command avrec records synchronized video and audio from a V4L2 camera and
// a PCM audio device to two elementary-stream files, logging a 1Hz
// A/V-sync quality report for the duration of the recording.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/haldane-systems/avrec/internal/config"
	"github.com/haldane-systems/avrec/internal/encode/encodefake"
	"github.com/haldane-systems/avrec/internal/logging"
	"github.com/haldane-systems/avrec/internal/session"
	"github.com/haldane-systems/avrec/internal/sink"
)

// fileConfig mirrors config.Config for optional YAML overlay; every field
// is a pointer so an absent key in the file leaves the flag/default value
// untouched.
type fileConfig struct {
	VideoDevice     *string `yaml:"video_device"`
	Width           *int    `yaml:"width"`
	Height          *int    `yaml:"height"`
	FPS             *int    `yaml:"fps"`
	BitrateBps      *int    `yaml:"bitrate_bps"`
	AudioDevice     *string `yaml:"audio_device"`
	SampleRate      *int    `yaml:"sample_rate"`
	Channels        *int    `yaml:"channels"`
	DurationSeconds *int    `yaml:"duration_seconds"`
	VideoOutputPath *string `yaml:"video_output"`
	AudioOutputPath *string `yaml:"audio_output"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("avrec", pflag.ContinueOnError)

	def := config.Default()
	videoDevice := flags.String("video-device", def.VideoDevice, "V4L2 video capture device")
	width := flags.Int("width", def.Width, "capture width in pixels")
	height := flags.Int("height", def.Height, "capture height in pixels")
	fps := flags.Int("fps", def.FPS, "capture/encode frame rate")
	bitrate := flags.Int("bitrate", def.BitrateBps, "target video bitrate in bits/sec")
	audioDevice := flags.String("audio-device", def.AudioDevice, "PCM capture device name")
	sampleRate := flags.Int("sample-rate", def.SampleRate, "audio sample rate in Hz")
	channels := flags.Int("channels", def.Channels, "audio channel count")
	duration := flags.Int("duration", def.DurationSeconds, "recording length in seconds, 0 = until signaled")
	videoOut := flags.String("video-out", def.VideoOutputPath, "video elementary stream output path")
	audioOut := flags.String("audio-out", def.AudioOutputPath, "audio elementary stream output path")
	logLevel := flags.String("log-level", "info", "log level: debug, info, warn, error")
	configFile := flags.String("config", "", "optional YAML config file; keys it sets override the matching flags, even flags given on the command line")

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, "avrec:", err)
		return 2
	}

	cfg := config.Config{
		VideoDevice:     *videoDevice,
		Width:           *width,
		Height:          *height,
		FPS:             *fps,
		BitrateBps:      *bitrate,
		AudioDevice:     *audioDevice,
		SampleRate:      *sampleRate,
		Channels:        *channels,
		DurationSeconds: *duration,
		VideoOutputPath: *videoOut,
		AudioOutputPath: *audioOut,
	}

	if *configFile != "" {
		merged, err := applyConfigFile(cfg, *configFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "avrec:", err)
			return 2
		}
		cfg = merged
	}

	cfg, err := config.Validate(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "avrec: invalid configuration:", err)
		return 2
	}

	log := logging.New(os.Stderr, *logLevel)

	devices, cleanup, err := openDevices(cfg, log)
	if err != nil {
		log.Error("failed to open devices", "error", err)
		return 1
	}
	defer cleanup()

	sess := session.New(cfg, devices, log)
	if err := sess.Run(); err != nil {
		log.Error("recording ended with errors", "error", err)
		return 1
	}
	return 0
}

// applyConfigFile reads path as YAML and overlays any present fields onto
// base, which already holds the flag-derived (or default) values. A field
// present in the file replaces the flag value whether or not that flag was
// set explicitly.
func applyConfigFile(base config.Config, path string) (config.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return base, fmt.Errorf("parsing config file: %w", err)
	}

	if fc.VideoDevice != nil {
		base.VideoDevice = *fc.VideoDevice
	}
	if fc.Width != nil {
		base.Width = *fc.Width
	}
	if fc.Height != nil {
		base.Height = *fc.Height
	}
	if fc.FPS != nil {
		base.FPS = *fc.FPS
	}
	if fc.BitrateBps != nil {
		base.BitrateBps = *fc.BitrateBps
	}
	if fc.AudioDevice != nil {
		base.AudioDevice = *fc.AudioDevice
	}
	if fc.SampleRate != nil {
		base.SampleRate = *fc.SampleRate
	}
	if fc.Channels != nil {
		base.Channels = *fc.Channels
	}
	if fc.DurationSeconds != nil {
		base.DurationSeconds = *fc.DurationSeconds
	}
	if fc.VideoOutputPath != nil {
		base.VideoOutputPath = *fc.VideoOutputPath
	}
	if fc.AudioOutputPath != nil {
		base.AudioOutputPath = *fc.AudioOutputPath
	}
	return base, nil
}

// openDevices opens the video and audio output files and wires the real
// capture sources available on the current platform, falling back to
// nothing (an error) off Linux since the V4L2 binding is Linux-only. No
// hardware H.264 encoder binding exists, so every build uses the
// deterministic software encoder.
func openDevices(cfg config.Config, log *logging.Logger) (session.Devices, func(), error) {
	videoFile, err := os.Create(cfg.VideoOutputPath)
	if err != nil {
		return session.Devices{}, nil, fmt.Errorf("opening video output: %w", err)
	}
	audioFile, err := os.Create(cfg.AudioOutputPath)
	if err != nil {
		videoFile.Close()
		return session.Devices{}, nil, fmt.Errorf("opening audio output: %w", err)
	}

	video, audio, err := newCaptureSources()
	if err != nil {
		videoFile.Close()
		audioFile.Close()
		return session.Devices{}, nil, err
	}

	log.Info("devices ready", "platform", runtime.GOOS,
		"video_device", cfg.VideoDevice, "audio_device", cfg.AudioDevice)

	devices := session.Devices{
		Video:    video,
		PCM:      audio,
		Encoder:  &encodefake.Encoder{},
		VideoOut: sink.FileWriter(videoFile),
		AudioOut: sink.FileWriter(audioFile),
	}
	cleanup := func() {
		videoFile.Close()
		audioFile.Close()
	}
	return devices, cleanup, nil
}
