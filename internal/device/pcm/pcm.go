// Package pcm implements capture.PCMSource against a real audio input
// device via PortAudio, delivering interleaved 16-bit LE samples a period
// at a time.
package pcm

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Source implements capture.PCMSource on top of a PortAudio input stream.
// PortAudio's global Initialize/Terminate pair is process-wide, so callers
// must not open more than one Source concurrently.
type Source struct {
	stream *portaudio.Stream
	buf    []int16
}

// Open initializes PortAudio and opens a blocking input stream for the
// named device at sampleRate with channels interleaved channels, sized to
// deliver roughly 1024-frame periods.
func (s *Source) Open(device string, sampleRate, channels int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("pcm: portaudio init: %w", err)
	}

	dev, err := resolveDevice(device)
	if err != nil {
		portaudio.Terminate()
		return err
	}

	const framesPerPeriod = 1024
	s.buf = make([]int16, framesPerPeriod*channels)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerPeriod,
	}

	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("pcm: open stream: %w", err)
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("pcm: start stream: %w", err)
	}
	return nil
}

// resolveDevice picks the named input device. An empty name or the ALSA
// convention "default" selects the host API's default input device.
func resolveDevice(device string) (*portaudio.DeviceInfo, error) {
	if device == "" || device == "default" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("pcm: default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("pcm: enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == device {
			return d, nil
		}
	}
	return nil, fmt.Errorf("pcm: device %q not found", device)
}

// ReadPeriod blocks until one full period is captured, then packs the
// stream's int16 samples into buf as interleaved 16-bit little-endian
// bytes. buf must be large enough to hold one period.
func (s *Source) ReadPeriod(buf []byte) (int, error) {
	if err := s.stream.Read(); err != nil {
		return 0, fmt.Errorf("pcm: stream read: %w", err)
	}

	n := len(s.buf)
	if n*2 > len(buf) {
		n = len(buf) / 2
	}
	for i := 0; i < n; i++ {
		v := uint16(s.buf[i])
		buf[2*i] = byte(v)
		buf[2*i+1] = byte(v >> 8)
	}
	return n * 2, nil
}

// Close stops the stream and tears down PortAudio.
func (s *Source) Close() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	portaudio.Terminate()
	return err
}
