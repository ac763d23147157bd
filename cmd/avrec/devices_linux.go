//go:build linux

package main

import (
	"github.com/haldane-systems/avrec/internal/capture"
	"github.com/haldane-systems/avrec/internal/device/pcm"
	"github.com/haldane-systems/avrec/internal/device/v4l2"
)

// newCaptureSources wires the real Linux device bindings.
func newCaptureSources() (capture.VideoSource, capture.PCMSource, error) {
	return &v4l2.Source{}, &pcm.Source{}, nil
}
