//go:build !linux

package main

import (
	"fmt"

	"github.com/haldane-systems/avrec/internal/capture"
)

// newCaptureSources reports that no capture devices are available: the
// V4L2 binding is Linux only, matching the hardware this recorder targets.
func newCaptureSources() (capture.VideoSource, capture.PCMSource, error) {
	return nil, nil, fmt.Errorf("avrec: no capture device support on this platform")
}
