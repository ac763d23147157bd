// Package errkind enumerates the error taxonomy the capture/encode/sink
// pipeline can surface, so callers can classify a failure with errors.Is
// instead of matching on string content.
package errkind

import "errors"

var (
	// ErrConfigInvalid marks a configuration value that could not be
	// clamped or defaulted into something usable.
	ErrConfigInvalid = errors.New("errkind: configuration invalid")

	// ErrDeviceUnavailable marks a capture/encode device that could not be
	// opened at all.
	ErrDeviceUnavailable = errors.New("errkind: device unavailable")

	// ErrDeviceTransient marks a recoverable device error (try again).
	ErrDeviceTransient = errors.New("errkind: device transient")

	// ErrDeviceFatal marks an unrecoverable device error.
	ErrDeviceFatal = errors.New("errkind: device fatal")

	// ErrAllocation marks a failure to allocate a buffer.
	ErrAllocation = errors.New("errkind: allocation failure")

	// ErrQueueClosed marks an operation attempted against a closed queue.
	ErrQueueClosed = errors.New("errkind: queue closed")

	// ErrQueueFull marks a push attempted against a full queue.
	ErrQueueFull = errors.New("errkind: queue full")

	// ErrEncodeSubmit marks a failure submitting a frame to the encoder.
	ErrEncodeSubmit = errors.New("errkind: encoder submission failure")

	// ErrEncodeNotReady marks the encoder having no output packet ready
	// yet. This is not an error condition for the caller — it simply
	// means "skip this cycle" — but is given a sentinel so call sites can
	// distinguish it uniformly from a real failure.
	ErrEncodeNotReady = errors.New("errkind: encoder output not ready")

	// ErrSinkPartialWrite marks a sink write that wrote fewer bytes than
	// requested.
	ErrSinkPartialWrite = errors.New("errkind: sink partial write")
)
