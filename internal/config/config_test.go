package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PopulatesAllFields(t *testing.T) {
	c := Default()
	assert.Equal(t, DefaultWidth, c.Width)
	assert.Equal(t, DefaultHeight, c.Height)
	assert.Equal(t, DefaultFPS, c.FPS)
	assert.Equal(t, DefaultBitrateBps, c.BitrateBps)
	assert.Equal(t, DefaultSampleRate, c.SampleRate)
	assert.Equal(t, DefaultChannels, c.Channels)
	assert.Equal(t, DefaultDurationSeconds, c.DurationSeconds)
}

func TestValidate_PassesThroughValidConfig(t *testing.T) {
	got, err := Validate(Default())
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestValidate_EmptyDevicePathIsAnError(t *testing.T) {
	c := Default()
	c.VideoDevice = ""
	_, err := Validate(c)
	assert.Error(t, err)

	c = Default()
	c.AudioDevice = ""
	_, err = Validate(c)
	assert.Error(t, err)
}

func TestValidate_ClampsOutOfRangeNumerics(t *testing.T) {
	c := Default()
	c.Width = MaxWidth + 1000
	c.FPS = -1
	c.Channels = MaxChannels * 2

	got, err := Validate(c)
	require.NoError(t, err)
	assert.Equal(t, MaxWidth, got.Width)
	assert.Equal(t, DefaultFPS, got.FPS)
	assert.Equal(t, MaxChannels, got.Channels)
}

func TestValidate_NegativeDurationFallsBackToDefault(t *testing.T) {
	c := Default()
	c.DurationSeconds = -10
	got, err := Validate(c)
	require.NoError(t, err)
	assert.Equal(t, DefaultDurationSeconds, got.DurationSeconds)
}

func TestValidate_ZeroDurationMeansRunUntilSignaled(t *testing.T) {
	c := Default()
	c.DurationSeconds = 0
	got, err := Validate(c)
	require.NoError(t, err)
	assert.Zero(t, got.DurationSeconds)
}

func TestValidate_EmptyOutputPathsFallBackToDefaults(t *testing.T) {
	c := Default()
	c.VideoOutputPath = ""
	c.AudioOutputPath = ""
	got, err := Validate(c)
	require.NoError(t, err)
	assert.Equal(t, DefaultVideoOutputPath, got.VideoOutputPath)
	assert.Equal(t, DefaultAudioOutputPath, got.AudioOutputPath)
}
