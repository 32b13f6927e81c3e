package live

import (
	"errors"
	"time"
)

// AudioConfig specifies audio format parameters.
type AudioConfig struct {
	// SampleRate in Hz. Capture uses 16000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultAudioConfig returns the capture format: 16 kHz mono 16-bit PCM.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c AudioConfig) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// Duration returns the playback duration of the given byte count.
func (c AudioConfig) Duration(bytes int) time.Duration {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(c.BytesPerSecond())
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (c AudioConfig) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}

// SegmenterConfig configures utterance segmentation.
type SegmenterConfig struct {
	Audio AudioConfig

	// FrameDuration is the analysis frame size. Default: 30ms.
	FrameDuration time.Duration

	// EnergyThreshold is the RMS level at or above which a frame counts as speech.
	// Range: 0.0 to 1.0. Default: 0.02
	EnergyThreshold float64

	// PeakThreshold additionally requires a frame's peak amplitude to reach it.
	// Range: 0.0 to 1.0. Default: 0 (disabled)
	PeakThreshold float64

	// SilenceTimeout ends a candidate once trailing silence exceeds it. Default: 2.8s
	SilenceTimeout time.Duration

	// MinUtterance is the voiced duration a candidate must exceed to be emitted.
	// Default: 0.8s
	MinUtterance time.Duration

	// MaxSegment forces a flush once a candidate grows past it. Default: 15s
	MaxSegment time.Duration

	// PrefixPadding is audio kept from before speech onset. Default: 300ms
	PrefixPadding time.Duration
}

// DefaultSegmenterConfig returns the standard segmentation settings.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		Audio:           DefaultAudioConfig(),
		FrameDuration:   30 * time.Millisecond,
		EnergyThreshold: 0.02,
		SilenceTimeout:  2800 * time.Millisecond,
		MinUtterance:    800 * time.Millisecond,
		MaxSegment:      15 * time.Second,
		PrefixPadding:   300 * time.Millisecond,
	}
}

// FrameBytes returns the size of one analysis frame in bytes.
func (c SegmenterConfig) FrameBytes() int {
	return c.Audio.BytesForDurationMs(int(c.FrameDuration / time.Millisecond))
}

// Validate reports the first invalid setting.
func (c SegmenterConfig) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("sample rate must be > 0")
	}
	if c.Audio.Channels <= 0 {
		return errors.New("channels must be > 0")
	}
	if c.Audio.BitsPerSample != 16 {
		return errors.New("bits per sample must be 16")
	}
	if c.FrameDuration <= 0 {
		return errors.New("frame duration must be > 0")
	}
	if c.FrameBytes() == 0 {
		return errors.New("frame duration too short for sample rate")
	}
	if c.EnergyThreshold < 0 || c.EnergyThreshold > 1 {
		return errors.New("energy threshold must be within [0,1]")
	}
	if c.PeakThreshold < 0 || c.PeakThreshold > 1 {
		return errors.New("peak threshold must be within [0,1]")
	}
	if c.SilenceTimeout <= 0 {
		return errors.New("silence timeout must be > 0")
	}
	if c.MinUtterance < 0 {
		return errors.New("min utterance must be >= 0")
	}
	if c.MaxSegment <= c.MinUtterance {
		return errors.New("max segment must be > min utterance")
	}
	if c.PrefixPadding < 0 {
		return errors.New("prefix padding must be >= 0")
	}
	return nil
}
