// Package tts provides text-to-speech providers that return raw PCM for playback.
package tts

import (
	"context"
	"errors"
	"time"
)

// DefaultSampleRate is the playback rate requested from providers.
const DefaultSampleRate = 24000

// ErrUnavailable is returned when no synthesis provider is configured.
var ErrUnavailable = errors.New("tts: no provider configured")

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to 16-bit mono PCM.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string  // Voice identifier
	Language   string  // Language code
	Speed      float64 // Speed multiplier (0 keeps the provider default)
	SampleRate int     // Output sample rate (default DefaultSampleRate)
}

func (o SynthesizeOptions) sampleRate() int {
	if o.SampleRate > 0 {
		return o.SampleRate
	}
	return DefaultSampleRate
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio      []byte // 16-bit signed little-endian mono PCM
	SampleRate int
}

// Duration returns the playback length of the audio.
func (s *Synthesis) Duration() time.Duration {
	if s == nil || s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Audio)/2) * time.Second / time.Duration(s.SampleRate)
}

// Unavailable fails every request with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) Name() string { return "unavailable" }

func (Unavailable) Synthesize(context.Context, string, SynthesizeOptions) (*Synthesis, error) {
	return nil, ErrUnavailable
}
