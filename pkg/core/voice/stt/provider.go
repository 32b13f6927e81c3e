// Package stt provides speech-to-text providers for captured utterances.
package stt

import (
	"context"
	"io"
	"strings"
)

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts one utterance of 16-bit PCM audio to text.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model      string // Provider-specific model
	Language   string // ISO language hint; empty lets the provider detect
	SampleRate int    // PCM sample rate in Hz (default 16000)
}

// Transcript is the result of transcription.
type Transcript struct {
	Text     string  // Full transcribed text
	Language string  // Detected language, two-letter where known
	Duration float64 // Audio duration in seconds, if reported
}

// Unavailable is used when no transcription provider is configured. Every
// utterance transcribes to empty text and is discarded downstream.
type Unavailable struct{}

func (Unavailable) Name() string { return "unavailable" }

func (Unavailable) Transcribe(context.Context, io.Reader, TranscribeOptions) (*Transcript, error) {
	return &Transcript{}, nil
}

var threeLetter = map[string]string{
	"eng": "en", "spa": "es", "fra": "fr", "fre": "fr", "deu": "de", "ger": "de",
	"ita": "it", "por": "pt", "zho": "zh", "chi": "zh", "jpn": "ja", "kor": "ko",
	"hin": "hi", "ara": "ar", "rus": "ru", "nld": "nl", "pol": "pl", "tur": "tr",
	"ukr": "uk", "vie": "vi",
}

// NormalizeLanguage maps provider language codes ("eng", "en-US", "und") to the
// two-letter form used by the conversation. Unknown or undetermined codes
// return "".
func NormalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	switch {
	case code == "" || code == "und":
		return ""
	case len(code) == 2:
		return code
	}
	return threeLetter[code]
}
