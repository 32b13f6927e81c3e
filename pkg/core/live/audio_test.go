package live

import (
	"bytes"
	"math"
	"testing"
	"time"
)

func pcmFromSamples(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(s & 0xFF)
		pcm[i*2+1] = byte((s >> 8) & 0xFF)
	}
	return pcm
}

func TestCalculateRMSEnergy(t *testing.T) {
	tests := []struct {
		name     string
		samples  []int16
		expected float64
	}{
		{"silence", []int16{0, 0, 0, 0}, 0.0},
		{"max amplitude", []int16{32767, 32767, 32767, 32767}, 1.0},
		{"alternating half amplitude", []int16{16384, -16384, 16384, -16384}, 0.5},
		{"empty", nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateRMSEnergy(pcmFromSamples(tt.samples))
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("expected RMS %.3f, got %.3f", tt.expected, result)
			}
		})
	}
}

func TestCalculatePeakAmplitude(t *testing.T) {
	if got := CalculatePeakAmplitude(pcmFromSamples([]int16{0, -32768, 100})); math.Abs(got-1.0) > 0.001 {
		t.Fatalf("peak=%.3f, want 1.0", got)
	}
	if got := CalculatePeakAmplitude(pcmFromSamples([]int16{0, 16384, 0})); math.Abs(got-0.5) > 0.001 {
		t.Fatalf("peak=%.3f, want 0.5", got)
	}
}

func TestAudioConfig(t *testing.T) {
	cfg := DefaultAudioConfig()

	// 16kHz, mono, 16-bit = 32000 bytes/second
	if cfg.BytesPerSecond() != 32000 {
		t.Errorf("expected 32000 bytes/sec, got %d", cfg.BytesPerSecond())
	}
	if cfg.BytesForDurationMs(30) != 960 {
		t.Errorf("expected 960 bytes for 30ms, got %d", cfg.BytesForDurationMs(30))
	}
	if cfg.DurationMs(32000) != 1000 {
		t.Errorf("expected 1000ms for 32000 bytes, got %d", cfg.DurationMs(32000))
	}
	if cfg.Duration(16000) != 500*time.Millisecond {
		t.Errorf("expected 500ms for 16000 bytes, got %v", cfg.Duration(16000))
	}
}

func TestAudioBuffer_TakeDropsTail(t *testing.T) {
	cfg := DefaultAudioConfig()
	buf := NewAudioBuffer(cfg, 100)

	buf.Write([]byte{1, 2, 3, 4, 5, 6})
	got := buf.Take(2)
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("Take(2)=%v", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not emptied: len=%d", buf.Len())
	}

	buf.Write([]byte{9})
	if got := buf.Take(5); len(got) != 0 {
		t.Fatalf("Take past start=%v, want empty", got)
	}
}

func TestAudioBuffer_Capped(t *testing.T) {
	cfg := DefaultAudioConfig()
	buf := NewAudioBuffer(cfg, 100)

	buf.Write(make([]byte, cfg.BytesForDurationMs(50)))
	if buf.DurationMs() != 50 {
		t.Errorf("expected 50ms, got %dms", buf.DurationMs())
	}
	buf.Write(make([]byte, cfg.BytesForDurationMs(100)))
	if buf.DurationMs() != 100 {
		t.Errorf("expected 100ms (capped), got %dms", buf.DurationMs())
	}

	buf.Clear()
	if buf.Len() != 0 {
		t.Errorf("expected 0 after clear, got %d", buf.Len())
	}
}

func TestRingBuffer_KeepsMostRecent(t *testing.T) {
	cfg := AudioConfig{SampleRate: 1000, Channels: 1, BitsPerSample: 16}
	ring := NewRingBuffer(cfg, 2) // 4 bytes

	ring.Write([]byte{1, 2})
	if got := ring.Read(); !bytes.Equal(got, []byte{1, 2}) {
		t.Fatalf("partial read=%v", got)
	}

	ring.Write([]byte{3, 4, 5, 6})
	if got := ring.Read(); !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Fatalf("wrapped read=%v", got)
	}
	if ring.Filled() != 4 {
		t.Fatalf("filled=%d, want 4", ring.Filled())
	}

	ring.Clear()
	if ring.Filled() != 0 || len(ring.Read()) != 0 {
		t.Fatal("expected empty ring after clear")
	}
}

func TestFramer(t *testing.T) {
	f := NewFramer(4)

	if frames := f.Write([]byte{1, 2, 3}); len(frames) != 0 {
		t.Fatalf("frames=%v, want none", frames)
	}
	frames := f.Write([]byte{4, 5, 6, 7, 8, 9})
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{1, 2, 3, 4}) || !bytes.Equal(frames[1], []byte{5, 6, 7, 8}) {
		t.Fatalf("frames=%v", frames)
	}
	if f.Pending() != 1 {
		t.Fatalf("pending=%d, want 1", f.Pending())
	}

	if frames := NewFramer(0).Write([]byte{1, 2}); frames != nil {
		t.Fatalf("zero-size framer returned %v", frames)
	}
}
