package live

import (
	"math"
	"sync"
)

// CalculateRMSEnergy computes the root-mean-square energy of 16-bit signed
// little-endian PCM, normalised to 0.0..1.0. A trailing odd byte is ignored.
func CalculateRMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		v := float64(int16(pcm[i])|int16(pcm[i+1])<<8) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}

// CalculatePeakAmplitude returns the maximum absolute amplitude in 0.0..1.0.
func CalculatePeakAmplitude(pcm []byte) float64 {
	var peak float64
	for i := 0; i+1 < len(pcm); i += 2 {
		// float64 avoids overflow when negating -32768
		if abs := math.Abs(float64(int16(pcm[i]) | int16(pcm[i+1])<<8)); abs > peak {
			peak = abs
		}
	}
	return peak / 32768.0
}

// AudioBuffer accumulates the PCM of one candidate segment up to a fixed
// capacity. Writes beyond capacity drop the oldest audio.
type AudioBuffer struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
	config   AudioConfig
}

// NewAudioBuffer creates a buffer that holds up to maxDurationMs of audio.
func NewAudioBuffer(config AudioConfig, maxDurationMs int) *AudioBuffer {
	maxBytes := config.BytesForDurationMs(maxDurationMs)
	return &AudioBuffer{
		data:     make([]byte, 0, maxBytes),
		maxBytes: maxBytes,
		config:   config,
	}
}

// Write appends audio data.
func (b *AudioBuffer) Write(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, data...)
	if excess := len(b.data) - b.maxBytes; excess > 0 {
		b.data = b.data[excess:]
	}
}

// Take returns a copy of the buffered audio without its last dropTail bytes and
// empties the buffer.
func (b *AudioBuffer) Take(dropTail int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.data) - dropTail
	if n < 0 {
		n = 0
	}
	out := make([]byte, n)
	copy(out, b.data[:n])
	b.data = b.data[:0]
	return out
}

// Len returns the current buffer size in bytes.
func (b *AudioBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// DurationMs returns the buffered duration in milliseconds.
func (b *AudioBuffer) DurationMs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.DurationMs(len(b.data))
}

// Clear empties the buffer.
func (b *AudioBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}

// RingBuffer keeps the most recent audio before speech onset so the first
// syllable is not clipped from a segment.
type RingBuffer struct {
	mu       sync.Mutex
	data     []byte
	size     int
	writePos int
	filled   int
}

// NewRingBuffer creates a ring buffer that holds exactly durationMs of audio.
func NewRingBuffer(config AudioConfig, durationMs int) *RingBuffer {
	size := config.BytesForDurationMs(durationMs)
	return &RingBuffer{
		data: make([]byte, size),
		size: size,
	}
}

// Write adds data, overwriting the oldest bytes when full.
func (r *RingBuffer) Write(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return
	}
	for _, b := range data {
		r.data[r.writePos] = b
		r.writePos = (r.writePos + 1) % r.size
		if r.filled < r.size {
			r.filled++
		}
	}
}

// Read returns the buffered audio in chronological order.
func (r *RingBuffer) Read() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled < r.size {
		out := make([]byte, r.filled)
		copy(out, r.data[:r.filled])
		return out
	}
	out := make([]byte, r.size)
	n := copy(out, r.data[r.writePos:])
	copy(out[n:], r.data[:r.writePos])
	return out
}

// Clear resets the ring buffer.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writePos = 0
	r.filled = 0
}

// Filled returns the number of buffered bytes.
func (r *RingBuffer) Filled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filled
}

// Framer cuts capture buffers of arbitrary size into fixed-size frames.
type Framer struct {
	frameBytes int
	pending    []byte
}

// NewFramer creates a framer producing frames of frameBytes bytes.
func NewFramer(frameBytes int) *Framer {
	return &Framer{frameBytes: frameBytes}
}

// Write consumes p and returns every complete frame. A partial frame is kept
// for the next call.
func (f *Framer) Write(p []byte) [][]byte {
	if f.frameBytes <= 0 {
		return nil
	}
	f.pending = append(f.pending, p...)
	var frames [][]byte
	for len(f.pending) >= f.frameBytes {
		frame := make([]byte, f.frameBytes)
		copy(frame, f.pending[:f.frameBytes])
		frames = append(frames, frame)
		f.pending = f.pending[f.frameBytes:]
	}
	if len(f.pending) == 0 {
		f.pending = nil
	}
	return frames
}

// Pending returns the number of bytes waiting for a full frame.
func (f *Framer) Pending() int { return len(f.pending) }
