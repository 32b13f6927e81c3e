package live

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SpeechDetector classifies one analysis frame.
type SpeechDetector interface {
	IsSpeech(frame []byte) bool
}

// EnergyDetector treats frames at or above Threshold RMS energy as speech. A
// non-zero Peak also requires the loudest sample to reach it, which rejects
// steady low hum that clears the RMS floor.
type EnergyDetector struct {
	Threshold float64
	Peak      float64
}

func (d EnergyDetector) IsSpeech(frame []byte) bool {
	if CalculateRMSEnergy(frame) < d.Threshold {
		return false
	}
	return d.Peak <= 0 || CalculatePeakAmplitude(frame) >= d.Peak
}

// Segment is one utterance cut from the capture stream.
type Segment struct {
	// Audio is 16-bit PCM in the segmenter's AudioConfig, without trailing silence.
	Audio    []byte
	Duration time.Duration
	// Voiced is the time classified as speech.
	Voiced time.Duration
	// Forced is set when the segment was flushed for exceeding MaxSegment.
	Forced bool
	At     time.Time
}

// Outcome labels what happened to a candidate.
type Outcome string

const (
	OutcomeEmitted Outcome = "emitted"
	OutcomeForced  Outcome = "forced"
	OutcomeNoise   Outcome = "noise"
	OutcomeMuted   Outcome = "muted"
)

// MuteWindow suppresses segmentation while the assistant is speaking.
type MuteWindow struct {
	mu    sync.Mutex
	until time.Time
}

// Extend moves the end of the window to until if that is later than the current end.
func (w *MuteWindow) Extend(until time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if until.After(w.until) {
		w.until = until
	}
}

// Active reports whether now falls inside the window.
func (w *MuteWindow) Active(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Before(w.until)
}

// Until returns the end of the window.
func (w *MuteWindow) Until() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.until
}

// Segmenter groups speech frames into utterance segments. Push is not safe for
// concurrent use; Run owns it in the capture loop.
type Segmenter struct {
	cfg      SegmenterConfig
	detector SpeechDetector
	mute     *MuteWindow
	now      func() time.Time
	logger   *slog.Logger

	frameBytes     int
	silenceFrames  int
	minVoiced      int
	maxFrames      int
	candidate      *AudioBuffer
	preRoll        *RingBuffer
	inSpeech       bool
	voiced         int
	total          int
	trailingSilent int

	// OnOutcome, when set, observes every finished or dropped candidate.
	OnOutcome func(Outcome)
}

// SegmenterOption configures a Segmenter.
type SegmenterOption func(*Segmenter)

// WithDetector replaces the energy detector.
func WithDetector(d SpeechDetector) SegmenterOption {
	return func(s *Segmenter) { s.detector = d }
}

// WithMuteWindow shares a mute window with the playback side.
func WithMuteWindow(w *MuteWindow) SegmenterOption {
	return func(s *Segmenter) { s.mute = w }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SegmenterOption {
	return func(s *Segmenter) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SegmenterOption {
	return func(s *Segmenter) { s.logger = l }
}

// NewSegmenter validates cfg and creates a segmenter.
func NewSegmenter(cfg SegmenterConfig, opts ...SegmenterOption) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Segmenter{
		cfg:      cfg,
		detector: EnergyDetector{Threshold: cfg.EnergyThreshold, Peak: cfg.PeakThreshold},
		mute:     &MuteWindow{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.frameBytes = cfg.FrameBytes()
	s.silenceFrames = framesExceeding(cfg.SilenceTimeout, cfg.FrameDuration)
	s.minVoiced = framesExceeding(cfg.MinUtterance, cfg.FrameDuration)
	s.maxFrames = framesExceeding(cfg.MaxSegment, cfg.FrameDuration)

	capMs := int((cfg.MaxSegment + cfg.PrefixPadding + 2*cfg.FrameDuration) / time.Millisecond)
	s.candidate = NewAudioBuffer(cfg.Audio, capMs)
	s.preRoll = NewRingBuffer(cfg.Audio, int(cfg.PrefixPadding/time.Millisecond))
	return s, nil
}

// framesExceeding returns the smallest frame count whose duration is strictly
// greater than d.
func framesExceeding(d, frame time.Duration) int {
	return int(d/frame) + 1
}

// FrameBytes returns the frame size Push expects.
func (s *Segmenter) FrameBytes() int { return s.frameBytes }

// Mute returns the mute window consulted by Push.
func (s *Segmenter) Mute() *MuteWindow { return s.mute }

// Push feeds one frame and returns a segment when one completes.
func (s *Segmenter) Push(frame []byte) (Segment, bool) {
	now := s.now()
	if s.mute.Active(now) {
		if s.inSpeech {
			s.logger.Debug("dropping candidate during playback", "frames", s.total)
			s.finish(OutcomeMuted)
		}
		s.preRoll.Clear()
		return Segment{}, false
	}

	speech := s.detector.IsSpeech(frame)
	if !s.inSpeech {
		if !speech {
			s.preRoll.Write(frame)
			return Segment{}, false
		}
		s.inSpeech = true
		s.candidate.Write(s.preRoll.Read())
		s.preRoll.Clear()
		s.candidate.Write(frame)
		s.voiced, s.total, s.trailingSilent = 1, 1, 0
		return Segment{}, false
	}

	s.candidate.Write(frame)
	s.total++
	if speech {
		s.voiced++
		s.trailingSilent = 0
	} else {
		s.trailingSilent++
	}

	switch {
	case s.total >= s.maxFrames:
		s.logger.Warn("segment too long", "max", s.cfg.MaxSegment)
		if s.voiced < s.minVoiced {
			s.finish(OutcomeNoise)
			return Segment{}, false
		}
		seg := s.emit(now, 0, true)
		s.finish(OutcomeForced)
		return seg, true
	case s.trailingSilent >= s.silenceFrames:
		if s.voiced < s.minVoiced {
			s.logger.Debug("discarding short candidate", "voiced_frames", s.voiced)
			s.finish(OutcomeNoise)
			return Segment{}, false
		}
		seg := s.emit(now, s.trailingSilent*s.frameBytes, false)
		s.finish(OutcomeEmitted)
		return seg, true
	}
	return Segment{}, false
}

func (s *Segmenter) emit(now time.Time, dropTail int, forced bool) Segment {
	audio := s.candidate.Take(dropTail)
	return Segment{
		Audio:    audio,
		Duration: s.cfg.Audio.Duration(len(audio)),
		Voiced:   time.Duration(s.voiced) * s.cfg.FrameDuration,
		Forced:   forced,
		At:       now,
	}
}

func (s *Segmenter) finish(o Outcome) {
	s.candidate.Clear()
	s.inSpeech = false
	s.voiced, s.total, s.trailingSilent = 0, 0, 0
	if s.OnOutcome != nil {
		s.OnOutcome(o)
	}
}

// Run frames capture buffers from in and sends completed segments to out until
// ctx is done or in is closed.
func (s *Segmenter) Run(ctx context.Context, in <-chan []byte, out chan<- Segment) error {
	framer := NewFramer(s.frameBytes)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case buf, ok := <-in:
			if !ok {
				return nil
			}
			for _, frame := range framer.Write(buf) {
				seg, ok := s.Push(frame)
				if !ok {
					continue
				}
				s.logger.Info("utterance segmented", "duration", seg.Duration, "forced", seg.Forced)
				select {
				case out <- seg:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
