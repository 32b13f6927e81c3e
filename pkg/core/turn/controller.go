// Package turn runs one conversational turn at a time: transcribe, respond, and
// speak the reply in chunks while staying interruptible by the next utterance.
package turn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/vai-triage/pkg/core/flow"
	"github.com/vango-go/vai-triage/pkg/core/live"
	"github.com/vango-go/vai-triage/pkg/core/voice"
	"github.com/vango-go/vai-triage/pkg/core/voice/stt"
	"github.com/vango-go/vai-triage/pkg/core/voice/tts"
)

const (
	DefaultMuteGuard         = 500 * time.Millisecond
	DefaultPollInterval      = 50 * time.Millisecond
	DefaultTranscribeTimeout = 15 * time.Second
	DefaultSynthesizeTimeout = 10 * time.Second
	DefaultEventBuffer       = 32
)

// Granularity selects how quickly an interrupt stops playback.
type Granularity string

const (
	// GranularityChunk stops at the next chunk boundary.
	GranularityChunk Granularity = "chunk"
	// GranularityPoll also stops a chunk in progress, checked every PollInterval.
	GranularityPoll Granularity = "poll"
)

// ParseGranularity accepts "chunk" or "poll"; empty means chunk.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "", GranularityChunk:
		return GranularityChunk, nil
	case GranularityPoll:
		return g, nil
	default:
		return "", fmt.Errorf("unknown interrupt granularity %q", s)
	}
}

// Responder produces the reply for one utterance.
type Responder interface {
	Respond(ctx context.Context, u flow.Utterance) (flow.Reply, error)
}

// Player plays 16-bit mono PCM and returns when playback ends or ctx is done.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// TurnEvent describes one finished turn.
type TurnEvent struct {
	ID                string
	SessionID         string
	Utterance         string
	Lang              string
	Reply             string
	Branch            string
	Interrupted       bool
	Suppressed        bool
	ChunksPlayed      int
	ChunksSkipped     int
	SynthesisFailures int
	StartedAt         time.Time
	Duration          time.Duration
}

// Config holds the controller collaborators.
type Config struct {
	SessionID string
	Responder Responder

	STT stt.Provider
	TTS tts.Provider
	// Player is optional; without one replies are not synthesized.
	Player Player
	Mute   *live.MuteWindow

	Voice             string
	CaptureRate       int
	PlaybackRate      int
	MaxChunkChars     int
	MuteGuard         time.Duration
	Granularity       Granularity
	PollInterval      time.Duration
	TranscribeTimeout time.Duration
	SynthesizeTimeout time.Duration
	EventBuffer       int

	Logger *slog.Logger
	Tracer trace.Tracer
	Now    func() time.Time
}

// Controller arbitrates between incoming utterances and the single active turn.
type Controller struct {
	cfg        Config
	utterances chan flow.Utterance
	events     chan TurnEvent

	// onInterrupt runs in the event loop after an active turn is flagged.
	onInterrupt func()
}

// New creates a controller. Responder is required.
func New(cfg Config) (*Controller, error) {
	if cfg.Responder == nil {
		return nil, errors.New("responder is required")
	}
	if cfg.STT == nil {
		cfg.STT = stt.Unavailable{}
	}
	if cfg.TTS == nil {
		cfg.TTS = tts.Unavailable{}
	}
	if cfg.Mute == nil {
		cfg.Mute = &live.MuteWindow{}
	}
	if cfg.CaptureRate <= 0 {
		cfg.CaptureRate = live.DefaultAudioConfig().SampleRate
	}
	if cfg.PlaybackRate <= 0 {
		cfg.PlaybackRate = tts.DefaultSampleRate
	}
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = voice.DefaultMaxChunkChars
	}
	if cfg.MuteGuard < 0 {
		return nil, errors.New("mute guard must be >= 0")
	}
	if cfg.MuteGuard == 0 {
		cfg.MuteGuard = DefaultMuteGuard
	}
	if cfg.Granularity == "" {
		cfg.Granularity = GranularityChunk
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = DefaultTranscribeTimeout
	}
	if cfg.SynthesizeTimeout <= 0 {
		cfg.SynthesizeTimeout = DefaultSynthesizeTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/vango-go/vai-triage/pkg/core/turn")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		cfg:        cfg,
		utterances: make(chan flow.Utterance),
		events:     make(chan TurnEvent, cfg.EventBuffer),
	}, nil
}

// Events returns finished turns. The channel is closed when Run returns.
func (c *Controller) Events() <-chan TurnEvent { return c.events }

// Mute returns the mute window extended during playback.
func (c *Controller) Mute() *live.MuteWindow { return c.cfg.Mute }

// Submit hands a text utterance to the event loop. It returns once the loop has
// accepted it.
func (c *Controller) Submit(ctx context.Context, text, lang string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	select {
	case c.utterances <- flow.Utterance{Text: text, Lang: lang, At: c.cfg.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type activeTurn struct {
	playback *PlaybackSession
	done     chan TurnEvent
}

// Run owns the turn loop until ctx is done. Segments, when non-nil, are
// transcribed in arrival order by a dedicated goroutine.
func (c *Controller) Run(ctx context.Context, segments <-chan live.Segment) error {
	defer close(c.events)

	if segments != nil {
		go c.transcribe(ctx, segments)
	}

	var (
		active  *activeTurn
		pending []flow.Utterance
	)
	start := func() {
		u := pending[0]
		// Only the newest queued utterance is spoken.
		suppress := len(pending) > 1
		pending = pending[1:]

		active = &activeTurn{playback: newPlaybackSession(), done: make(chan TurnEvent, 1)}
		go func(t *activeTurn) {
			t.done <- c.runTurn(ctx, u, t.playback, suppress)
		}(active)
	}
	doneCh := func() <-chan TurnEvent {
		if active == nil {
			return nil
		}
		return active.done
	}

	for {
		select {
		case <-ctx.Done():
			if active != nil {
				active.playback.Interrupt()
				c.publish(<-active.done)
			}
			return ctx.Err()
		case u := <-c.utterances:
			pending = append(pending, u)
			if active == nil {
				start()
				continue
			}
			if !active.playback.Interrupted() {
				c.cfg.Logger.Info("interrupting active turn", "queued", len(pending))
			}
			active.playback.Interrupt()
			if c.onInterrupt != nil {
				c.onInterrupt()
			}
		case ev := <-doneCh():
			c.publish(ev)
			active = nil
			if len(pending) > 0 {
				start()
			}
		}
	}
}

func (c *Controller) publish(ev TurnEvent) {
	select {
	case c.events <- ev:
	default:
		c.cfg.Logger.Warn("turn event dropped; subscriber too slow", "turn_id", ev.ID)
	}
}

func (c *Controller) transcribe(ctx context.Context, segments <-chan live.Segment) {
	for {
		var seg live.Segment
		select {
		case <-ctx.Done():
			return
		case s, ok := <-segments:
			if !ok {
				return
			}
			seg = s
		}

		tctx, cancel := context.WithTimeout(ctx, c.cfg.TranscribeTimeout)
		tr, err := c.cfg.STT.Transcribe(tctx, bytes.NewReader(seg.Audio), stt.TranscribeOptions{SampleRate: c.cfg.CaptureRate})
		cancel()
		if err != nil {
			c.cfg.Logger.Warn("transcription failed", "provider", c.cfg.STT.Name(), "error", err)
			continue
		}
		text := strings.TrimSpace(tr.Text)
		if text == "" {
			c.cfg.Logger.Debug("empty transcript discarded", "duration", seg.Duration)
			continue
		}
		c.cfg.Logger.Info("utterance transcribed", "lang", tr.Language, "chars", len(text))

		select {
		case c.utterances <- flow.Utterance{Text: text, Lang: tr.Language, At: seg.At}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) runTurn(ctx context.Context, u flow.Utterance, pb *PlaybackSession, suppress bool) TurnEvent {
	ctx, span := c.cfg.Tracer.Start(ctx, "turn.run")
	defer span.End()

	started := c.cfg.Now()
	ev := TurnEvent{
		ID:        ulid.Make().String(),
		SessionID: c.cfg.SessionID,
		Utterance: u.Text,
		Lang:      u.Lang,
		StartedAt: started,
	}
	log := c.cfg.Logger.With("turn_id", ev.ID)
	log.Info("turn started", "suppressed", suppress)

	reply, err := c.cfg.Responder.Respond(ctx, u)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("turn abandoned", "error", err)
		ev.Interrupted = true
		ev.Duration = c.cfg.Now().Sub(started)
		return ev
	}
	ev.Reply = reply.Text
	ev.Lang = reply.Lang
	ev.Branch = reply.Branch.String()

	pb.setChunks(voice.SplitChunks(reply.Text, c.cfg.MaxChunkChars))
	switch {
	case suppress:
		ev.Suppressed = true
		ev.ChunksSkipped = pb.Len()
	case c.cfg.Player != nil:
		c.speak(ctx, pb, reply.Lang, &ev, log)
	}

	ev.Interrupted = pb.Interrupted()
	ev.Duration = c.cfg.Now().Sub(started)
	span.SetAttributes(
		attribute.String("turn.branch", ev.Branch),
		attribute.Bool("turn.interrupted", ev.Interrupted),
		attribute.Int("turn.chunks_played", ev.ChunksPlayed),
		attribute.Int("turn.chunks_skipped", ev.ChunksSkipped),
	)
	log.Info("turn finished", "branch", ev.Branch, "interrupted", ev.Interrupted, "played", ev.ChunksPlayed, "duration", ev.Duration)
	return ev
}

func (c *Controller) speak(ctx context.Context, pb *PlaybackSession, lang string, ev *TurnEvent, log *slog.Logger) {
	defer func() { ev.ChunksSkipped += pb.Len() - pb.Index() }()

	for {
		chunk, ok := pb.next()
		if !ok {
			return
		}

		sctx, cancel := context.WithTimeout(ctx, c.cfg.SynthesizeTimeout)
		syn, err := c.cfg.TTS.Synthesize(sctx, chunk, tts.SynthesizeOptions{
			Voice:      c.cfg.Voice,
			Language:   lang,
			SampleRate: c.cfg.PlaybackRate,
		})
		cancel()
		if err == nil && (syn == nil || len(syn.Audio) == 0) {
			err = errors.New("empty audio")
		}
		if err != nil {
			log.Warn("synthesis failed; skipping chunk", "provider", c.cfg.TTS.Name(), "error", err)
			ev.SynthesisFailures++
			ev.ChunksSkipped++
			continue
		}
		if pb.Interrupted() {
			ev.ChunksSkipped++
			return
		}

		c.cfg.Mute.Extend(c.cfg.Now().Add(syn.Duration() + c.cfg.MuteGuard))
		ev.ChunksPlayed++
		if err := c.play(ctx, pb, syn); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("playback failed", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Controller) play(ctx context.Context, pb *PlaybackSession, syn *tts.Synthesis) error {
	if c.cfg.Granularity != GranularityPoll {
		return c.cfg.Player.Play(ctx, syn.Audio, syn.SampleRate)
	}

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.cfg.Player.Play(playCtx, syn.Audio, syn.SampleRate) }()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if pb.Interrupted() {
				cancel()
				return <-done
			}
		}
	}
}
