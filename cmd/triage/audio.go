package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/vango-go/vai-triage/pkg/config"
	"github.com/vango-go/vai-triage/pkg/core/live"
	"github.com/vango-go/vai-triage/pkg/core/turn"
)

// audioIO is the local microphone and speaker. Frames is nil when capture was
// not requested.
type audioIO struct {
	Frames <-chan []byte
	Player turn.Player
	Close  func()
}

// openAudio opens the speaker and, when capture is set, the microphone.
func openAudio(cfg config.Config, rt *runtime, capture bool) (*audioIO, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.PlaybackRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	a := &audioIO{
		Player: &speaker{ctx: otoCtx, rate: cfg.PlaybackRate, poll: 10 * time.Millisecond},
		Close:  func() {},
	}
	if !capture {
		return a, nil
	}

	frames, closeMic, err := openMicrophone(live.DefaultAudioConfig(), rt.logger)
	if err != nil {
		return nil, err
	}
	a.Frames = frames
	a.Close = closeMic
	return a, nil
}

// openMicrophone starts capture and delivers raw buffers on the returned
// channel. Buffers are dropped when the consumer falls behind.
func openMicrophone(ac live.AudioConfig, logger *slog.Logger) (<-chan []byte, func(), error) {
	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("init audio context: %w", err)
	}

	frames := make(chan []byte, 64)
	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(ac.Channels)
	devCfg.SampleRate = uint32(ac.SampleRate)
	devCfg.PeriodSizeInMilliseconds = 20

	var dropped int
	device, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			buf := make([]byte, len(in))
			copy(buf, in)
			select {
			case frames <- buf:
			default:
				dropped++
				if dropped%50 == 1 {
					logger.Warn("capture buffer full; dropping audio", "dropped", dropped)
				}
			}
		},
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, nil, fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, nil, fmt.Errorf("start microphone: %w", err)
	}

	closeFn := func() {
		_ = device.Stop()
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
	}
	return frames, closeFn, nil
}

// speaker plays one buffer at a time through oto.
type speaker struct {
	ctx  *oto.Context
	rate int
	poll time.Duration
}

func (s *speaker) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if sampleRate != s.rate {
		return fmt.Errorf("speaker runs at %d Hz, got %d Hz", s.rate, sampleRate)
	}
	p := s.ctx.NewPlayer(bytes.NewReader(pcm))
	p.Play()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Pause()
			_ = p.Close()
			return ctx.Err()
		case <-ticker.C:
			if !p.IsPlaying() {
				return p.Close()
			}
		}
	}
}
