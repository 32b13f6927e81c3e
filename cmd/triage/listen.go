package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-go/vai-triage/pkg/config"
	"github.com/vango-go/vai-triage/pkg/core/enrich"
	"github.com/vango-go/vai-triage/pkg/core/live"
	"github.com/vango-go/vai-triage/pkg/core/turn"
)

func newListenCmd(d deps, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Talk to the assistant through the microphone",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withRuntime(d, flags, func(ctx context.Context, rt *runtime) error {
		p, err := d.newProviders(ctx, rt.cfg, rt)
		if err != nil {
			return err
		}
		a, err := newApp(ctx, rt, p)
		if err != nil {
			return err
		}
		aio, err := d.openAudio(rt.cfg, rt, true)
		if err != nil {
			return err
		}
		defer aio.Close()

		mute := &live.MuteWindow{}
		seg, err := live.NewSegmenter(segmenterConfig(rt.cfg), live.WithMuteWindow(mute), live.WithLogger(a.logger))
		if err != nil {
			return err
		}
		seg.OnOutcome = func(o live.Outcome) { rt.metrics.RecordSegment(string(o)) }

		ctrl, err := a.newController(aio.Player, mute)
		if err != nil {
			return err
		}

		fmt.Fprintln(rt.out, "Listening. Describe your emergency; press Ctrl+C to stop.")
		segments := make(chan live.Segment, 4)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return seg.Run(gctx, aio.Frames, segments) })
		g.Go(func() error {
			return a.serve(gctx, ctrl, segments,
				func(ev turn.TurnEvent) { printTurn(rt.out, ev, true) },
				func(f enrich.FollowUp) { printFollowUp(rt.out, f) })
		})
		return g.Wait()
	})
	return cmd
}

func segmenterConfig(cfg config.Config) live.SegmenterConfig {
	sc := live.DefaultSegmenterConfig()
	if cfg.SilenceTimeout > 0 {
		sc.SilenceTimeout = cfg.SilenceTimeout
	}
	if cfg.MinUtterance > 0 {
		sc.MinUtterance = cfg.MinUtterance
	}
	if cfg.MaxSegment > 0 {
		sc.MaxSegment = cfg.MaxSegment
	}
	if cfg.EnergyThreshold > 0 {
		sc.EnergyThreshold = cfg.EnergyThreshold
	}
	sc.PeakThreshold = cfg.PeakThreshold
	return sc
}

func printTurn(w io.Writer, ev turn.TurnEvent, echo bool) {
	if echo && ev.Utterance != "" {
		fmt.Fprintf(w, "you: %s\n", ev.Utterance)
	}
	switch {
	case ev.Suppressed:
		fmt.Fprintf(w, "assistant [%s, superseded]: %s\n", ev.Branch, ev.Reply)
	case ev.Interrupted:
		fmt.Fprintf(w, "assistant [%s, interrupted]: %s\n", ev.Branch, ev.Reply)
	default:
		fmt.Fprintf(w, "assistant [%s]: %s\n", ev.Branch, ev.Reply)
	}
}

func printFollowUp(w io.Writer, f enrich.FollowUp) {
	fmt.Fprintf(w, "assistant [update]: %s\n", f.Text)
}
