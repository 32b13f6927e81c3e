package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-triage/pkg/core/enrich"
	"github.com/vango-go/vai-triage/pkg/core/live"
	"github.com/vango-go/vai-triage/pkg/core/turn"
)

func newChatCmd(d deps, flags *globalFlags) *cobra.Command {
	var (
		speak bool
		lang  string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Type to the assistant; replies are printed and optionally spoken",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&speak, "speak", false, "speak replies through the default output device")
	cmd.Flags().StringVar(&lang, "lang", "", "language of typed input (defaults to the working language)")

	cmd.RunE = withRuntime(d, flags, func(ctx context.Context, rt *runtime) error {
		p, err := d.newProviders(ctx, rt.cfg, rt)
		if err != nil {
			return err
		}
		a, err := newApp(ctx, rt, p)
		if err != nil {
			return err
		}

		var player turn.Player
		if speak {
			aio, err := d.openAudio(rt.cfg, rt, false)
			if err != nil {
				return err
			}
			defer aio.Close()
			player = aio.Player
		}
		ctrl, err := a.newController(player, &live.MuteWindow{})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		turns := make(chan turn.TurnEvent, 1)
		served := make(chan error, 1)
		go func() {
			served <- a.serve(ctx, ctrl, nil,
				func(ev turn.TurnEvent) {
					select {
					case turns <- ev:
					case <-ctx.Done():
					}
				},
				func(f enrich.FollowUp) { printFollowUp(rt.out, f) })
		}()

		err = a.chat(ctx, cmd.InOrStdin(), ctrl, lang, turns)
		cancel()
		<-served
		return err
	})
	return cmd
}

// chat reads lines from in until EOF or /quit. Each line is one utterance; the
// reply is printed before the next prompt.
func (a *app) chat(ctx context.Context, in io.Reader, ctrl *turn.Controller, lang string, turns <-chan turn.TurnEvent) error {
	out := a.rt.out
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(out, "Describe your emergency. /clear starts over, /quit exits.")
	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			a.session.Reset()
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		if err := ctrl.Submit(ctx, line, lang); err != nil {
			return err
		}
		select {
		case ev := <-turns:
			printTurn(out, ev, false)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
