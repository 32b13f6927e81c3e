package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/vango-go/vai-triage/pkg/core/flow"
	"github.com/vango-go/vai-triage/pkg/core/lookup"
	"github.com/vango-go/vai-triage/pkg/core/memory"
	"github.com/vango-go/vai-triage/pkg/sink"
)

//go:embed scenarios.toml
var builtinScenarios []byte

type scenario struct {
	Name          string   `toml:"name"`
	Text          string   `toml:"text"`
	EmergencyType string   `toml:"emergency_type"`
	Lat           *float64 `toml:"lat"`
	Lon           *float64 `toml:"lon"`
}

type scenarioFile struct {
	Scenarios []scenario `toml:"scenario"`
}

func parseScenarios(data []byte) ([]scenario, error) {
	var f scenarioFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	for i, sc := range f.Scenarios {
		if strings.TrimSpace(sc.Text) == "" {
			return nil, fmt.Errorf("scenario %d (%q): text must not be empty", i, sc.Name)
		}
		if (sc.Lat == nil) != (sc.Lon == nil) {
			return nil, fmt.Errorf("scenario %q: lat and lon must be set together", sc.Name)
		}
	}
	return f.Scenarios, nil
}

const maxPromptPreview = 1200

func newSimulateCmd(d deps, flags *globalFlags) *cobra.Command {
	var (
		file  string
		names []string
		full  bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay canned emergency calls through extraction, prompting and generation",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&file, "file", "", "TOML scenario file (defaults to the built-in set)")
	cmd.Flags().StringSliceVar(&names, "scenario", nil, "only run the named scenarios")
	cmd.Flags().BoolVar(&full, "full-prompt", false, "print prompts without truncation")

	cmd.RunE = withRuntime(d, flags, func(ctx context.Context, rt *runtime) error {
		data := builtinScenarios
		if file != "" {
			b, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			data = b
		}
		all, err := parseScenarios(data)
		if err != nil {
			return err
		}
		scenarios := selectScenarios(all, names)
		if len(scenarios) == 0 {
			return fmt.Errorf("no scenario matches %s", strings.Join(names, ","))
		}

		p, err := d.newProviders(ctx, rt.cfg, rt)
		if err != nil {
			return err
		}
		a, err := newApp(ctx, rt, p)
		if err != nil {
			return err
		}
		limit := maxPromptPreview
		if full {
			limit = 0
		}
		for _, sc := range scenarios {
			if err := a.simulate(ctx, rt.out, sc, limit); err != nil {
				return err
			}
		}
		return nil
	})
	return cmd
}

func selectScenarios(all []scenario, names []string) []scenario {
	if len(names) == 0 {
		return all
	}
	var out []scenario
	for _, sc := range all {
		for _, n := range names {
			if strings.EqualFold(sc.Name, n) {
				out = append(out, sc)
				break
			}
		}
	}
	return out
}

// simulate runs one scenario on a fresh session: extraction, pinned overrides,
// prompt assembly and generation.
func (a *app) simulate(ctx context.Context, w io.Writer, sc scenario, limit int) error {
	sess := memory.NewSession(memory.SessionOptions{Logger: a.logger.With("scenario", sc.Name)})
	a.extractor.Extract(ctx, sess.Memory, sc.Text)
	if sc.EmergencyType != "" {
		sess.Memory.Set(memory.FactEmergencyType, sc.EmergencyType)
	}
	if sc.Lat != nil && sc.Lon != nil {
		sess.Memory.SetCoords(lookup.Coords{Lat: *sc.Lat, Lon: *sc.Lon})
	}
	sess.Log.Append(memory.RoleUser, sc.Text)

	fmt.Fprintf(w, "=== %s ===\n", sc.Name)
	fmt.Fprintf(w, "user: %s\n", sc.Text)
	snap := sess.Memory.Snapshot()
	if snap.Empty() {
		fmt.Fprintln(w, "memory: (empty)")
	} else {
		fmt.Fprintln(w, "memory:")
		for _, l := range snap.Lines() {
			fmt.Fprintf(w, "  %s\n", l)
		}
	}

	prompt := a.prompt.Build(ctx, sess)
	fmt.Fprintf(w, "prompt:\n%s\n", truncate(prompt, limit))

	gctx, cancel := context.WithTimeout(ctx, a.cfg.LLMTimeout)
	reply, err := a.p.Generator.Generate(gctx, prompt)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("generation failed", "scenario", sc.Name, "error", err)
		reply = flow.FallbackText
	}
	sess.Log.Append(memory.RoleAssistant, reply)
	fmt.Fprintf(w, "assistant: %s\n\n", reply)

	entry := sink.Entry{
		SessionID: sess.ID,
		Branch:    flow.BranchLLM.String(),
		At:        time.Now(),
		Record:    sink.RecordFromSnapshot(reply, sess.Memory.Snapshot()),
	}
	if err := a.sink.Save(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Warn("state not persisted", "error", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "\n[...]"
}
