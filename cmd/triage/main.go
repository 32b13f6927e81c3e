package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/vango-go/vai-triage/internal/dotenv"
	"github.com/vango-go/vai-triage/pkg/config"
)

// deps are the process-level collaborators runMain needs; tests replace them.
type deps struct {
	loadConfig   func(path string) (config.Config, error)
	newProviders func(ctx context.Context, cfg config.Config, rt *runtime) (*providers, error)
	openAudio    func(cfg config.Config, rt *runtime, capture bool) (*audioIO, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
	envFiles     []string
}

func defaultDeps() deps {
	return deps{
		loadConfig:   loadConfig,
		newProviders: newProviders,
		openAudio:    openAudio,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
		envFiles:   []string{".env.local", ".env"},
	}
}

func loadConfig(path string) (config.Config, error) {
	v, err := config.New(path)
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

func (d deps) validate() error {
	if d.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if d.newProviders == nil {
		return errors.New("missing newProviders dependency")
	}
	if d.openAudio == nil {
		return errors.New("missing openAudio dependency")
	}
	if d.signalNotify == nil || d.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	return nil
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func (d deps) withSignals(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	d.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		d.signalStop(sigCh)
		cancel()
	}
}

func runMain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, d deps) int {
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if err := d.validate(); err != nil {
		fmt.Fprintf(stderr, "triage: %v\n", err)
		return 1
	}
	if _, err := dotenv.Load(d.envFiles...); err != nil {
		fmt.Fprintf(stderr, "triage: %v\n", err)
		return 1
	}

	root := newRootCmd(d)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintf(stderr, "triage: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr, defaultDeps()))
}
