package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/boristopalov/spacenav/pkg/config"
	"github.com/boristopalov/spacenav/pkg/core"
	"github.com/boristopalov/spacenav/pkg/environment"
	"github.com/boristopalov/spacenav/pkg/storage"
	"github.com/boristopalov/spacenav/pkg/telemetry"
)

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "spacenav",
		Short:         "spacenav replays and searches collision-avoidance maneuver plans against a simulated conjunction.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and per-iteration status lines")

	for _, envFile := range []string{
		".env",
		"../../.env",
		"../../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd.AddCommand(newSimulateCmd(), newTrainCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// signalContext cancels on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger writes to the configured log file, or stderr when none is set.
func newLogger(stderr io.Writer, cfg config.LogConfig) (*slog.Logger, func() error, error) {
	w := stderr
	closer := func() error { return nil }
	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.Path, err)
		}
		w, closer = f, f.Close
	}
	return telemetry.NewLogger(w, telemetry.ParseLevel(cfg.Level), cfg.Format), closer, nil
}

func loadEnvironment(path string) (*environment.Scenario, error) {
	if path == "" {
		return nil, fmt.Errorf("a scenario file is required (--env)")
	}
	return environment.LoadScenario(path)
}

func scenarioFactory(scenario *environment.Scenario) func() (core.Environment, error) {
	return func() (core.Environment, error) {
		return environment.NewSpaceEnvironment(scenario), nil
	}
}

func openStore(path string) (*storage.Store, error) {
	if path == "" {
		return nil, nil
	}
	return storage.Open(path)
}

// startRenderer drains a broker subscription into a Renderer on its own
// goroutine. The returned stop func unsubscribes and waits for the drain.
func startRenderer(broker *telemetry.Broker, w io.Writer, every int, pause time.Duration) (func(), error) {
	ch := make(chan core.IterationEvent, 4096)
	if err := broker.Subscribe("renderer", ch); err != nil {
		return nil, err
	}
	renderer := telemetry.NewRenderer(w, every, pause)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range ch {
			renderer.OnIteration(event)
		}
	}()
	return func() {
		_ = broker.Unsubscribe("renderer")
		close(ch)
		<-done
	}, nil
}
