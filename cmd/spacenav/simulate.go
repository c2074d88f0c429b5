package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/boristopalov/spacenav/pkg/agent"
	"github.com/boristopalov/spacenav/pkg/config"
	"github.com/boristopalov/spacenav/pkg/environment"
	"github.com/boristopalov/spacenav/pkg/simulation"
	"github.com/boristopalov/spacenav/pkg/storage"
	"github.com/boristopalov/spacenav/pkg/telemetry"
)

type simulateFlags struct {
	env          string
	table        string
	start        float64
	end          float64
	step         float64
	updateRPStep int
	db           string
	metricsFile  string
}

func newSimulateCmd() *cobra.Command {
	f := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay an action table against a scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSimulate(cmd, cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.env, "env", "", "scenario YAML file")
	flags.StringVar(&f.table, "table", "", "action table CSV file")
	flags.Float64Var(&f.start, "start", 0, "start epoch (MJD2000), defaults to the scenario window")
	flags.Float64Var(&f.end, "end", 0, "end epoch (MJD2000), defaults to the scenario window")
	flags.Float64Var(&f.step, "step", simulation.DefaultStep, "propagation step in days")
	flags.IntVar(&f.updateRPStep, "update-rp-step", 0, "refresh reward and probability every n steps, 0 only on action")
	flags.StringVar(&f.db, "db", "", "SQLite database to record the run in")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")
	return cmd
}

// apply overrides config values with flags the user set explicitly.
func (f *simulateFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("env") {
		cfg.Simulation.Scenario = f.env
	}
	if flags.Changed("table") {
		cfg.Simulation.ActionTable = f.table
	}
	if flags.Changed("start") {
		cfg.Simulation.StartEpoch = &f.start
	}
	if flags.Changed("end") {
		cfg.Simulation.EndEpoch = &f.end
	}
	if flags.Changed("step") {
		cfg.Simulation.Step = f.step
	}
	if flags.Changed("update-rp-step") {
		cfg.Simulation.UpdateRPStep = f.updateRPStep
	}
	if flags.Changed("db") {
		cfg.Storage.DBPath = f.db
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Path = f.metricsFile
	}
}

func runSimulate(cmd *cobra.Command, cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	logger, closeLog, err := newLogger(cmd.ErrOrStderr(), cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	scenario, err := loadEnvironment(cfg.Simulation.Scenario)
	if err != nil {
		return err
	}
	start, end, err := cfg.Simulation.Window(scenario.StartEpoch, scenario.EndEpoch)
	if err != nil {
		return err
	}
	if cfg.Simulation.ActionTable == "" {
		return fmt.Errorf("an action table is required (--table)")
	}
	policy, err := agent.NewTableAgentFromFile(cfg.Simulation.ActionTable, agent.WithLogger(logger))
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	recorder := telemetry.NewRecorder(cfg.Simulation.SampleEvery)
	opts := []simulation.Option{
		simulation.WithLogger(logger),
		simulation.WithWindow(start, end),
		simulation.WithStep(cfg.Simulation.Step),
		simulation.WithUpdateRPStep(cfg.Simulation.UpdateRPStep),
		simulation.WithSampleEvery(cfg.Simulation.SampleEvery),
		simulation.WithObserver(telemetry.NewMetrics(reg)),
		simulation.WithObserver(recorder),
	}

	var stopRenderer func()
	if verbose {
		broker := telemetry.NewBroker()
		defer broker.Reset()
		if stopRenderer, err = startRenderer(broker, cmd.OutOrStdout(), cfg.Simulation.RenderEvery, cfg.Simulation.RenderPause); err != nil {
			return err
		}
		opts = append(opts, simulation.WithObserver(broker))
	}

	env := environment.NewSpaceEnvironment(scenario)
	sim, err := simulation.New(env, policy, opts...)
	if err != nil {
		if stopRenderer != nil {
			stopRenderer()
		}
		return err
	}
	res, err := sim.Run(ctx)
	if stopRenderer != nil {
		stopRenderer()
	}
	if err != nil {
		return err
	}

	printResult(cmd, res, env)

	if cfg.Metrics.Path != "" {
		if err := telemetry.WriteTextfile(cfg.Metrics.Path, reg); err != nil {
			return err
		}
	}
	if store != nil {
		run := storage.RunRecord{
			ID:                   res.SessionID,
			Kind:                 "simulate",
			Scenario:             scenario.Name,
			StartEpoch:           float64(res.Start),
			EndEpoch:             float64(res.End),
			Step:                 res.Step,
			Reward:               res.Reward,
			FuelConsumption:      res.FuelConsumption,
			CollisionProbability: res.CollisionProbability,
			Iterations:           res.Iterations,
			Rejected:             res.Rejected,
			Samples:              recorder.Samples(),
			Rejections:           recorder.Rejections(),
		}
		if err := store.SaveRun(ctx, run); err != nil {
			return err
		}
		logger.Info("run recorded", "id", run.ID, "db", cfg.Storage.DBPath)
	}
	return nil
}

func printResult(cmd *cobra.Command, res *simulation.Result, env *environment.SpaceEnvironment) {
	out := cmd.OutOrStdout()
	components := env.RewardComponents()
	fmt.Fprintf(out, "session %s: %d iterations, %d polls, %d maneuvers applied, %d rejected\n",
		res.SessionID, res.Iterations, res.Polls, res.Applied, res.Rejected)
	fmt.Fprintf(out, "reward %.6f (collision %.6f, fuel %.6f, deviation %.6f)\n",
		res.Reward, components.CollisionProbability, components.Fuel, components.TrajectoryDeviation)
	fmt.Fprintf(out, "collision probability %.7f, fuel consumed %.5f\n",
		res.CollisionProbability, res.FuelConsumption)
	name, _ := env.ObjectNames()
	fmt.Fprintln(out, telemetry.FormatPosition(name, env.State().Coordinates.Protected))
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "finished in %s\n", res.Duration)
	}
}
