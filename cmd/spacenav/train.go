package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/boristopalov/spacenav/pkg/config"
	"github.com/boristopalov/spacenav/pkg/simulation"
	"github.com/boristopalov/spacenav/pkg/storage"
	"github.com/boristopalov/spacenav/pkg/training"
)

type trainFlags struct {
	env       string
	samples   int
	workers   int
	seed      int64
	maxDV     float64
	savePath  string
	statsPath string
	start     float64
	end       float64
	step      float64
	db        string
}

func newTrainCmd() *cobra.Command {
	f := &trainFlags{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Search random single-maneuver tables and save the best one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runTrain(cmd, cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.env, "env", "", "scenario YAML file")
	flags.IntVar(&f.samples, "samples", 100, "number of random tables to evaluate")
	flags.IntVar(&f.workers, "workers", 4, "sessions evaluated concurrently")
	flags.Int64Var(&f.seed, "seed", 1, "random seed")
	flags.Float64Var(&f.maxDV, "max-dv", 1, "bound on each velocity component (m/s)")
	flags.StringVar(&f.savePath, "save-path", "action_table.csv", "where to write the best action table")
	flags.StringVar(&f.statsPath, "stats-path", "", "optional per-sample CSV statistics")
	flags.Float64Var(&f.start, "start", 0, "start epoch (MJD2000), defaults to the scenario window")
	flags.Float64Var(&f.end, "end", 0, "end epoch (MJD2000), defaults to the scenario window")
	flags.Float64Var(&f.step, "step", simulation.DefaultStep, "propagation step in days")
	flags.StringVar(&f.db, "db", "", "SQLite database to record the best run in")
	return cmd
}

func (f *trainFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("env") {
		cfg.Simulation.Scenario = f.env
	}
	if flags.Changed("samples") {
		cfg.Training.Samples = f.samples
	}
	if flags.Changed("workers") {
		cfg.Training.Workers = f.workers
	}
	if flags.Changed("seed") {
		cfg.Training.Seed = f.seed
	}
	if flags.Changed("max-dv") {
		cfg.Training.MaxDeltaV = f.maxDV
	}
	if flags.Changed("save-path") {
		cfg.Training.SavePath = f.savePath
	}
	if flags.Changed("stats-path") {
		cfg.Training.StatsPath = f.statsPath
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
	if flags.Changed("db") {
		cfg.Storage.DBPath = f.db
	}
}

func runTrain(cmd *cobra.Command, cfg *config.Config) error {
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
	store, err := openStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []training.Option{
		training.WithLogger(logger),
		training.WithSamples(cfg.Training.Samples),
		training.WithWorkers(cfg.Training.Workers),
		training.WithSeed(cfg.Training.Seed),
		training.WithMaxDeltaV(cfg.Training.MaxDeltaV),
		training.WithWindow(start, end),
		training.WithStep(cfg.Simulation.Step),
		training.WithUpdateRPStep(cfg.Simulation.UpdateRPStep),
		training.WithSavePath(cfg.Training.SavePath),
		training.WithStatsPath(cfg.Training.StatsPath),
	}
	baseline, err := training.NewBaseline(scenarioFactory(scenario), opts...)
	if err != nil {
		return err
	}

	started := time.Now()
	report, err := baseline.Run(ctx)
	if err != nil {
		return err
	}

	best := report.Best
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "evaluated %d tables in %s\n", len(report.Samples), time.Since(started).Round(time.Millisecond))
	fmt.Fprintf(out, "baseline reward %.6f, best reward %.6f (sample %d)\n",
		report.Samples[0].Reward, best.Reward, best.Index)
	if len(best.Table) > 0 {
		row := best.Table[0]
		fmt.Fprintf(out, "best maneuver at %s: dVx %.5f, dVy %.5f, dVz %.5f\n", row.Epoch, row.DVx, row.DVy, row.DVz)
	}
	fmt.Fprintf(out, "best table saved to %s\n", cfg.Training.SavePath)

	if store != nil {
		res := best.Result
		run := storage.RunRecord{
			ID:                   report.RunID,
			Kind:                 "train",
			Scenario:             scenario.Name,
			StartEpoch:           float64(res.Start),
			EndEpoch:             float64(res.End),
			Step:                 res.Step,
			Reward:               res.Reward,
			FuelConsumption:      res.FuelConsumption,
			CollisionProbability: res.CollisionProbability,
			Iterations:           res.Iterations,
			Rejected:             res.Rejected,
			Samples:              res.Series,
			Rejections:           res.Rejections,
		}
		if err := store.SaveRun(ctx, run); err != nil {
			return err
		}
		logger.Info("run recorded", "id", run.ID, "db", cfg.Storage.DBPath)
	}
	return nil
}
