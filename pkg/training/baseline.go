// Package training searches for action tables by running many independent
// simulation sessions.
package training

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/boristopalov/spacenav/pkg/actiontable"
	"github.com/boristopalov/spacenav/pkg/agent"
	"github.com/boristopalov/spacenav/pkg/core"
	"github.com/boristopalov/spacenav/pkg/simulation"
)

var ErrNilFactory = errors.New("environment factory is nil")

// EnvironmentFactory builds a fresh environment for one session.
type EnvironmentFactory func() (core.Environment, error)

type Params struct {
	Logger       *slog.Logger
	Samples      int
	Workers      int
	Seed         int64
	MaxDeltaV    float64
	Step         float64
	UpdateRPStep int
	Start        core.Epoch
	End          core.Epoch
	SavePath     string
	StatsPath    string
	Observer     core.Observer

	windowSet bool
}

type Option func(*Params)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Params) { p.Logger = logger }
}

// WithSamples sets how many random tables are tried besides the empty one.
func WithSamples(n int) Option {
	return func(p *Params) { p.Samples = n }
}

func WithWorkers(n int) Option {
	return func(p *Params) { p.Workers = n }
}

func WithSeed(seed int64) Option {
	return func(p *Params) { p.Seed = seed }
}

// WithMaxDeltaV bounds each velocity component of a random maneuver.
func WithMaxDeltaV(dv float64) Option {
	return func(p *Params) { p.MaxDeltaV = dv }
}

func WithStep(days float64) Option {
	return func(p *Params) { p.Step = days }
}

func WithUpdateRPStep(n int) Option {
	return func(p *Params) { p.UpdateRPStep = n }
}

func WithWindow(start, end core.Epoch) Option {
	return func(p *Params) {
		p.Start, p.End = start, end
		p.windowSet = true
	}
}

// WithSavePath writes the best table to path once training finishes.
func WithSavePath(path string) Option {
	return func(p *Params) { p.SavePath = path }
}

// WithStatsPath writes one CSV line per sample to path.
func WithStatsPath(path string) Option {
	return func(p *Params) { p.StatsPath = path }
}

// WithObserver attaches o to every session. It is called from several
// goroutines and must be safe for concurrent use.
func WithObserver(o core.Observer) Option {
	return func(p *Params) { p.Observer = o }
}

// SampleResult is the outcome of one evaluated table.
type SampleResult struct {
	Index  int
	Table  actiontable.Table
	Reward float64
	Result *simulation.Result
}

// Report summarises a training run. Samples are ordered by index; index 0 is
// the empty table.
type Report struct {
	RunID   string
	Best    SampleResult
	Samples []SampleResult
}

// Baseline is a random-sampling optimiser: it scores the empty table and a
// number of random single-maneuver tables and keeps the best one.
type Baseline struct {
	factory EnvironmentFactory
	params  *Params
}

func NewBaseline(factory EnvironmentFactory, opts ...Option) (*Baseline, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	params := &Params{
		Samples:   100,
		Workers:   1,
		Seed:      1,
		MaxDeltaV: 1,
		Step:      simulation.DefaultStep,
	}
	for _, opt := range opts {
		opt(params)
	}
	if params.Logger == nil {
		params.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if params.Samples < 0 {
		return nil, fmt.Errorf("samples must not be negative, got %d", params.Samples)
	}
	if params.Workers < 1 {
		params.Workers = 1
	}
	if !(params.MaxDeltaV > 0) {
		return nil, fmt.Errorf("max delta-v must be positive, got %v", params.MaxDeltaV)
	}
	return &Baseline{factory: factory, params: params}, nil
}

// Run evaluates every sample, writes the optional outputs and returns the
// report. The first session error cancels the remaining samples.
func (b *Baseline) Run(ctx context.Context) (*Report, error) {
	p := b.params
	runID := uuid.NewString()
	logger := p.Logger.With(slog.String("run", runID))

	start, end := p.Start, p.End
	if !p.windowSet {
		env, err := b.factory()
		if err != nil {
			return nil, fmt.Errorf("failed to create environment: %w", err)
		}
		start, end = env.Window()
	}

	tables := make([]actiontable.Table, p.Samples+1)
	tables[0] = actiontable.Table{}
	for i := 1; i <= p.Samples; i++ {
		tables[i] = RandomTable(p.Seed, i, start, end, p.MaxDeltaV)
	}

	logger.InfoContext(ctx, "training started",
		"samples", p.Samples, "workers", p.Workers, "seed", p.Seed,
		"start", start, "end", end)

	results := make([]SampleResult, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for i, table := range tables {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := b.evaluate(gctx, logger.With(slog.Int("sample", i)), start, end, table)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			results[i] = SampleResult{Index: i, Table: table, Reward: res.Reward, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{RunID: runID, Samples: results, Best: Best(results)}
	logger.InfoContext(ctx, "training finished",
		"best_sample", report.Best.Index, "best_reward", report.Best.Reward,
		"baseline_reward", results[0].Reward)

	if p.StatsPath != "" {
		if err := writeStatsFile(p.StatsPath, results); err != nil {
			return nil, err
		}
	}
	if p.SavePath != "" {
		if err := actiontable.Save(p.SavePath, report.Best.Table); err != nil {
			return nil, fmt.Errorf("failed to save best table: %w", err)
		}
		logger.InfoContext(ctx, "best table saved", "path", p.SavePath)
	}
	return report, nil
}

func (b *Baseline) evaluate(ctx context.Context, logger *slog.Logger, start, end core.Epoch, table actiontable.Table) (*simulation.Result, error) {
	env, err := b.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create environment: %w", err)
	}
	opts := []simulation.Option{
		simulation.WithLogger(logger),
		simulation.WithStep(b.params.Step),
		simulation.WithWindow(start, end),
		simulation.WithUpdateRPStep(b.params.UpdateRPStep),
	}
	if b.params.Observer != nil {
		opts = append(opts, simulation.WithObserver(b.params.Observer))
	}
	sim, err := simulation.New(env, agent.NewTableAgent(table, agent.WithLogger(logger)), opts...)
	if err != nil {
		return nil, err
	}
	return sim.Run(ctx)
}

// RandomTable draws the single-maneuver table of sample index. The same seed
// and index always give the same table.
func RandomTable(seed int64, index int, start, end core.Epoch, maxDeltaV float64) actiontable.Table {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(index)))
	component := func() float64 {
		return (2*rng.Float64() - 1) * maxDeltaV
	}
	epoch := start.Add(rng.Float64() * float64(end-start))
	return actiontable.Table{{
		Epoch: epoch,
		DVx:   component(),
		DVy:   component(),
		DVz:   component(),
	}}
}

// Best returns the highest-reward sample; ties go to the lowest index.
func Best(samples []SampleResult) SampleResult {
	var best SampleResult
	for i, s := range samples {
		if i == 0 || s.Reward > best.Reward {
			best = s
		}
	}
	return best
}

// WriteStats writes one line per sample: sample,reward,epoch,dVx,dVy,dVz.
// Maneuver columns are empty for the empty table.
func WriteStats(w io.Writer, samples []SampleResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sample", "reward", "epoch", "dVx", "dVy", "dVz"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, s := range samples {
		record := []string{strconv.Itoa(s.Index), f(s.Reward), "", "", "", ""}
		if len(s.Table) > 0 {
			row := s.Table[0]
			record[2], record[3], record[4], record[5] = f(float64(row.Epoch)), f(row.DVx), f(row.DVy), f(row.DVz)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeStatsFile(path string, samples []SampleResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create stats file: %w", err)
	}
	if err := WriteStats(file, samples); err != nil {
		file.Close()
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	return file.Close()
}
