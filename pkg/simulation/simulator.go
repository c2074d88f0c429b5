// Package simulation drives a policy against an environment over a fixed
// epoch window.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/boristopalov/spacenav/pkg/core"
	"github.com/boristopalov/spacenav/pkg/telemetry"
)

// DefaultStep is the propagation step in days.
const DefaultStep = 0.001

// stepTolerance absorbs float error when the window is a whole number of steps.
const stepTolerance = 1e-6

var (
	ErrInvalidStep    = errors.New("simulation step must be positive")
	ErrInvalidWindow  = errors.New("simulation end epoch precedes start epoch")
	ErrNilEnvironment = errors.New("simulation environment is nil")
	ErrNilPolicy      = errors.New("simulation policy is nil")
	ErrSessionEnded   = errors.New("simulation session already ran")
)

// State is the lifecycle of a session.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status mirrors the session lifecycle for callers polling from elsewhere.
type Status struct {
	State     State
	StartTime time.Time
	EndTime   time.Time
}

// Result is what a finished session reports.
type Result struct {
	SessionID            string
	Start                core.Epoch
	End                  core.Epoch
	Step                 float64
	Reward               float64
	FuelConsumption      float64
	CollisionProbability float64
	Iterations           int
	Polls                int
	Applied              int
	Rejected             int
	Series               []telemetry.Sample
	Rejections           []telemetry.Rejection
	Duration             time.Duration
}

type Params struct {
	Logger       *slog.Logger
	Step         float64
	Start        core.Epoch
	End          core.Epoch
	UpdateRPStep int
	SampleEvery  int
	Observers    []core.Observer
	Tracer       trace.Tracer

	windowSet bool
}

type Option func(*Params)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Params) {
		p.Logger = logger
	}
}

// WithStep sets the propagation step in days.
func WithStep(days float64) Option {
	return func(p *Params) {
		p.Step = days
	}
}

// WithWindow overrides the environment's default window.
func WithWindow(start, end core.Epoch) Option {
	return func(p *Params) {
		p.Start, p.End = start, end
		p.windowSet = true
	}
}

// WithUpdateRPStep sets how many propagations reuse the last reward and
// collision probability. Zero refreshes them only when an action is applied.
func WithUpdateRPStep(n int) Option {
	return func(p *Params) {
		p.UpdateRPStep = n
	}
}

// WithSampleEvery records a series point every n iterations.
func WithSampleEvery(n int) Option {
	return func(p *Params) {
		p.SampleEvery = n
	}
}

func WithObserver(o core.Observer) Option {
	return func(p *Params) {
		if o != nil {
			p.Observers = append(p.Observers, o)
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Params) {
		p.Tracer = t
	}
}

// objectNamer is implemented by environments that can name their objects.
type objectNamer interface {
	ObjectNames() (string, []string)
}

// Simulator runs a single session. It is not reusable: once Run returns the
// simulator stays ENDED.
type Simulator struct {
	id     string
	env    core.Environment
	policy core.Policy
	params *Params
	logger *slog.Logger

	mu     sync.RWMutex
	status Status
}

func New(env core.Environment, policy core.Policy, opts ...Option) (*Simulator, error) {
	if env == nil {
		return nil, ErrNilEnvironment
	}
	if policy == nil {
		return nil, ErrNilPolicy
	}

	params := &Params{
		Step:        DefaultStep,
		SampleEvery: 1,
	}
	for _, opt := range opts {
		opt(params)
	}
	if !params.windowSet {
		params.Start, params.End = env.Window()
	}
	if params.Logger == nil {
		params.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if params.Tracer == nil {
		params.Tracer = otel.Tracer("spacenav.simulation")
	}
	if params.SampleEvery <= 0 {
		params.SampleEvery = 1
	}
	if params.UpdateRPStep < 0 {
		params.UpdateRPStep = 0
	}

	if !(params.Step > 0) || math.IsInf(params.Step, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStep, params.Step)
	}
	if params.End < params.Start {
		return nil, fmt.Errorf("%w: start %s, end %s", ErrInvalidWindow, params.Start, params.End)
	}

	id := uuid.NewString()
	return &Simulator{
		id:     id,
		env:    env,
		policy: policy,
		params: params,
		logger: params.Logger.With(slog.String("session", id)),
		status: Status{State: StateIdle},
	}, nil
}

// ID returns the session id attached to every log line of the session.
func (s *Simulator) ID() string {
	return s.id
}

func (s *Simulator) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Iterations returns how many iterations the configured window yields.
func (s *Simulator) Iterations() int {
	return IterationCount(s.params.Start, s.params.End, s.params.Step)
}

// IterationCount is floor((end-start)/step)+1 for a non-empty window.
func IterationCount(start, end core.Epoch, step float64) int {
	if end < start || step <= 0 {
		return 0
	}
	return int(math.Floor(float64(end-start)/step+stepTolerance)) + 1
}

// Run executes the session: propagate, poll the policy when due, act, and
// report. Rejected actions are logged and counted, never returned.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.status.State != StateIdle {
		s.mu.Unlock()
		return nil, ErrSessionEnded
	}
	s.status.State = StateRunning
	s.status.StartTime = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.status.State = StateEnded
		s.status.EndTime = time.Now()
		s.mu.Unlock()
	}()

	p := s.params
	ctx, span := p.Tracer.Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.Float64("window.start", float64(p.Start)),
		attribute.Float64("window.end", float64(p.End)),
		attribute.Float64("step", p.Step),
	))
	defer span.End()

	protectedName, debrisNames := s.objectNames()
	n := s.Iterations()
	series := telemetry.NewSeries(0)
	res := &Result{
		SessionID: s.id,
		Start:     p.Start,
		End:       p.End,
		Step:      p.Step,
	}

	s.logger.InfoContext(ctx, "simulation started",
		"start", p.Start, "end", p.End, "step", p.Step,
		"update_rp_step", p.UpdateRPStep, "iterations", n)

	for i := 0; i < n; i++ {
		epoch := p.Start.Add(float64(i) * p.Step)
		s.env.PropagateForward(epoch, p.UpdateRPStep)

		event := core.IterationEvent{SessionID: s.id, Iteration: i, Epoch: epoch}

		if !epoch.Before(s.env.NextActionEpoch()) {
			state := s.env.State()
			action := s.policy.GetAction(state)
			reward := s.env.Reward()
			event.Polled, event.Action = true, action
			res.Polls++

			if err := s.env.Act(action); err != nil {
				event.Rejection = err.Error()
				res.Rejected++
				res.Rejections = append(res.Rejections, telemetry.Rejection{
					Iteration: i,
					Epoch:     float64(epoch),
					DVx:       action.DVx,
					DVy:       action.DVy,
					DVz:       action.DVz,
					Reason:    event.Rejection,
				})
				s.logger.WarnContext(ctx, "unable to make action",
					"iteration", i, "dVx", action.DVx, "dVy", action.DVy, "dVz", action.DVz,
					"error", err)
			} else {
				level := slog.LevelInfo
				if action.IsNoOp() {
					level = slog.LevelDebug
				} else {
					res.Applied++
				}
				s.logger.Log(ctx, level, "action applied",
					"iteration", i, "reward", reward,
					"dVx", action.DVx, "dVy", action.DVy, "dVz", action.DVz,
					"maneuver_epoch", action.ManeuverEpoch,
					"time_to_next_request", action.TimeToNextRequest)
			}
		}

		event.CollisionProbability = s.env.CollisionProbability()
		event.FuelConsumption = s.env.FuelConsumption()
		event.TrajectoryDeviation = s.env.TrajectoryDeviation()
		event.Reward = s.env.Reward()
		event.Coordinates = s.env.State().Coordinates

		if s.logger.Enabled(ctx, slog.LevelDebug) {
			s.logger.DebugContext(ctx, "iteration",
				"iteration", i, "epoch", epoch, "collision_probability", event.CollisionProbability)
			s.logPositions(ctx, slog.LevelDebug, protectedName, debrisNames, event.Coordinates)
		}

		if i%p.SampleEvery == 0 {
			series.Store(telemetry.SampleFrom(event))
		}
		for _, o := range p.Observers {
			o.OnIteration(event)
		}
		res.Iterations++
	}

	final := s.env.State()
	s.logger.InfoContext(ctx, telemetry.FormatPosition(protectedName, final.Coordinates.Protected))

	res.Reward = s.env.Reward()
	res.FuelConsumption = s.env.FuelConsumption()
	res.CollisionProbability = s.env.CollisionProbability()
	res.Series = series.Samples()
	res.Duration = time.Since(s.Status().StartTime)

	span.SetAttributes(
		attribute.Int("iterations", res.Iterations),
		attribute.Int("rejected", res.Rejected),
		attribute.Float64("reward", res.Reward),
	)
	s.logger.InfoContext(ctx, "simulation ended",
		"iterations", res.Iterations, "polls", res.Polls,
		"applied", res.Applied, "rejected", res.Rejected,
		"reward", res.Reward, "fuel_consumption", res.FuelConsumption,
		"collision_probability", res.CollisionProbability)
	return res, nil
}

func (s *Simulator) objectNames() (string, []string) {
	if namer, ok := s.env.(objectNamer); ok {
		return namer.ObjectNames()
	}
	return "protected", nil
}

func (s *Simulator) logPositions(ctx context.Context, level slog.Level, protected string, debris []string, c core.Coordinates) {
	s.logger.Log(ctx, level, "position", telemetry.PositionAttrs(protected, c.Protected)...)
	for i, sv := range c.Debris {
		name := fmt.Sprintf("debris[%d]", i)
		if i < len(debris) && debris[i] != "" {
			name = debris[i]
		}
		s.logger.Log(ctx, level, "position", telemetry.PositionAttrs(name, sv)...)
	}
}
