package agent

import (
	"io"
	"log/slog"

	"github.com/boristopalov/spacenav/pkg/core"
)

// DefaultRequestInterval is how long (days) the idle agent waits between polls.
const DefaultRequestInterval = 0.001

type AgentParams struct {
	Logger          *slog.Logger
	RequestInterval float64
}

type AgentOption func(*AgentParams)

func WithLogger(logger *slog.Logger) AgentOption {
	return func(p *AgentParams) {
		p.Logger = logger
	}
}

// WithRequestInterval sets the time_to_next_request the idle agent reports.
func WithRequestInterval(days float64) AgentOption {
	return func(p *AgentParams) {
		p.RequestInterval = days
	}
}

func defaultAgentParams() *AgentParams {
	return &AgentParams{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		RequestInterval: DefaultRequestInterval,
	}
}

func buildParams(opts []AgentOption) *AgentParams {
	params := defaultAgentParams()
	for _, opt := range opts {
		opt(params)
	}
	if params.Logger == nil {
		params.Logger = defaultAgentParams().Logger
	}
	return params
}

// IdleAgent never maneuvers. It is the reference policy that scores the
// unprotected trajectory.
type IdleAgent struct {
	interval float64
}

func NewIdleAgent(opts ...AgentOption) *IdleAgent {
	params := buildParams(opts)
	return &IdleAgent{interval: params.RequestInterval}
}

// GetAction returns zero deltas at the current epoch.
func (a *IdleAgent) GetAction(state core.StateSnapshot) core.Action {
	return core.Action{
		ManeuverEpoch:     state.Epoch,
		TimeToNextRequest: a.interval,
	}
}

var (
	_ core.Policy = (*IdleAgent)(nil)
	_ core.Policy = (*TableAgent)(nil)
)
