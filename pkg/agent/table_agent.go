package agent

import (
	"fmt"
	"log/slog"

	"github.com/boristopalov/spacenav/pkg/actiontable"
	"github.com/boristopalov/spacenav/pkg/core"
)

// TableAgent replays a precomputed action table. Rows are consumed front to
// back through a cursor; a row fires at most once and at most one row fires
// per call. A TableAgent is bound to a single simulation session.
type TableAgent struct {
	rows   actiontable.Table
	cursor int
	logger *slog.Logger
}

// NewTableAgent creates an agent over a private copy of table.
func NewTableAgent(table actiontable.Table, opts ...AgentOption) *TableAgent {
	params := buildParams(opts)
	return &TableAgent{
		rows:   table.Clone(),
		logger: params.Logger,
	}
}

// NewTableAgentFromFile loads the action table at path and wraps it in a TableAgent.
func NewTableAgentFromFile(path string, opts ...AgentOption) (*TableAgent, error) {
	table, err := actiontable.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create table agent: %w", err)
	}
	return NewTableAgent(table, opts...), nil
}

// GetAction fires the next pending row once the state epoch has reached it
// and returns a no-op otherwise.
func (a *TableAgent) GetAction(state core.StateSnapshot) core.Action {
	if a.cursor >= len(a.rows) {
		return core.NoOp(state.Epoch)
	}

	row := a.rows[a.cursor]
	if state.Epoch < row.Epoch {
		return core.NoOp(state.Epoch)
	}
	a.cursor++

	action := core.Action{
		DVx:           row.DVx,
		DVy:           row.DVy,
		DVz:           row.DVz,
		ManeuverEpoch: state.Epoch,
	}
	a.logger.Info("maneuver scheduled",
		slog.Float64("epoch", float64(state.Epoch)),
		slog.Float64("row_epoch", float64(row.Epoch)),
		slog.Float64("dVx", action.DVx),
		slog.Float64("dVy", action.DVy),
		slog.Float64("dVz", action.DVz),
		slog.Int("pending", a.Pending()),
	)
	return action
}

// Pending returns the number of rows that have not fired yet.
func (a *TableAgent) Pending() int {
	return len(a.rows) - a.cursor
}
