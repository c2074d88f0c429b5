package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/spacenav/pkg/actiontable"
	"github.com/boristopalov/spacenav/pkg/storage"
)

const cliScenario = `
name: cli-conjunction
start_epoch: 6600
end_epoch: 6600.01
max_fuel_consumption: 10
protected:
  name: sat
  position: [7000000, 0, 0]
  velocity: [0, 7546.053, 0]
  fuel: 20
debris:
  - name: fragment
    position: [7000100, 0, 0]
    velocity: [0, 7546.053, 0]
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSimulateCommand(t *testing.T) {
	dir := t.TempDir()
	scenario := writeFile(t, dir, "scenario.yaml", cliScenario)
	table := writeFile(t, dir, "table.csv", ",epoch,dVx,dVy,dVz\n0,6600.005,0.1,0,0\n1,6600.006,1000,0,0\n")
	db := filepath.Join(dir, "runs.db")
	metrics := filepath.Join(dir, "metrics.prom")

	var out bytes.Buffer
	cmd := newSimulateCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--env", scenario, "--table", table, "--db", db, "--metrics-file", metrics})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "11 iterations")
	assert.Contains(t, out.String(), "1 maneuvers applied, 1 rejected")
	assert.Contains(t, out.String(), "sat position: x - ")

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `spacenav_simulation_maneuvers_total{outcome="rejected"} 1`)

	store, err := storage.Open(db)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "simulate", runs[0].Kind)
	assert.Equal(t, "cli-conjunction", runs[0].Scenario)
	assert.Equal(t, 1, runs[0].Rejected)

	run, err := store.GetRun(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, run.Rejections, 1)
	assert.Equal(t, 1000.0, run.Rejections[0].DVx)
}

func TestSimulateCommandWindow(t *testing.T) {
	dir := t.TempDir()
	scenario := writeFile(t, dir, "scenario.yaml", cliScenario)
	table := writeFile(t, dir, "table.csv", ",epoch,dVx,dVy,dVz\n0,6600.005,0.1,0,0\n1,6600.006,1000,0,0\n")

	t.Run("start without end keeps the scenario end", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newSimulateCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--env", scenario, "--table", table, "--start", "6599.995"})
		require.NoError(t, cmd.Execute())

		assert.Contains(t, out.String(), "16 iterations")
		assert.Contains(t, out.String(), "1 maneuvers applied, 1 rejected")
	})

	t.Run("end without start keeps the scenario start", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newSimulateCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--env", scenario, "--table", table, "--end", "6600.005"})
		require.NoError(t, cmd.Execute())

		assert.Contains(t, out.String(), "6 iterations")
	})

	tests := map[string][]string{
		"end before scenario start": {"--end", "6599"},
		"start after scenario end":  {"--start", "6601"},
		"reversed flags":            {"--start", "6600.01", "--end", "6600"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			cmd := newSimulateCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(append([]string{"--env", scenario, "--table", table}, args...))
			assert.ErrorContains(t, cmd.Execute(), "precedes start")
		})
	}
}

func TestSimulateCommandVerbose(t *testing.T) {
	dir := t.TempDir()
	scenario := writeFile(t, dir, "scenario.yaml", cliScenario)
	table := writeFile(t, dir, "table.csv", ",epoch,dVx,dVy,dVz\n0,6600.005,0.1,0,0\n1,6600.006,1000,0,0\n")
	cfgFile := writeFile(t, dir, "spacenav.yaml", "simulation:\n  render_every: 100\n  render_pause: 10ms\n")

	verbose, configPath = true, cfgFile
	t.Cleanup(func() { verbose, configPath = false, "" })

	var out, errOut bytes.Buffer
	cmd := newSimulateCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--env", scenario, "--table", table})

	began := time.Now()
	require.NoError(t, cmd.Execute())

	// iteration 0, the applied maneuver and the rejected one are rendered
	assert.GreaterOrEqual(t, time.Since(began), 30*time.Millisecond)
	assert.Contains(t, out.String(), "iter      0")
	assert.Contains(t, out.String(), "REJECTED (dVx:1000")
	assert.Contains(t, errOut.String(), "finished in")
	assert.Contains(t, errOut.String(), "simulation ended")
}

func TestSimulateCommandErrors(t *testing.T) {
	dir := t.TempDir()
	scenario := writeFile(t, dir, "scenario.yaml", cliScenario)

	tests := map[string][]string{
		"missing scenario":   {"--table", "x.csv"},
		"missing table flag": {"--env", scenario},
		"absent table":       {"--env", scenario, "--table", filepath.Join(dir, "absent.csv")},
		"bad step":           {"--env", scenario, "--table", "x.csv", "--step", "0"},
		"unsorted table": {"--env", scenario, "--table",
			writeFile(t, dir, "unsorted.csv", ",epoch,dVx,dVy,dVz\n0,6600.5,0,0,0\n1,6600.1,0,0,0\n")},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			cmd := newSimulateCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(args)
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestTrainCommand(t *testing.T) {
	dir := t.TempDir()
	scenario := writeFile(t, dir, "scenario.yaml", cliScenario)
	savePath := filepath.Join(dir, "best.csv")
	statsPath := filepath.Join(dir, "stats.csv")

	var out bytes.Buffer
	cmd := newTrainCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--env", scenario, "--samples", "3", "--workers", "2",
		"--save-path", savePath, "--stats-path", statsPath})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "evaluated 4 tables")
	_, err := actiontable.Load(savePath)
	require.NoError(t, err)
	_, err = os.Stat(statsPath)
	require.NoError(t, err)

	t.Run("recorded run carries its rejections", func(t *testing.T) {
		db := filepath.Join(dir, "runs.db")
		cmd := newTrainCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--env", scenario, "--samples", "3", "--workers", "2", "--max-dv", "1000",
			"--save-path", filepath.Join(dir, "best-db.csv"), "--db", db})
		require.NoError(t, cmd.Execute())

		store, err := storage.Open(db)
		require.NoError(t, err)
		defer store.Close()
		runs, err := store.ListRuns(context.Background(), 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "train", runs[0].Kind)

		run, err := store.GetRun(context.Background(), runs[0].ID)
		require.NoError(t, err)
		assert.Len(t, run.Rejections, run.Rejected)
	})
}
