package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"episweep/adapters/ledger"
	"episweep/domain/core"
	"episweep/domain/params"
	"episweep/domain/sweep"
	"episweep/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("EPISWEEP_ENGINE", "")
	t.Setenv("EPISWEEP_LEDGER_DSN", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "--log-level", "ERROR"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeGrid(t *testing.T, dir string, durationDays int) string {
	t.Helper()
	grid := fmt.Sprintf(`name: small
output_dir: %s
arms: [novid, non_novid]
adoption_pcts: [0, 40]
ten_times_r:
  from: 20
  to: 21
  step: 1
seeds: [1, 2]
population: 2000
duration_days: %d
seed_infected: 10
workers: 2
`, filepath.Join(dir, "out"), durationDays)
	path := filepath.Join(dir, "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(grid), 0644))
	return path
}

func TestRunCell_WritesTableAndArrays(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "novid_40")

	out, err := execute(t, "run-cell", "--adoption", "40", "--output-path", prefix, "--novid", "--R", "2.5", "--seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, prefix)

	for _, suffix := range []string{"_full.csv", "_overall.npy", "_user.npy"} {
		assert.FileExists(t, prefix+suffix)
	}
}

func TestRunCell_ZeroAdoptionSkipsUserArray(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "base_0")

	_, err := execute(t, "run-cell", "--adoption", "0", "--output-path", prefix, "--phone", "--vaccinate")
	require.NoError(t, err)
	assert.FileExists(t, prefix+"_overall.npy")
	assert.NoFileExists(t, prefix+"_user.npy")
}

func TestRunCell_CellKeyPrefixMarksComplete(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "novid_40_25_7")

	_, err := execute(t, "run-cell", "--adoption", "40", "--output-path", prefix, "--novid", "--R", "2.5", "--seed", "7")
	require.NoError(t, err)
	assert.FileExists(t, prefix+".done.json")

	free := filepath.Join(dir, "novid_40")
	_, err = execute(t, "run-cell", "--adoption", "40", "--output-path", free, "--novid", "--R", "2.5", "--seed", "7")
	require.NoError(t, err)
	assert.FileExists(t, free+"_full.csv")
	assert.NoFileExists(t, free+".done.json")

	_, err = execute(t, "run-cell", "--adoption", "40", "--output-path", filepath.Join(dir, "novid_40_30_7"), "--novid", "--R", "2.5", "--seed", "7")
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfiguration, errors.ExitCode(err))
	assert.NoFileExists(t, filepath.Join(dir, "novid_40_30_7_full.csv"))
}

func TestRunCell_ExitCodes(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "run-cell", "--adoption", "150", "--output-path", filepath.Join(dir, "x"))
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfiguration, errors.ExitCode(err))

	_, err = execute(t, "run-cell", "--adoption", "10", "--output-path", filepath.Join(dir, "x"), "--engine", "process")
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfiguration, errors.ExitCode(err))

	_, err = execute(t, "run-cell", "--adoption", "10", "--output-path", filepath.Join(dir, "x"), "--R", "-1")
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfiguration, errors.ExitCode(err))
}

func TestSweep_ResumesAndAggregates(t *testing.T) {
	dir := t.TempDir()
	grid := writeGrid(t, dir, 30)
	ledgerPath := filepath.Join(dir, "ledger.db")
	reportPath := filepath.Join(dir, "report.md")

	out, err := execute(t, "sweep", "--grid", grid, "--ledger", "sqlite://"+ledgerPath, "--report", reportPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "executed:    16")
	m := regexp.MustCompile(`Sweep small \(([^)]+)\)`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	firstSweepID := core.ID(m[1])
	assert.FileExists(t, reportPath)
	assert.FileExists(t, filepath.Join(dir, "out", "novid_40_20_1.done.json"))
	assert.NoFileExists(t, filepath.Join(dir, "out", "novid_0_20_1_user.npy"))

	out, err = execute(t, "sweep", "--grid", grid, "--workers", "4")
	require.NoError(t, err, out)
	assert.Contains(t, out, "executed:    0")
	assert.Contains(t, out, "skipped:     16")

	l, err := ledger.Open(context.Background(), "sqlite://"+ledgerPath)
	require.NoError(t, err)
	defer l.Close()
	records, err := l.ListCells(context.Background(), firstSweepID)
	require.NoError(t, err)
	assert.Len(t, records, 16)

	xlsx := filepath.Join(dir, "curves.xlsx")
	csvPath := filepath.Join(dir, "curves.csv")
	out, err = execute(t, "aggregate", "--grid", grid, "--xlsx", xlsx, "--csv", csvPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "novid_40")
	assert.FileExists(t, xlsx)
	assert.FileExists(t, csvPath)
}

func TestSweep_ChangedGridFailsResumedCells(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "sweep", "--grid", writeGrid(t, dir, 30))
	require.NoError(t, err)

	out, err := execute(t, "sweep", "--grid", writeGrid(t, dir, 31))
	require.Error(t, err)
	assert.Equal(t, errors.ExitCellsFailed, errors.ExitCode(err))
	assert.Contains(t, out, "failed:      16")
	assert.Contains(t, out, "FAILED novid_0_20_1 [store]")
}

func TestCells_ListsFailedCellsFromLedger(t *testing.T) {
	dir := t.TempDir()
	dsn := "sqlite://" + filepath.Join(dir, "ledger.db")
	_, err := execute(t, "sweep", "--grid", writeGrid(t, dir, 30), "--ledger", dsn)
	require.NoError(t, err)

	out, err := execute(t, "sweep", "--grid", writeGrid(t, dir, 31), "--ledger", dsn)
	require.Error(t, err)
	m := regexp.MustCompile(`Sweep small \(([^)]+)\)`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)

	out, err = execute(t, "cells", "--sweep", m[1], "--status", "failed", "--ledger", dsn)
	require.NoError(t, err, out)
	assert.Contains(t, out, "16 cells")
	assert.Contains(t, out, "novid_0_20_1")
	assert.Contains(t, out, "[store]")

	_, err = execute(t, "cells", "--sweep", m[1], "--status", "lost", "--ledger", dsn)
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfiguration, errors.ExitCode(err))

	_, err = execute(t, "cells", "--sweep", m[1])
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfiguration, errors.ExitCode(err))
}

func TestAggregate_MissingCellNamesKey(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "aggregate", "--grid", writeGrid(t, dir, 30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), sweep.GridPoint{Arm: "novid", AdoptionPct: 0, TenTimesR: 20, Seed: 1}.Key())
	assert.Equal(t, errors.ExitStore, errors.ExitCode(err))
}

func TestSweep_BadGrid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\narms: [bogus]\nadoption_pcts: [1]\nten_times_r: {from: 1, to: 2, step: 1}\n"), 0644))

	_, err := execute(t, "sweep", "--grid", path)
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfiguration, errors.ExitCode(err))
}

func TestSweepRequest_MergesGridOverrides(t *testing.T) {
	spec := &sweep.GridSpec{
		Name:         "overrides",
		Arms:         []string{"novid"},
		AdoptionPcts: []int{40},
		TenTimesR:    sweep.IntRange{From: 20, To: 20},
		Overrides:    map[string]float64{params.KeySelfQuarantine: 0.25},
	}
	spec.ApplyDefaults()
	require.NoError(t, spec.Validate())

	req, err := sweepRequest(spec, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.25, req.Base.Value(params.KeySelfQuarantine))
	assert.Equal(t, float64(spec.Population), req.Base.Value(params.KeyNTotal))
	assert.Len(t, req.Points, len(spec.Seeds))

	spec.Overrides = nil
	plain, err := sweepRequest(spec, 2)
	require.NoError(t, err)
	assert.Equal(t, spec.BaseConfiguration().Hash(), plain.Base.Hash())
}
