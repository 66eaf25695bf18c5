package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"episweep/adapters/store/fs"
	"episweep/domain/core"
	"episweep/domain/params"
	"episweep/domain/policy"
	"episweep/domain/sweep"
	"episweep/domain/vaccine"
	"episweep/internal"
	"episweep/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDays = 20

func newSweepFixture(t *testing.T, dir string) (*SweepService, *testkit.TestKit, *fs.LocalOutputStore) {
	t.Helper()
	kit := testkit.NewTestKit()
	store, err := fs.NewLocalOutputStore(dir)
	require.NoError(t, err)
	logger := internal.NewNopLogger()
	svc := NewSweepService(NewRunner(kit.Engines(), logger), store, kit.Ledger(), logger)
	return svc, kit, store
}

func smallGrid() []sweep.GridPoint {
	return sweep.Grid{
		Arms:         []string{policy.ArmNovid, policy.ArmNonNovid},
		AdoptionPcts: []int{0, 40},
		TenTimesR:    []int{10, 25},
		Seeds:        []int64{1, 2},
	}.Points()
}

func snapshotDir(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = data
	}
	return out
}

func TestRunSweep_WritesArtifactsPerCell(t *testing.T) {
	dir := t.TempDir()
	svc, _, _ := newSweepFixture(t, dir)
	points := []sweep.GridPoint{
		{Arm: policy.ArmNovid, AdoptionPct: 0, TenTimesR: 10, Seed: 1},
		{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 1},
	}

	report, err := svc.RunSweep(context.Background(), SweepRequest{Points: points, DurationDays: testDays})
	require.NoError(t, err)
	assert.True(t, report.Success())
	assert.Len(t, report.Executed, 2)

	assert.FileExists(t, filepath.Join(dir, "novid_0_10_1_full.csv"))
	assert.FileExists(t, filepath.Join(dir, "novid_0_10_1_overall.npy"))
	assert.NoFileExists(t, filepath.Join(dir, "novid_0_10_1_user.npy"), "no user array at zero adoption")
	assert.FileExists(t, filepath.Join(dir, "novid_0_10_1.done.json"))
	assert.FileExists(t, filepath.Join(dir, "novid_40_10_1_user.npy"))
}

func TestRunSweep_ResumeSkipsCompletedCells(t *testing.T) {
	dir := t.TempDir()
	points := smallGrid()
	n, m := len(points), 5

	first, kit1, _ := newSweepFixture(t, dir)
	_, err := first.RunSweep(context.Background(), SweepRequest{Points: points[:m], DurationDays: testDays})
	require.NoError(t, err)
	require.Equal(t, m, kit1.Engines().Created())
	before := snapshotDir(t, dir)

	second, kit2, _ := newSweepFixture(t, dir)
	report, err := second.RunSweep(context.Background(), SweepRequest{Points: points, DurationDays: testDays})
	require.NoError(t, err)

	assert.Len(t, report.Skipped, m)
	assert.Len(t, report.Executed, n-m)
	assert.Equal(t, n-m, kit2.Engines().Created())

	after := snapshotDir(t, dir)
	for name, data := range before {
		assert.Equal(t, data, after[name], "%s changed on resume", name)
	}
}

func TestRunSweep_FingerprintMismatchIsStoreFailure(t *testing.T) {
	dir := t.TempDir()
	point := sweep.GridPoint{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 1}

	svc, _, _ := newSweepFixture(t, dir)
	_, err := svc.RunSweep(context.Background(), SweepRequest{Points: []sweep.GridPoint{point}, DurationDays: testDays})
	require.NoError(t, err)
	before := snapshotDir(t, dir)

	report, err := svc.RunSweep(context.Background(), SweepRequest{
		Points:       []sweep.GridPoint{point},
		DurationDays: testDays,
		AdoptionMode: policy.AdoptionFlat,
	})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, core.KindStore, report.Failed[0].Kind)
	assert.ErrorIs(t, report.Failed[0].Err, core.ErrFingerprint)
	assert.Equal(t, before, snapshotDir(t, dir), "mismatched cell must not be overwritten")
}

func TestRunSweep_FailureIsolation(t *testing.T) {
	dir := t.TempDir()
	svc, kit, store := newSweepFixture(t, dir)
	kit.Engines().FailRunForSeed(2, core.NewSimulationError("diverged", nil))
	kit.Engines().RejectSeed(3, core.NewConfigurationError("rng_seed", "reserved"))
	points := []sweep.GridPoint{
		{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 1},
		{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 2},
		{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 3},
		{Arm: "lockdown", AdoptionPct: 40, TenTimesR: 10, Seed: 4},
		{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 5},
	}

	report, err := svc.RunSweep(context.Background(), SweepRequest{Points: points, DurationDays: testDays})
	require.NoError(t, err)
	assert.False(t, report.Success())
	assert.Equal(t, []sweep.GridPoint{points[0], points[4]}, report.Executed)
	require.Len(t, report.Failed, 3)
	assert.Equal(t, core.KindSimulation, report.Failed[0].Kind)
	assert.Equal(t, points[1], report.Failed[0].Point)
	assert.Equal(t, core.KindConfiguration, report.Failed[1].Kind)
	assert.Equal(t, core.KindConfiguration, report.Failed[2].Kind)
	assert.NotEmpty(t, report.Failed[2].Reason())

	complete, err := store.IsComplete(context.Background(), points[1].Key())
	require.NoError(t, err)
	assert.False(t, complete)

	failed, err := kit.Ledger().ListCellsByStatus(context.Background(), report.SweepID, sweep.CellFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 3)
}

func TestRunSweep_ShortTableFailsCell(t *testing.T) {
	svc, kit, _ := newSweepFixture(t, t.TempDir())
	kit.Engines().TruncateSeed(1, 1)

	report, err := svc.RunSweep(context.Background(), SweepRequest{
		Points:       []sweep.GridPoint{{Arm: policy.ArmNovid, AdoptionPct: 0, TenTimesR: 10, Seed: 1}},
		DurationDays: testDays,
	})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, core.KindSimulation, report.Failed[0].Kind)
}

func TestRunSweep_ConcurrentEqualsSequential(t *testing.T) {
	points := smallGrid()
	seqDir, parDir := t.TempDir(), t.TempDir()

	seq, _, _ := newSweepFixture(t, seqDir)
	_, err := seq.RunSweep(context.Background(), SweepRequest{Points: points, DurationDays: testDays, Workers: 1})
	require.NoError(t, err)

	par, kit, _ := newSweepFixture(t, parDir)
	report, err := par.RunSweep(context.Background(), SweepRequest{Points: points, DurationDays: testDays, Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, points, report.Executed, "report keeps grid order")
	assert.LessOrEqual(t, kit.Engines().PeakConcurrent(), 4)

	seqFiles, parFiles := snapshotDir(t, seqDir), snapshotDir(t, parDir)
	require.Len(t, parFiles, len(seqFiles))
	for name, data := range seqFiles {
		if filepath.Ext(name) == ".json" {
			continue
		}
		assert.Equal(t, data, parFiles[name], name)
	}
}

func TestRunSweep_CanceledBeforeStart(t *testing.T) {
	svc, kit, _ := newSweepFixture(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	points := smallGrid()
	report, err := svc.RunSweep(ctx, SweepRequest{Points: points, DurationDays: testDays})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.NotStarted, len(points))
	assert.Zero(t, kit.Engines().Created())
}

func TestRunSweep_CanceledDuringRunLeavesCellUnmarked(t *testing.T) {
	dir := t.TempDir()
	svc, kit, store := newSweepFixture(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	kit.Engines().OnRunForSeed(2, cancel)

	points := []sweep.GridPoint{
		{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 1},
		{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 2},
		{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 3},
	}
	report, err := svc.RunSweep(ctx, SweepRequest{Points: points, DurationDays: testDays, Workers: 1})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, points[:1], report.Executed)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, points[1], report.Failed[0].Point)
	assert.Equal(t, core.KindCanceled, report.Failed[0].Kind)
	assert.Equal(t, points[2:], report.NotStarted)

	complete, err := store.IsComplete(context.Background(), points[1].Key())
	require.NoError(t, err)
	assert.False(t, complete)
	assert.NoFileExists(t, filepath.Join(dir, points[1].Key()+"_full.csv"))
	assert.NoFileExists(t, filepath.Join(dir, points[2].Key()+"_full.csv"))
}

func TestRunSweep_HalfWrittenCellIsRerun(t *testing.T) {
	dir := t.TempDir()
	point := sweep.GridPoint{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 1}

	first, _, store := newSweepFixture(t, dir)
	_, err := first.RunSweep(context.Background(), SweepRequest{Points: []sweep.GridPoint{point}, DurationDays: testDays})
	require.NoError(t, err)
	want := snapshotDir(t, dir)

	// Leave table and arrays behind with no completion marker.
	require.NoError(t, os.Remove(store.MarkerPath(point.Key())))
	require.NoError(t, os.WriteFile(store.ArrayPath(point.Key(), "overall"), []byte("truncated"), 0644))

	second, kit, _ := newSweepFixture(t, dir)
	report, err := second.RunSweep(context.Background(), SweepRequest{Points: []sweep.GridPoint{point}, DurationDays: testDays})
	require.NoError(t, err)
	assert.Equal(t, []sweep.GridPoint{point}, report.Executed)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 1, kit.Engines().Created())

	complete, err := store.IsComplete(context.Background(), point.Key())
	require.NoError(t, err)
	assert.True(t, complete)

	got := snapshotDir(t, dir)
	for name, data := range want {
		if filepath.Ext(name) == ".json" {
			continue
		}
		assert.Equal(t, data, got[name], "%s differs after rerun", name)
	}
}

func TestRunSweep_VaccinationIsAttachedPerCell(t *testing.T) {
	svc, kit, store := newSweepFixture(t, t.TempDir())
	plan := vaccine.Default()
	point := sweep.GridPoint{Arm: policy.ArmNovid, AdoptionPct: 40, TenTimesR: 10, Seed: 1}

	_, err := svc.RunSweep(context.Background(), SweepRequest{Points: []sweep.GridPoint{point}, DurationDays: testDays, Vaccination: &plan})
	require.NoError(t, err)
	assert.Equal(t, 1, kit.Engines().VaccinatedRuns(1))

	m, err := store.Manifest(context.Background(), point.Key())
	require.NoError(t, err)
	assert.True(t, m.Vaccinated)
	assert.Equal(t, testDays+1, m.Rows)
}

func TestBuildCellConfiguration_Order(t *testing.T) {
	point := sweep.GridPoint{Arm: policy.ArmNonNovid, AdoptionPct: 70, TenTimesR: 58, Seed: 23649}

	cfg, err := BuildCellConfiguration(params.Base(), point, policy.AdoptionByAgeBand, policy.NonNovid())
	require.NoError(t, err)

	assert.InDelta(t, 5.8, cfg.Value(params.KeyInfectiousRate), 1e-12)
	assert.Equal(t, float64(23649), cfg.Value(params.KeyRNGSeed))
	assert.Equal(t, 0.0, cfg.Value(params.KeyManualTraceOn))
	assert.InDelta(t, 0.09*0.7/params.AdoptionReferenceTotal, cfg.Value(params.AppUsersFractionKey(params.Age0to9)), 1e-12)
}
