package app

import (
	"context"
	"errors"
	"testing"

	"episweep/adapters/store/fs"
	"episweep/domain/core"
	"episweep/domain/series"
	"episweep/domain/sweep"
	"episweep/internal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putCell(t *testing.T, store *fs.LocalOutputStore, p sweep.GridPoint, total, user []float64) {
	t.Helper()
	ctx := context.Background()
	days := make([]float64, len(total))
	for i := range days {
		days[i] = float64(i)
	}
	table, err := series.FromColumns(
		[]string{series.ChannelTime, series.ChannelTotalInfected, series.ChannelAppUserInfected},
		[][]float64{days, total, user},
	)
	require.NoError(t, err)
	require.NoError(t, store.PutTable(ctx, p.Key(), table))
	require.NoError(t, store.PutArray(ctx, p.Key(), "overall", total))
	manifest := sweep.NewCellManifest(core.NewID(), p, core.NewHash([]byte(p.Key())), len(total)-1, len(total),
		table.Channels(), []string{"overall"}, false)
	require.NoError(t, store.MarkComplete(ctx, manifest))
}

func TestFinalInfectedCurve_AveragesLastValueOverSeeds(t *testing.T) {
	store, err := fs.NewLocalOutputStore(t.TempDir())
	require.NoError(t, err)
	svc := NewAggregateService(store, internal.NewNopLogger())

	putCell(t, store, sweep.GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 10, Seed: 1}, []float64{1, 5, 100}, []float64{0, 0, 0})
	putCell(t, store, sweep.GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 10, Seed: 2}, []float64{1, 5, 300}, []float64{0, 0, 0})
	putCell(t, store, sweep.GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 11, Seed: 1}, []float64{1, 5, 500}, []float64{0, 0, 0})
	putCell(t, store, sweep.GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 11, Seed: 2}, []float64{1, 5, 500}, []float64{0, 0, 0})

	curve, err := svc.FinalInfectedCurve(context.Background(), "novid", 40, []int{10, 11}, []int64{1, 2}, 10000)
	require.NoError(t, err)
	require.Len(t, curve.Points, 2)

	assert.InDelta(t, 1.0, curve.Points[0].R, 1e-12)
	assert.InDelta(t, 2.0, curve.Points[0].MeanPct, 1e-12)
	assert.InDelta(t, 2.0, curve.Points[0].MedianPct, 1e-12)
	assert.Equal(t, []float64{1, 3}, curve.Points[0].PerSeed)
	assert.InDelta(t, 5.0, curve.Points[1].MeanPct, 1e-12)
}

func TestFinalInfectedCurve_MissingCellNamesKey(t *testing.T) {
	store, err := fs.NewLocalOutputStore(t.TempDir())
	require.NoError(t, err)
	svc := NewAggregateService(store, internal.NewNopLogger())
	putCell(t, store, sweep.GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 10, Seed: 1}, []float64{1}, []float64{0})

	_, err = svc.FinalInfectedCurve(context.Background(), "novid", 40, []int{10}, []int64{1, 2}, 10000)
	require.Error(t, err)

	var storeErr *core.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "novid_40_10_2", storeErr.Key)
}

func TestSeedAveragedAndSplit(t *testing.T) {
	store, err := fs.NewLocalOutputStore(t.TempDir())
	require.NoError(t, err)
	svc := NewAggregateService(store, internal.NewNopLogger())

	putCell(t, store, sweep.GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 10, Seed: 1}, []float64{0, 2, 4}, []float64{0, 1, 2})
	putCell(t, store, sweep.GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 10, Seed: 2}, []float64{0, 4, 8}, []float64{0, 1, 2})

	agg, err := svc.SeedAveraged(context.Background(), "novid", 40, 10, []int64{1, 2})
	require.NoError(t, err)
	mean, err := agg.Mean.Channel(series.ChannelTotalInfected)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3, 6}, mean)

	split, err := svc.AdoptionSplit(context.Background(), "novid", 40, 10, []int64{1, 2}, 100)
	require.NoError(t, err)
	require.NotNil(t, split.AdopterPct)
	require.NotNil(t, split.NonAdopterPct)
	assert.InDelta(t, 100*2/(0.4*100), *split.AdopterPct, 1e-9)
	assert.InDelta(t, 100*4/(0.6*100), *split.NonAdopterPct, 1e-9)

	daily, err := svc.DailyNewInfections(context.Background(), "novid", 40, 10, []int64{1, 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3, 3}, daily)
}

func TestSeedAveraged_MismatchedLengths(t *testing.T) {
	store, err := fs.NewLocalOutputStore(t.TempDir())
	require.NoError(t, err)
	svc := NewAggregateService(store, internal.NewNopLogger())

	putCell(t, store, sweep.GridPoint{Arm: "novid", AdoptionPct: 0, TenTimesR: 10, Seed: 1}, []float64{0, 2, 4}, []float64{0, 0, 0})
	putCell(t, store, sweep.GridPoint{Arm: "novid", AdoptionPct: 0, TenTimesR: 10, Seed: 2}, []float64{0, 2}, []float64{0, 0})

	_, err = svc.SeedAveraged(context.Background(), "novid", 0, 10, []int64{1, 2})
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestFinalInfectedCurve_UnmarkedCellIsStoreError(t *testing.T) {
	store, err := fs.NewLocalOutputStore(t.TempDir())
	require.NoError(t, err)
	svc := NewAggregateService(store, internal.NewNopLogger())
	ctx := context.Background()

	point := sweep.GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 10, Seed: 1}
	table, err := series.FromColumns(
		[]string{series.ChannelTime, series.ChannelTotalInfected, series.ChannelAppUserInfected},
		[][]float64{{0, 1}, {1, 100}, {0, 0}},
	)
	require.NoError(t, err)
	require.NoError(t, store.PutTable(ctx, point.Key(), table))
	require.NoError(t, store.PutArray(ctx, point.Key(), "overall", []float64{1, 100}))

	complete, err := store.IsComplete(ctx, point.Key())
	require.NoError(t, err)
	require.False(t, complete)

	curve, err := svc.FinalInfectedCurve(ctx, "novid", 40, []int{10}, []int64{1}, 10000)
	require.Error(t, err)
	assert.Nil(t, curve)
	assert.ErrorIs(t, err, core.ErrIncompleteCell)
	assert.True(t, core.IsStoreError(err))

	var storeErr *core.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "novid_40_10_1", storeErr.Key)

	_, err = svc.SeedAveraged(ctx, "novid", 40, 10, []int64{1})
	assert.ErrorIs(t, err, core.ErrIncompleteCell)
}
