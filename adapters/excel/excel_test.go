package excel

import (
	"os"
	"path/filepath"
	"testing"

	"episweep/domain/series"
	"episweep/internal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleCurves() []*series.Curve {
	return []*series.Curve{
		{
			Arm: "novid", AdoptionPct: 40, Population: 10000, Seeds: []int64{1, 2},
			Points: []series.CurvePoint{
				{TenTimesR: 15, R: 1.5, MeanPct: 12.5, MedianPct: 12.5, PerSeed: []float64{10, 15}},
				{TenTimesR: 20, R: 2, MeanPct: 30.25, MedianPct: 30.25, PerSeed: []float64{30, 30.5}},
			},
		},
		{
			Arm: "baseline", AdoptionPct: 0, Population: 10000, Seeds: []int64{1, 2},
			Points: []series.CurvePoint{
				{TenTimesR: 15, R: 1.5, MeanPct: 20, MedianPct: 20, PerSeed: []float64{18, 22}},
			},
		},
	}
}

func TestCurveWriter_WorkbookRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "curves.xlsx")
	logger := internal.NewNopLogger()

	require.NoError(t, NewCurveWriter(path, logger).Write(sampleCurves()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{IndexSheet, "novid_40", "baseline_0"}, f.GetSheetList())
	header, err := f.GetRows("novid_40")
	require.NoError(t, err)
	assert.Equal(t, []string{"ten_times_r", "R", "mean_pct", "median_pct", "seed_1", "seed_2"}, header[0])
	require.NoError(t, f.Close())

	curves, err := NewCurveReader(path, logger).Read()
	require.NoError(t, err)
	require.Len(t, curves, 2)

	got := curves[0]
	assert.Equal(t, "novid", got.Arm)
	assert.Equal(t, 40, got.AdoptionPct)
	assert.Equal(t, 10000.0, got.Population)
	assert.Equal(t, []int64{1, 2}, got.Seeds)
	require.Len(t, got.Points, 2)
	assert.Equal(t, 20, got.Points[1].TenTimesR)
	assert.InDelta(t, 30.25, got.Points[1].MeanPct, 1e-9)
	assert.InDeltaSlice(t, []float64{30, 30.5}, got.Points[1].PerSeed, 1e-9)
	assert.Equal(t, "baseline_0", curves[1].Name())
}

func TestCurveWriter_CSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curves.csv")
	logger := internal.NewNopLogger()

	require.NoError(t, NewCurveWriter(path, logger).Write(sampleCurves()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "arm,adoption_pct,population,ten_times_r,r,mean_pct,median_pct\n")
	assert.Contains(t, string(data), "novid,40,10000,20,2,30.25,30.25\n")

	curves, err := NewCurveReader(path, logger).Read()
	require.NoError(t, err)
	require.Len(t, curves, 2)
	assert.Equal(t, "novid", curves[0].Arm)
	assert.Len(t, curves[0].Points, 2)
	assert.Empty(t, curves[0].Points[0].PerSeed)
	assert.Equal(t, 1.5, curves[1].Points[0].R)
}

func TestCurveWriter_NoCurves(t *testing.T) {
	err := NewCurveWriter(filepath.Join(t.TempDir(), "x.xlsx"), nil).Write(nil)
	assert.Error(t, err)
}

func TestCurveReader_MissingFile(t *testing.T) {
	_, err := NewCurveReader(filepath.Join(t.TempDir(), "missing.csv"), nil).Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSV file not found")
}

func TestCurveReader_RaggedCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("arm,adoption_pct\nnovid,40\n"), 0644))

	_, err := NewCurveReader(path, nil).Read()
	assert.Error(t, err)
}
