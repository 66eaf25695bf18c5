package sweep

import (
	"errors"
	"path/filepath"
	"testing"

	"episweep/domain/core"
	"episweep/domain/params"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridPointKey(t *testing.T) {
	p := GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 25, Seed: 23649}
	assert.Equal(t, "novid_40_25_23649", p.Key())
	assert.InDelta(t, 2.5, p.InfectiousRate(), 1e-12)
	assert.InDelta(t, 0.4, p.AdoptionRate(), 1e-12)
}

func TestParseKey_RoundTripWithUnderscoreArm(t *testing.T) {
	p := GridPoint{Arm: "non_novid", AdoptionPct: 0, TenTimesR: 10, Seed: 92364}

	got, err := ParseKey(p.Key())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestParseKey_Invalid(t *testing.T) {
	testCases := []string{"", "novid_40_25", "novid_x_25_1", "novid_40_y_1", "novid_40_25_z", "novid_140_25_1"}
	for _, key := range testCases {
		t.Run(key, func(t *testing.T) {
			_, err := ParseKey(key)
			assert.ErrorIs(t, err, core.ErrInvalidArgument)
		})
	}
}

func TestGridPoints_OrderAndSize(t *testing.T) {
	g := Grid{
		Arms:         []string{"novid", "non_novid"},
		AdoptionPcts: []int{0, 40},
		TenTimesR:    []int{10, 11},
		Seeds:        []int64{1, 2},
	}

	points := g.Points()
	require.Len(t, points, g.Size())
	assert.Equal(t, 16, g.Size())
	assert.Equal(t, "novid_0_10_1", points[0].Key())
	assert.Equal(t, "novid_0_10_2", points[1].Key())
	assert.Equal(t, "novid_0_11_1", points[2].Key())
	assert.Equal(t, "novid_40_10_1", points[4].Key())
	assert.Equal(t, "non_novid_0_10_1", points[8].Key())

	seen := make(map[string]bool)
	for _, p := range points {
		assert.False(t, seen[p.Key()], "duplicate key %s", p.Key())
		seen[p.Key()] = true
	}
}

func TestIntRangeValues(t *testing.T) {
	assert.Equal(t, []int{10, 11, 12}, IntRange{From: 10, To: 12, Step: 1}.Values())
	assert.Equal(t, []int{10, 15, 20}, IntRange{From: 10, To: 20, Step: 5}.Values())
	assert.Equal(t, []int{3, 4}, IntRange{From: 3, To: 4}.Values())
	assert.Empty(t, IntRange{From: 5, To: 4, Step: 1}.Values())
}

func TestGridSpec_DefaultsAndValidate(t *testing.T) {
	s := GridSpec{
		Name:         "figure1",
		Arms:         []string{"novid"},
		AdoptionPcts: []int{40},
		TenTimesR:    IntRange{From: 10, To: 12, Step: 1},
	}
	s.ApplyDefaults()

	require.NoError(t, s.Validate())
	assert.Len(t, s.Seeds, 5)
	assert.Empty(t, s.OutputDir)
	assert.Equal(t, filepath.Join("results", "figure1"), s.OutputPath("results"))
	assert.Equal(t, 1, s.Workers)
	assert.Equal(t, 15, s.Grid().Size())

	s.SeedInfected = 20
	base := s.BaseConfiguration()
	assert.Equal(t, 20.0, base.Value(params.KeyNSeedInfection))
	assert.Equal(t, float64(s.Population), base.Value(params.KeyNTotal))

	s.OutputDir = "out/f1"
	assert.Equal(t, "out/f1", s.OutputPath("results"))

	s.Arms = nil
	assert.ErrorIs(t, s.Validate(), core.ErrInvalidArgument)
}

func TestGridSpec_ValidateOverrides(t *testing.T) {
	s := GridSpec{
		Name:         "figure1",
		Arms:         []string{"novid"},
		AdoptionPcts: []int{40},
		TenTimesR:    IntRange{From: 10, To: 10},
		Overrides:    map[string]float64{params.KeySelfQuarantine: 0.5},
	}
	s.ApplyDefaults()
	require.NoError(t, s.Validate())

	s.Overrides = map[string]float64{"bogus_key": 1}
	assert.ErrorIs(t, s.Validate(), core.ErrConfiguration)

	s.Overrides = map[string]float64{params.KeyNTotal: 5000}
	err := s.Validate()
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Contains(t, err.Error(), "population")
}

func TestCellFingerprint_Deterministic(t *testing.T) {
	p := GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 25, Seed: 1}
	h := core.Hash("cfg")

	fp1 := ComputeCellFingerprint(p, h, 100, false)
	fp2 := ComputeCellFingerprint(p, h, 100, false)
	assert.Equal(t, fp1, fp2)

	testCases := []struct {
		name string
		fp   core.Hash
	}{
		{"different seed", ComputeCellFingerprint(GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 25, Seed: 2}, h, 100, false)},
		{"different config", ComputeCellFingerprint(p, core.Hash("other"), 100, false)},
		{"different duration", ComputeCellFingerprint(p, h, 200, false)},
		{"vaccinated", ComputeCellFingerprint(p, h, 100, true)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEqual(t, fp1, tc.fp)
		})
	}
}

func TestCellManifestValidate(t *testing.T) {
	p := GridPoint{Arm: "novid", AdoptionPct: 40, TenTimesR: 25, Seed: 1}
	m := NewCellManifest(core.NewID(), p, core.Hash("cfg"), 10, 11, []string{"time"}, []string{"overall"}, false)
	require.NoError(t, m.Validate())

	tampered := m
	tampered.ConfigHash = core.Hash("edited")
	assert.True(t, errors.Is(tampered.Validate(), core.ErrFingerprint))

	short := m
	short.Rows = 10
	assert.ErrorIs(t, short.Validate(), core.ErrInvalidArgument)
}
