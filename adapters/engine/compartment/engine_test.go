package compartment

import (
	"context"
	"testing"

	"episweep/domain/core"
	"episweep/domain/params"
	"episweep/domain/policy"
	"episweep/domain/series"
	"episweep/domain/vaccine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig(seed int64) params.Configuration {
	return params.Base().With(map[string]float64{
		params.KeyNTotal:         5000,
		params.KeyRNGSeed:        float64(seed),
		params.KeyNSeedInfection: 10,
		params.KeyInfectiousRate: 2.5,
	})
}

func runRef(t *testing.T, cfg params.Configuration, days int, plan *vaccine.Plan) *series.ResultSeries {
	t.Helper()
	ctx := context.Background()
	e, err := NewFactory().NewEngine(ctx, cfg)
	require.NoError(t, err)
	defer e.Close()
	if plan != nil {
		require.NoError(t, plan.Attach(ctx, e))
	}
	s, err := e.Run(ctx, days)
	require.NoError(t, err)
	return s
}

func TestReferenceEngine_ShapeAndDeterminism(t *testing.T) {
	a := runRef(t, smallConfig(23649), 60, nil)
	b := runRef(t, smallConfig(23649), 60, nil)
	c := runRef(t, smallConfig(36492), 60, nil)

	require.Equal(t, 61, a.Len())
	assert.Empty(t, a.Missing(series.RequiredChannels))

	at, _ := a.Channel(series.ChannelTotalInfected)
	bt, _ := b.Channel(series.ChannelTotalInfected)
	ct, _ := c.Channel(series.ChannelTotalInfected)
	assert.Equal(t, at, bt, "same seed, same output")
	assert.NotEqual(t, at, ct, "different seed, different output")
}

func TestReferenceEngine_CumulativeInvariants(t *testing.T) {
	s := runRef(t, smallConfig(1), 120, nil)
	total, _ := s.Channel(series.ChannelTotalInfected)
	users, _ := s.Channel(series.ChannelAppUserInfected)

	assert.GreaterOrEqual(t, total[0], 10.0)
	for d := 1; d < len(total); d++ {
		assert.GreaterOrEqual(t, total[d], total[d-1], "day %d", d)
		assert.LessOrEqual(t, users[d], total[d], "day %d", d)
		assert.LessOrEqual(t, total[d], 5000.0)
	}
}

func TestReferenceEngine_RejectsConfiguration(t *testing.T) {
	testCases := map[string]params.Configuration{
		"unknown key":        params.Base().With(map[string]float64{"lockdown_strength": 1}),
		"empty population":   params.Base().With(map[string]float64{params.KeyNTotal: 0}),
		"negative R":         params.Base().With(map[string]float64{params.KeyInfectiousRate: -1}),
		"adoption above one": params.Base().With(map[string]float64{params.AppUsersFractionKey(params.Age20to29): 1.5}),
	}
	for name, cfg := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := NewFactory().NewEngine(context.Background(), cfg)
			assert.ErrorIs(t, err, core.ErrConfiguration)
		})
	}
}

func TestModel_CautionReducesAppUserExposure(t *testing.T) {
	base := smallConfig(1)

	none, err := policy.Apply(base, policy.ScaleAppAdoption(0.7, policy.AdoptionFlat), policy.SetCautionProfile(1, 1, 1, 1))
	require.NoError(t, err)
	strict, err := policy.Apply(base, policy.ScaleAppAdoption(0.7, policy.AdoptionFlat), policy.SetCautionProfile(0, 0, 1, 1))
	require.NoError(t, err)
	off := strict.With(map[string]float64{params.KeyNovidOn: 0})

	mNone, err := newModel(none)
	require.NoError(t, err)
	mStrict, err := newModel(strict)
	require.NoError(t, err)
	mOff, err := newModel(off)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, mNone.appMultiplier, 1e-12)
	assert.InDelta(t, 1-0.7*0.7, mStrict.appMultiplier, 1e-12)
	assert.InDelta(t, 1.0, mOff.appMultiplier, 1e-12)
	assert.InDelta(t, 0.7, mStrict.adoption, 1e-12)
}

func TestReferenceEngine_VaccinationProtects(t *testing.T) {
	plan := vaccine.Default()
	plan.Vaccine.TimeToProtect = 1
	plan.Vaccine.FullEfficacy = []float64{1}
	plan.Vaccine.SymptomEfficacy = []float64{1}
	plan.Vaccine.SevereEfficacy = []float64{1}

	cfg := smallConfig(5).With(map[string]float64{params.KeyInfectiousRate: 6})
	plain := runRef(t, cfg, 150, nil)
	vacc := runRef(t, cfg, 150, &plan)

	p, _ := plain.Last(series.ChannelTotalInfected)
	v, _ := vacc.Last(series.ChannelTotalInfected)
	assert.Less(t, v, p)
}

func TestReferenceEngine_Canceled(t *testing.T) {
	e, err := NewFactory().NewEngine(context.Background(), smallConfig(1))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.Run(ctx, 100)
	assert.ErrorIs(t, err, context.Canceled)
}
