// Package compartment is an in-process reference engine: a stochastic
// chain-binomial SEIR model split into app users and non-users, with
// exposure-notification caution applied to app users. It accepts the same
// parameter vocabulary as the external simulator so sweeps can run end to
// end without it. Its output is not calibrated.
package compartment

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"episweep/domain/core"
	"episweep/domain/params"
	"episweep/domain/series"
	"episweep/domain/vaccine"
	"episweep/ports"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	latentDays     = 3.0
	infectiousDays = 5.0
	hospitalRate   = 0.02
	symptomRate    = 0.7
)

// Weight of each social distance in a case's contact network, closest first.
var distanceWeights = [params.MaxCautionDistance]float64{0.4, 0.3, 0.2, 0.1}

// Factory implements ports.EngineFactory.
type Factory struct{}

var _ ports.EngineFactory = Factory{}

// NewFactory returns the reference engine factory.
func NewFactory() Factory {
	return Factory{}
}

func (Factory) NewEngine(ctx context.Context, cfg params.Configuration) (ports.Engine, error) {
	if unknown := cfg.Unrecognized(params.Vocabulary()); len(unknown) > 0 {
		return nil, core.NewConfigurationError(unknown[0], "unrecognized parameter")
	}
	m, err := newModel(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{model: m}, nil
}

// model holds the rates derived from a configuration.
type model struct {
	population     float64
	seedInfected   float64
	seedRate       float64
	beta           float64
	adoption       float64
	appMultiplier  float64
	traceReduction float64
	traceFrom      float64
	selfQuarantine float64
	seed           uint64
}

func newModel(cfg params.Configuration) (model, error) {
	n := cfg.Value(params.KeyNTotal)
	if n <= 0 {
		return model{}, core.NewConfigurationError(params.KeyNTotal, fmt.Sprintf("must be positive, got %g", n))
	}
	r := cfg.Value(params.KeyInfectiousRate)
	if r < 0 {
		return model{}, core.NewConfigurationError(params.KeyInfectiousRate, fmt.Sprintf("must not be negative, got %g", r))
	}

	var adoption float64
	for _, b := range params.AgeBands {
		f := cfg.Value(params.AppUsersFractionKey(b))
		if f < 0 || f > 1 {
			return model{}, core.NewConfigurationError(params.AppUsersFractionKey(b), fmt.Sprintf("%g outside [0, 1]", f))
		}
		adoption += f
	}
	adoption /= float64(len(params.AgeBands))

	// Caution only reaches an app user when the case also carries the app.
	appMultiplier := 1.0
	if cfg.Value(params.KeyNovidOn) > 0 && cfg.Value(params.KeySoftQuarantineOn) > 0 {
		var caution float64
		for d := 1; d <= params.MaxCautionDistance; d++ {
			m, ok := cfg.Get(params.CautionMultiplierKey(d))
			if !ok {
				m = 1
			}
			caution += distanceWeights[d-1] * m
		}
		appMultiplier = 1 - adoption*(1-caution)
	}

	var trace float64
	if cfg.Value(params.KeyManualTraceOn) > 0 {
		trace = 0.2 * (cfg.Value("manual_traceable_fraction_household") + cfg.Value("manual_traceable_fraction_occupation")) / 2
	}

	return model{
		population:     n,
		seedInfected:   cfg.Value(params.KeyNSeedInfection),
		seedRate:       cfg.Value(params.KeyNewSeedInfectionRate),
		beta:           r / infectiousDays,
		adoption:       adoption,
		appMultiplier:  appMultiplier,
		traceReduction: trace,
		traceFrom:      cfg.Value(params.KeyManualTraceTimeOn),
		selfQuarantine: cfg.Value(params.KeySelfQuarantine),
		seed:           uint64(int64(cfg.Value(params.KeyRNGSeed))),
	}, nil
}

// Engine is one configured reference simulation.
type Engine struct {
	model     model
	vaccines  []vaccine.Spec
	schedules []scheduled
	attached  []scheduled
	closed    bool
}

type scheduled struct {
	spec     vaccine.Spec
	schedule vaccine.Schedule
}

// AddVaccine validates spec and returns its index as the handle.
func (e *Engine) AddVaccine(ctx context.Context, spec vaccine.Spec) (vaccine.Handle, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	e.vaccines = append(e.vaccines, spec)
	return vaccine.Handle(fmt.Sprint(len(e.vaccines) - 1)), nil
}

// ScheduleVaccination pairs a rollout with a registered vaccine.
func (e *Engine) ScheduleVaccination(ctx context.Context, schedule vaccine.Schedule, v vaccine.Handle) (vaccine.ScheduleHandle, error) {
	var idx int
	if _, err := fmt.Sscan(string(v), &idx); err != nil || idx < 0 || idx >= len(e.vaccines) {
		return "", core.NewConfigurationError("vaccine", fmt.Sprintf("unknown vaccine handle %q", v))
	}
	e.schedules = append(e.schedules, scheduled{spec: e.vaccines[idx], schedule: schedule})
	return vaccine.ScheduleHandle(fmt.Sprint(len(e.schedules) - 1)), nil
}

// AttachSchedule makes the schedule apply to the next Run.
func (e *Engine) AttachSchedule(ctx context.Context, h vaccine.ScheduleHandle) error {
	var idx int
	if _, err := fmt.Sscan(string(h), &idx); err != nil || idx < 0 || idx >= len(e.schedules) {
		return core.NewConfigurationError("schedule", fmt.Sprintf("unknown schedule handle %q", h))
	}
	e.attached = append(e.attached, e.schedules[idx])
	return nil
}

// Close marks the engine unusable.
func (e *Engine) Close() error {
	e.closed = true
	return nil
}

// group is one subpopulation's compartments.
type group struct {
	s, e, i, r float64
	cumulative float64
	protected  float64
}

// Run steps the app-user and non-user compartments one day at a time and
// returns durationDays+1 rows.
func (e *Engine) Run(ctx context.Context, durationDays int) (*series.ResultSeries, error) {
	if e.closed {
		return nil, core.NewSimulationError("engine already closed", nil)
	}
	if durationDays < 0 {
		return nil, core.NewConfigurationError(params.KeyEndTime, "duration must not be negative")
	}
	m := e.model
	src := rand.NewPCG(m.seed, 0x9e3779b97f4a7c15)

	appN := math.Round(m.population * m.adoption)
	app := group{s: appN}
	non := group{s: m.population - appN}
	seedInfections(src, &app, &non, m.seedInfected, m.adoption)

	names := append([]string{series.ChannelTime}, series.RequiredChannels...)
	cols := make([][]float64, len(names))
	for i := range cols {
		cols[i] = make([]float64, durationDays+1)
	}
	var tests float64

	record := func(d int) {
		infectious := app.i + non.i
		cols[0][d] = float64(d)
		cols[1][d] = app.cumulative + non.cumulative
		cols[2][d] = app.cumulative
		cols[3][d] = math.Round(infectious * m.selfQuarantine)
		cols[4][d] = tests
		cols[5][d] = math.Round(infectious * symptomRate)
		cols[6][d] = math.Round(infectious * hospitalRate)
		cols[7][d] = app.r + non.r
		susceptible := (app.s*m.appMultiplier + non.s) / m.population
		cols[8][d] = m.beta * infectiousDays * susceptible * (1 - e.traceFactor(float64(d)))
	}
	record(0)

	for d := 1; d <= durationDays; d++ {
		if d%16 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e.vaccinate(src, d, &app, &non)

		if m.seedRate > 0 {
			imported := distuv.Poisson{Lambda: m.seedRate, Src: src}.Rand()
			seedInfections(src, &app, &non, imported, m.adoption)
		}

		pressure := m.beta * (app.i + non.i) / m.population * (1 - e.traceFactor(float64(d)))
		newApp := binomial(src, app.s, 1-math.Exp(-pressure*m.appMultiplier))
		newNon := binomial(src, non.s, 1-math.Exp(-pressure))

		for _, g := range []*group{&app, &non} {
			onset := binomial(src, g.e, 1-math.Exp(-1/latentDays))
			recovered := binomial(src, g.i, 1-math.Exp(-1/infectiousDays))
			g.e += -onset
			g.i += onset - recovered
			g.r += recovered
			tests += math.Round(onset * symptomRate)
		}
		app.s -= newApp
		app.e += newApp
		app.cumulative += newApp
		non.s -= newNon
		non.e += newNon
		non.cumulative += newNon

		record(d)
	}
	return series.FromColumns(names, cols)
}

func (e *Engine) traceFactor(day float64) float64 {
	if day < e.model.traceFrom {
		return 0
	}
	return e.model.traceReduction
}

// vaccinate moves the protected share of each attached schedule's uptake
// out of the susceptible pool once the vaccine takes effect.
func (e *Engine) vaccinate(src rand.Source, day int, groups ...*group) {
	for _, sch := range e.attached {
		if day != sch.spec.TimeToProtect {
			continue
		}
		var uptake float64
		for _, f := range sch.schedule.Fractions() {
			uptake += f
		}
		uptake /= float64(len(params.AgeBands))
		p := uptake * sch.spec.FullEfficacy[0]
		for _, g := range groups {
			moved := binomial(src, g.s, p)
			g.s -= moved
			g.protected += moved
		}
	}
}

// seedInfections places n new exposures, split by adoption.
func seedInfections(src rand.Source, app, non *group, n, adoption float64) {
	if n <= 0 {
		return
	}
	toApp := math.Min(binomial(src, n, adoption), app.s)
	toNon := math.Min(n-toApp, non.s)
	app.s -= toApp
	app.i += toApp
	app.cumulative += toApp
	non.s -= toNon
	non.i += toNon
	non.cumulative += toNon
}

func binomial(src rand.Source, n, p float64) float64 {
	n = math.Floor(n)
	switch {
	case n <= 0 || p <= 0:
		return 0
	case p >= 1:
		return n
	}
	return distuv.Binomial{N: n, P: p, Src: src}.Rand()
}
