package testkit

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"episweep/domain/core"
	"episweep/domain/params"
	"episweep/domain/series"
	"episweep/domain/vaccine"
	"episweep/ports"
)

// FakeEngineFactory produces deterministic engines. The output depends only
// on rng_seed, infectious_rate, n_seed_infection and the app adoption
// fractions, so repeated runs of the same configuration are identical.
type FakeEngineFactory struct {
	created atomic.Int64
	running atomic.Int64
	peak    atomic.Int64

	mu         sync.Mutex
	failRun    map[int64]error
	failCreate map[int64]error
	shortBy    map[int64]int
	vaccinated map[int64]int
	onRun      map[int64]func()
}

var _ ports.EngineFactory = (*FakeEngineFactory)(nil)

func NewFakeEngineFactory() *FakeEngineFactory {
	return &FakeEngineFactory{
		failRun:    make(map[int64]error),
		failCreate: make(map[int64]error),
		shortBy:    make(map[int64]int),
		vaccinated: make(map[int64]int),
		onRun:      make(map[int64]func()),
	}
}

// FailRunForSeed makes Run return err for engines configured with seed.
func (f *FakeEngineFactory) FailRunForSeed(seed int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRun[seed] = err
}

// OnRunForSeed calls fn inside Run for engines configured with seed, before
// the engine checks its context a second time.
func (f *FakeEngineFactory) OnRunForSeed(seed int64, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRun[seed] = fn
}

// RejectSeed makes NewEngine return err for configurations with seed.
func (f *FakeEngineFactory) RejectSeed(seed int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate[seed] = err
}

// TruncateSeed drops n rows from the table returned for seed.
func (f *FakeEngineFactory) TruncateSeed(seed int64, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shortBy[seed] = n
}

// Created is the number of engine instances handed out.
func (f *FakeEngineFactory) Created() int {
	return int(f.created.Load())
}

// PeakConcurrent is the largest number of engines running at once.
func (f *FakeEngineFactory) PeakConcurrent() int {
	return int(f.peak.Load())
}

// VaccinatedRuns counts runs with an attached schedule for seed.
func (f *FakeEngineFactory) VaccinatedRuns(seed int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vaccinated[seed]
}

func (f *FakeEngineFactory) NewEngine(ctx context.Context, cfg params.Configuration) (ports.Engine, error) {
	if unknown := cfg.Unrecognized(params.Vocabulary()); len(unknown) > 0 {
		return nil, core.NewConfigurationError(unknown[0], "unrecognized parameter")
	}
	seed := int64(cfg.Value(params.KeyRNGSeed))

	f.mu.Lock()
	err := f.failCreate[seed]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	f.created.Add(1)
	return &FakeEngine{factory: f, cfg: cfg, seed: seed}, nil
}

// FakeEngine is one configured instance.
type FakeEngine struct {
	factory   *FakeEngineFactory
	cfg       params.Configuration
	seed      int64
	vaccines  []vaccine.Spec
	schedules []vaccine.Schedule
	attached  bool
	closed    bool
}

func (e *FakeEngine) AddVaccine(ctx context.Context, spec vaccine.Spec) (vaccine.Handle, error) {
	e.vaccines = append(e.vaccines, spec)
	return vaccine.Handle(fmt.Sprintf("vaccine-%d", len(e.vaccines)-1)), nil
}

func (e *FakeEngine) ScheduleVaccination(ctx context.Context, schedule vaccine.Schedule, v vaccine.Handle) (vaccine.ScheduleHandle, error) {
	if len(e.vaccines) == 0 {
		return "", core.NewConfigurationError("vaccine", fmt.Sprintf("unknown handle %s", v))
	}
	e.schedules = append(e.schedules, schedule)
	return vaccine.ScheduleHandle(fmt.Sprintf("schedule-%d", len(e.schedules)-1)), nil
}

func (e *FakeEngine) AttachSchedule(ctx context.Context, h vaccine.ScheduleHandle) error {
	if len(e.schedules) == 0 {
		return core.NewConfigurationError("schedule", fmt.Sprintf("unknown handle %s", h))
	}
	e.attached = true
	return nil
}

func (e *FakeEngine) Run(ctx context.Context, durationDays int) (*series.ResultSeries, error) {
	if e.closed {
		return nil, core.NewSimulationError("engine already closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	running := e.factory.running.Add(1)
	defer e.factory.running.Add(-1)
	for {
		peak := e.factory.peak.Load()
		if running <= peak || e.factory.peak.CompareAndSwap(peak, running) {
			break
		}
	}

	e.factory.mu.Lock()
	failErr := e.factory.failRun[e.seed]
	short := e.factory.shortBy[e.seed]
	hook := e.factory.onRun[e.seed]
	if e.attached {
		e.factory.vaccinated[e.seed]++
	}
	e.factory.mu.Unlock()
	if hook != nil {
		hook()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if failErr != nil {
		return nil, failErr
	}

	rows := durationDays + 1 - short
	if rows < 0 {
		rows = 0
	}
	return e.table(rows), nil
}

func (e *FakeEngine) Close() error {
	e.closed = true
	return nil
}

func (e *FakeEngine) table(rows int) *series.ResultSeries {
	population := e.cfg.Value(params.KeyNTotal)
	if population <= 0 {
		population = 100000
	}
	r := e.cfg.Value(params.KeyInfectiousRate)
	adoption := meanAdoption(e.cfg)
	if e.attached {
		r *= 0.8
	}

	rng := rand.New(rand.NewPCG(uint64(e.seed), uint64(math.Float64bits(r))))
	names := append([]string{series.ChannelTime}, series.RequiredChannels...)
	cols := make([][]float64, len(names))
	for i := range cols {
		cols[i] = make([]float64, rows)
	}

	total := math.Max(1, e.cfg.Value(params.KeyNSeedInfection))
	for d := 0; d < rows; d++ {
		if d > 0 {
			susceptible := 1 - total/population
			total += math.Floor(total * r / 20 * susceptible * (0.5 + rng.Float64()))
			total = math.Min(total, population)
		}
		user := math.Floor(total * adoption)
		cols[0][d] = float64(d)
		cols[1][d] = total
		cols[2][d] = user
		cols[3][d] = math.Floor(total * 0.1)
		cols[4][d] = math.Floor(total * 0.3)
		cols[5][d] = math.Floor(total * 0.6)
		cols[6][d] = math.Floor(total * 0.02)
		cols[7][d] = math.Floor(total * 0.5)
		cols[8][d] = r / 10 * (1 - total/population)
	}
	s, _ := series.FromColumns(names, cols)
	return s
}

func meanAdoption(cfg params.Configuration) float64 {
	var sum float64
	for _, b := range params.AgeBands {
		sum += cfg.Value(params.AppUsersFractionKey(b))
	}
	return sum / float64(len(params.AgeBands))
}
