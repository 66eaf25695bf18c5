// Package process drives an external simulator executable. Each run starts
// one process: the configuration goes in as JSON on stdin, the per-day table
// comes back as CSV on stdout, and failures are reported as a JSON document
// on stderr.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"episweep/domain/core"
	"episweep/domain/params"
	"episweep/domain/series"
	"episweep/domain/vaccine"
	"episweep/internal"
	"episweep/ports"

	"github.com/tidwall/gjson"
)

// Config describes how to start the simulator.
type Config struct {
	Command string
	Args    []string
	Env     []string // appended to the current environment
	Timeout time.Duration
}

// Factory implements ports.EngineFactory over an executable.
type Factory struct {
	config Config
	logger *internal.Logger
}

var _ ports.EngineFactory = (*Factory)(nil)

// NewFactory checks the command resolves and returns a factory.
func NewFactory(config Config, logger *internal.Logger) (*Factory, error) {
	if config.Command == "" {
		return nil, core.NewConfigurationError("engine_cmd", "command is required")
	}
	if _, err := exec.LookPath(config.Command); err != nil {
		return nil, core.NewConfigurationError("engine_cmd", err.Error())
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Factory{config: config, logger: logger}, nil
}

// NewEngine records cfg for the next run. Validation of parameter names is
// the simulator's job; rejections surface from Run.
func (f *Factory) NewEngine(ctx context.Context, cfg params.Configuration) (ports.Engine, error) {
	return &Engine{factory: f, cfg: cfg}, nil
}

// Engine is one pending simulator invocation.
type Engine struct {
	factory   *Factory
	cfg       params.Configuration
	vaccines  []vaccine.Spec
	schedules []scheduleDoc
	attached  []int
	closed    bool
}

type scheduleDoc struct {
	Vaccine   int                `json:"vaccine"`
	Fractions map[string]float64 `json:"fractions"`
}

type vaccinationDoc struct {
	Vaccines  []vaccine.Spec `json:"vaccines"`
	Schedules []scheduleDoc  `json:"schedules"`
}

type requestDoc struct {
	Params      params.Configuration `json:"params"`
	Duration    int                  `json:"duration"`
	Vaccination *vaccinationDoc      `json:"vaccination,omitempty"`
}

// AddVaccine records spec for the request document.
func (e *Engine) AddVaccine(ctx context.Context, spec vaccine.Spec) (vaccine.Handle, error) {
	e.vaccines = append(e.vaccines, spec)
	return vaccine.Handle(fmt.Sprintf("vaccine:%d", len(e.vaccines)-1)), nil
}

// ScheduleVaccination records per-band uptake fractions for vaccine v.
func (e *Engine) ScheduleVaccination(ctx context.Context, schedule vaccine.Schedule, v vaccine.Handle) (vaccine.ScheduleHandle, error) {
	var idx int
	if _, err := fmt.Sscanf(string(v), "vaccine:%d", &idx); err != nil || idx < 0 || idx >= len(e.vaccines) {
		return "", core.NewConfigurationError("vaccine", fmt.Sprintf("unknown vaccine handle %q", v))
	}
	doc := scheduleDoc{Vaccine: idx, Fractions: make(map[string]float64, len(params.AgeBands))}
	for _, band := range params.AgeBands {
		doc.Fractions[string(band)] = schedule.Fraction(band)
	}
	e.schedules = append(e.schedules, doc)
	return vaccine.ScheduleHandle(fmt.Sprintf("schedule:%d", len(e.schedules)-1)), nil
}

// AttachSchedule includes the schedule in the next request.
func (e *Engine) AttachSchedule(ctx context.Context, h vaccine.ScheduleHandle) error {
	var idx int
	if _, err := fmt.Sscanf(string(h), "schedule:%d", &idx); err != nil || idx < 0 || idx >= len(e.schedules) {
		return core.NewConfigurationError("schedule", fmt.Sprintf("unknown schedule handle %q", h))
	}
	e.attached = append(e.attached, idx)
	return nil
}

func (e *Engine) request(durationDays int) requestDoc {
	req := requestDoc{Params: e.cfg, Duration: durationDays}
	if len(e.attached) > 0 {
		vd := &vaccinationDoc{Vaccines: e.vaccines}
		for _, idx := range e.attached {
			vd.Schedules = append(vd.Schedules, e.schedules[idx])
		}
		req.Vaccination = vd
	}
	return req
}

// Run starts the simulator, writes the request to its stdin and parses the
// CSV table on stdout. A non-zero exit is classified from stderr.
func (e *Engine) Run(ctx context.Context, durationDays int) (*series.ResultSeries, error) {
	if e.closed {
		return nil, core.NewSimulationError("engine already closed", nil)
	}
	input, err := json.Marshal(e.request(durationDays))
	if err != nil {
		return nil, core.NewConfigurationError("params", fmt.Sprintf("encoding request: %v", err))
	}

	if e.factory.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.factory.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.factory.config.Command, e.factory.config.Args...)
	cmd.Env = append(os.Environ(), e.factory.config.Env...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	e.factory.logger.Debug("[ProcessEngine] %s exited after %s (%d bytes out)", e.factory.config.Command, time.Since(started), stdout.Len())

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ParseFailure(stderr.Bytes(), runErr)
	}

	table, err := series.ReadCSV(&stdout)
	if err != nil {
		return nil, core.NewSimulationError("reading engine output", err)
	}
	return table, nil
}

// Close marks the engine unusable. No process outlives Run.
func (e *Engine) Close() error {
	e.closed = true
	return nil
}

// ParseFailure maps the simulator's stderr to a harness error. A JSON
// document {"error":{"kind","key","message"}} selects the kind; anything
// else is a simulation failure carrying the tail of stderr.
func ParseFailure(stderr []byte, exitErr error) error {
	doc := lastJSONLine(stderr)
	if doc != "" {
		kind := gjson.Get(doc, "error.kind").String()
		message := gjson.Get(doc, "error.message").String()
		key := gjson.Get(doc, "error.key").String()
		if message == "" {
			message = exitErr.Error()
		}
		switch kind {
		case "configuration":
			if key == "" {
				key = "params"
			}
			return core.NewConfigurationError(key, message)
		case "simulation", "":
			return core.NewSimulationError(message, exitErr)
		default:
			return core.NewSimulationError(kind+": "+message, exitErr)
		}
	}
	return core.NewSimulationError(tail(string(stderr), 512), exitErr)
}

// lastJSONLine finds the last stderr line holding an error document, so
// diagnostic output before it is ignored.
func lastJSONLine(stderr []byte) string {
	lines := strings.Split(strings.TrimSpace(string(stderr)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if gjson.Valid(line) && gjson.Get(line, "error").Exists() {
			return line
		}
	}
	return ""
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
