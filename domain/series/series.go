// Package series holds engine output tables and the derived metrics
// computed from them.
package series

import (
	"fmt"
	"sort"

	"episweep/domain/core"
)

// Channel names are part of the engine contract and must match exactly.
const (
	ChannelTime            = "time"
	ChannelTotalInfected   = "total_infected"
	ChannelAppUserInfected = "n_app_user_infected"
	ChannelQuarantine      = "n_quarantine"
	ChannelTests           = "n_tests"
	ChannelSymptoms        = "n_symptoms"
	ChannelHospital        = "n_hospital"
	ChannelRecovered       = "n_recovered"
	ChannelRInst           = "R_inst"
)

// RequiredChannels is the minimum set every engine run must report.
var RequiredChannels = []string{
	ChannelTotalInfected,
	ChannelAppUserInfected,
	ChannelQuarantine,
	ChannelTests,
	ChannelSymptoms,
	ChannelHospital,
	ChannelRecovered,
	ChannelRInst,
}

// ResultSeries is a per-day table: one row per simulated day plus the
// initial state, one float64 column per named channel.
type ResultSeries struct {
	order    []string
	channels map[string][]float64
	length   int
}

// FromColumns builds a series from parallel name and column slices. Every
// column must have the same length and names must be unique.
func FromColumns(names []string, columns [][]float64) (*ResultSeries, error) {
	if len(names) != len(columns) {
		return nil, core.NewShapeMismatchError("%d channel names for %d columns", len(names), len(columns))
	}
	s := &ResultSeries{
		order:    make([]string, 0, len(names)),
		channels: make(map[string][]float64, len(names)),
	}
	for i, name := range names {
		if _, dup := s.channels[name]; dup {
			return nil, core.NewShapeMismatchError("duplicate channel %q", name)
		}
		if i == 0 {
			s.length = len(columns[i])
		} else if len(columns[i]) != s.length {
			return nil, core.NewShapeMismatchError("channel %q has %d rows, expected %d", name, len(columns[i]), s.length)
		}
		s.order = append(s.order, name)
		s.channels[name] = append([]float64(nil), columns[i]...)
	}
	return s, nil
}

// Len returns the number of rows.
func (s *ResultSeries) Len() int {
	return s.length
}

// Channels returns channel names in table order.
func (s *ResultSeries) Channels() []string {
	return append([]string(nil), s.order...)
}

// Has reports whether the channel exists.
func (s *ResultSeries) Has(name string) bool {
	_, ok := s.channels[name]
	return ok
}

// Channel returns a copy of the named column.
func (s *ResultSeries) Channel(name string) ([]float64, error) {
	col, ok := s.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w %s", core.ErrChannelNotFound, name)
	}
	return append([]float64(nil), col...), nil
}

// Value returns one cell.
func (s *ResultSeries) Value(name string, day int) (float64, error) {
	col, ok := s.channels[name]
	if !ok {
		return 0, fmt.Errorf("%w %s", core.ErrChannelNotFound, name)
	}
	if day < 0 || day >= len(col) {
		return 0, core.NewValidationError("day", "out of range")
	}
	return col[day], nil
}

// Last returns the final row of the named channel.
func (s *ResultSeries) Last(name string) (float64, error) {
	return s.Value(name, s.length-1)
}

// Missing returns which of required are absent, sorted.
func (s *ResultSeries) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if !s.Has(name) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// SameShape reports whether other has the same row count and channel set.
func (s *ResultSeries) SameShape(other *ResultSeries) bool {
	if s.length != other.length || len(s.channels) != len(other.channels) {
		return false
	}
	for name := range s.channels {
		if _, ok := other.channels[name]; !ok {
			return false
		}
	}
	return true
}

func (s *ResultSeries) sortedChannels() []string {
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
