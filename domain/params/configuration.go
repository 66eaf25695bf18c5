// Package params holds the parameter vocabulary of the epidemic engine and
// the immutable Configuration value that is handed to it for one run.
package params

import (
	"encoding/json"
	"sort"

	"episweep/domain/core"
)

// Configuration maps engine parameter names to scalar values. Flags are
// encoded as 0 or 1. A Configuration is immutable: every method that changes
// values returns a new Configuration and leaves the receiver untouched.
type Configuration struct {
	values map[string]float64
}

// New copies values into a new Configuration.
func New(values map[string]float64) Configuration {
	c := Configuration{values: make(map[string]float64, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// Get returns the value stored under key.
func (c Configuration) Get(key string) (float64, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Value returns the value stored under key, or 0 when absent.
func (c Configuration) Value(key string) float64 {
	return c.values[key]
}

// Has reports whether key is present.
func (c Configuration) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Len returns the number of keys.
func (c Configuration) Len() int {
	return len(c.values)
}

// Keys returns the keys in sorted order.
func (c Configuration) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns a copy of the underlying mapping.
func (c Configuration) Values() map[string]float64 {
	out := make(map[string]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// With returns a copy of c with overrides laid on top. Keys present in both
// take the override's value; no key of either side is dropped.
func (c Configuration) With(overrides map[string]float64) Configuration {
	out := New(c.values)
	for k, v := range overrides {
		out.values[k] = v
	}
	return out
}

// Overlay is With for another Configuration.
func (c Configuration) Overlay(other Configuration) Configuration {
	return c.With(other.values)
}

// Equal reports whether both configurations hold the same keys and values.
func (c Configuration) Equal(other Configuration) bool {
	if len(c.values) != len(other.values) {
		return false
	}
	for k, v := range c.values {
		ov, ok := other.values[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Hash returns an order-independent fingerprint of the configuration.
func (c Configuration) Hash() core.Hash {
	return core.ComputeValuesHash(c.values)
}

// Unrecognized returns the keys that are not part of vocabulary, sorted.
func (c Configuration) Unrecognized(vocabulary map[string]struct{}) []string {
	var unknown []string
	for _, k := range c.Keys() {
		if _, ok := vocabulary[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	return unknown
}

// MarshalJSON encodes the configuration as a flat key-value object.
func (c Configuration) MarshalJSON() ([]byte, error) {
	if c.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.values)
}

// UnmarshalJSON replaces c with a copy of the decoded object.
func (c *Configuration) UnmarshalJSON(data []byte) error {
	var values map[string]float64
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*c = New(values)
	return nil
}
