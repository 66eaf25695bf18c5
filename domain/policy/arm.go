// Package policy defines PolicyArms: named, pure transforms over a
// params.Configuration. Arms compose by feeding one arm's output into the
// next, in exactly the order the caller lists them.
package policy

import (
	"fmt"
	"strings"

	"episweep/domain/params"
)

// Transform maps a configuration to a new one. It must not keep state
// between calls.
type Transform func(params.Configuration) (params.Configuration, error)

// Arm is a named, reusable override transform.
type Arm struct {
	Name      string
	transform Transform
}

// NewArm wraps fn under name.
func NewArm(name string, fn Transform) Arm {
	return Arm{Name: name, transform: fn}
}

// Apply runs the arm on c. c itself is never modified.
func (a Arm) Apply(c params.Configuration) (params.Configuration, error) {
	if a.transform == nil {
		return c, nil
	}
	out, err := a.transform(c)
	if err != nil {
		return params.Configuration{}, fmt.Errorf("policy %s: %w", a.Name, err)
	}
	return out, nil
}

// Apply runs arms against c in the order given; on overlapping keys the
// last arm wins.
func Apply(c params.Configuration, arms ...Arm) (params.Configuration, error) {
	out := c
	for _, arm := range arms {
		next, err := arm.Apply(out)
		if err != nil {
			return params.Configuration{}, err
		}
		out = next
	}
	return out, nil
}

// Chain composes arms into one arm. Its name lists the members in
// application order, joined by "+", unless name is given.
func Chain(name string, arms ...Arm) Arm {
	members := append([]Arm(nil), arms...)
	if name == "" {
		names := make([]string, len(members))
		for i, a := range members {
			names[i] = a.Name
		}
		name = strings.Join(names, "+")
	}
	return NewArm(name, func(c params.Configuration) (params.Configuration, error) {
		return Apply(c, members...)
	})
}

// Identity leaves the configuration unchanged.
func Identity() Arm {
	return NewArm("identity", func(c params.Configuration) (params.Configuration, error) {
		return c, nil
	})
}

// Set overrides a single key.
func Set(key string, value float64) Arm {
	return NewArm(fmt.Sprintf("set:%s", key), func(c params.Configuration) (params.Configuration, error) {
		return c.With(map[string]float64{key: value}), nil
	})
}

// Merge overlays every key of overrides.
func Merge(name string, overrides params.Configuration) Arm {
	values := overrides.Values()
	return NewArm(name, func(c params.Configuration) (params.Configuration, error) {
		return c.With(values), nil
	})
}
