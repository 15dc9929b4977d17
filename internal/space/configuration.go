package space

import (
	"fmt"
	"maps"
	"strings"
)

// Configuration is an immutable assignment of values to the active
// hyperparameters of a space. Two configurations are equal iff their IDs are.
type Configuration struct {
	space  *Space
	values map[string]string
	id     string
}

func newConfiguration(s *Space, values map[string]string) Configuration {
	parts := make([]string, 0, len(values))
	for _, h := range s.params {
		if v, ok := values[h.Name]; ok {
			parts = append(parts, fmt.Sprintf("%s='%s'", h.Name, v))
		}
	}
	return Configuration{space: s, values: values, id: strings.Join(parts, ", ")}
}

func (c Configuration) ID() string { return c.id }

func (c Configuration) String() string { return c.id }

func (c Configuration) Space() *Space { return c.space }

func (c Configuration) Equal(o Configuration) bool {
	return c.id == o.id && c.space.Compatible(o.space)
}

// Value returns the value of name and whether it is active.
func (c Configuration) Value(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

func (c Configuration) Active(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Values returns a copy of the active assignments.
func (c Configuration) Values() map[string]string { return maps.Clone(c.values) }

// Encode maps the configuration onto one float per hyperparameter. Inactive
// dimensions get Inactive regardless of any value they might have held.
func (c Configuration) Encode() []float64 {
	x := make([]float64, len(c.space.params))
	for i, h := range c.space.params {
		v, ok := c.values[h.Name]
		if !ok {
			x[i] = Inactive
			continue
		}
		x[i] = h.encode(v)
	}
	return x
}

// With returns a copy with name set to value. Activation is re-resolved:
// children that become active take their value from fill when it has one and
// their default otherwise.
func (c Configuration) With(name, value string, fill func(string) (string, bool)) (Configuration, error) {
	if _, ok := c.space.index[name]; !ok {
		return Configuration{}, fmt.Errorf("unknown hyperparameter %q", name)
	}
	vals := maps.Clone(c.values)
	vals[name] = value
	return c.space.resolve(vals, fill)
}

// Diff lists, in space order, the hyperparameters whose value or activity
// differs between c and o.
func (c Configuration) Diff(o Configuration) []string {
	var names []string
	for _, h := range c.space.params {
		a, aok := c.values[h.Name]
		b, bok := o.values[h.Name]
		if aok != bok || a != b {
			names = append(names, h.Name)
		}
	}
	return names
}
