// Package space describes hyperparameter spaces with conditional activation
// and the configurations drawn from them.
package space

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

type Kind string

const (
	KindFloat       Kind = "float"
	KindInt         Kind = "int"
	KindCategorical Kind = "categorical"
)

// Inactive is the encoding of a hyperparameter that is switched off by its
// parent's value.
const Inactive = -1.0

type Hyperparameter struct {
	Name         string   `yaml:"name" json:"name"`
	Kind         Kind     `yaml:"type" json:"type"`
	Lower        float64  `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper        float64  `yaml:"upper,omitempty" json:"upper,omitempty"`
	Log          bool     `yaml:"log,omitempty" json:"log,omitempty"`
	Choices      []string `yaml:"choices,omitempty" json:"choices,omitempty"`
	Default      string   `yaml:"default,omitempty" json:"default,omitempty"`
	Parent       string   `yaml:"parent,omitempty" json:"parent,omitempty"`
	ParentValues []string `yaml:"parent_values,omitempty" json:"parent_values,omitempty"`
}

// Space is an ordered set of hyperparameters. Parents always precede their
// children, so a single forward pass resolves activation.
type Space struct {
	params      []Hyperparameter
	index       map[string]int
	fingerprint string
	def         Configuration
}

func New(params []Hyperparameter) (*Space, error) {
	s := &Space{
		params: make([]Hyperparameter, len(params)),
		index:  make(map[string]int, len(params)),
	}
	for i, h := range params {
		h.Choices = slices.Clone(h.Choices)
		h.ParentValues = slices.Clone(h.ParentValues)
		if err := s.check(&h); err != nil {
			return nil, err
		}
		s.params[i] = h
		s.index[h.Name] = i
	}
	s.fingerprint = s.computeFingerprint()
	def, err := s.resolve(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("resolving default configuration: %w", err)
	}
	s.def = def
	return s, nil
}

func (s *Space) check(h *Hyperparameter) error {
	if h.Name == "" {
		return fmt.Errorf("hyperparameter %d: name is required", len(s.index))
	}
	if _, dup := s.index[h.Name]; dup {
		return fmt.Errorf("hyperparameter %q: declared twice", h.Name)
	}
	switch h.Kind {
	case KindFloat, KindInt:
		if h.Upper < h.Lower {
			return fmt.Errorf("hyperparameter %q: upper %g below lower %g", h.Name, h.Upper, h.Lower)
		}
		if h.Log && h.Lower <= 0 {
			return fmt.Errorf("hyperparameter %q: log scale needs a positive lower bound", h.Name)
		}
		if h.Default == "" {
			h.Default = strconv.FormatFloat(h.Lower, 'g', -1, 64)
		}
	case KindCategorical:
		if len(h.Choices) == 0 {
			return fmt.Errorf("hyperparameter %q: no choices", h.Name)
		}
		seen := make(map[string]bool, len(h.Choices))
		for _, c := range h.Choices {
			if seen[c] {
				return fmt.Errorf("hyperparameter %q: duplicate choice %q", h.Name, c)
			}
			seen[c] = true
		}
		if h.Default == "" {
			h.Default = h.Choices[0]
		}
	default:
		return fmt.Errorf("hyperparameter %q: unknown type %q", h.Name, h.Kind)
	}
	def, err := h.canonical(h.Default)
	if err != nil {
		return fmt.Errorf("hyperparameter %q: default: %w", h.Name, err)
	}
	h.Default = def

	if h.Parent == "" {
		return nil
	}
	pi, ok := s.index[h.Parent]
	if !ok {
		return fmt.Errorf("hyperparameter %q: parent %q must be declared before it", h.Name, h.Parent)
	}
	if len(h.ParentValues) == 0 {
		return fmt.Errorf("hyperparameter %q: parent_values required with parent", h.Name)
	}
	parent := s.params[pi]
	for i, v := range h.ParentValues {
		cv, err := parent.canonical(v)
		if err != nil {
			return fmt.Errorf("hyperparameter %q: parent value: %w", h.Name, err)
		}
		h.ParentValues[i] = cv
	}
	return nil
}

// canonical validates raw against the domain and returns the normalized
// string form used for identity.
func (h Hyperparameter) canonical(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch h.Kind {
	case KindCategorical:
		if !slices.Contains(h.Choices, raw) {
			return "", fmt.Errorf("value %q not in %v", raw, h.Choices)
		}
		return raw, nil
	case KindInt:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("value %q: %w", raw, err)
		}
		r := math.Round(f)
		if math.Abs(f-r) > 1e-9 {
			return "", fmt.Errorf("value %q is not an integer", raw)
		}
		if r < h.Lower || r > h.Upper {
			return "", fmt.Errorf("value %q outside [%g, %g]", raw, h.Lower, h.Upper)
		}
		return strconv.FormatInt(int64(r), 10), nil
	default:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("value %q: %w", raw, err)
		}
		if f < h.Lower || f > h.Upper {
			return "", fmt.Errorf("value %q outside [%g, %g]", raw, h.Lower, h.Upper)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
}

func (h Hyperparameter) encode(v string) float64 {
	if h.Kind == KindCategorical {
		return float64(slices.Index(h.Choices, v))
	}
	f, _ := strconv.ParseFloat(v, 64)
	lo, hi := h.Lower, h.Upper
	if h.Log {
		f, lo, hi = math.Log(f), math.Log(lo), math.Log(hi)
	}
	if hi == lo {
		return 0
	}
	return (f - lo) / (hi - lo)
}

func (s *Space) computeFingerprint() string {
	var b strings.Builder
	for _, h := range s.params {
		fmt.Fprintf(&b, "%s:%s", h.Name, h.Kind)
		if h.Kind == KindCategorical {
			fmt.Fprintf(&b, "{%s}", strings.Join(h.Choices, "|"))
		} else {
			fmt.Fprintf(&b, "[%g,%g,log=%t]", h.Lower, h.Upper, h.Log)
		}
		if h.Parent != "" {
			fmt.Fprintf(&b, "<-%s{%s}", h.Parent, strings.Join(h.ParentValues, "|"))
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Fingerprint is a canonical description of names, domains and conditions.
func (s *Space) Fingerprint() string { return s.fingerprint }

// Compatible reports whether configurations of both spaces can be mixed.
func (s *Space) Compatible(o *Space) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s == o || s.fingerprint == o.fingerprint
}

func (s *Space) Len() int { return len(s.params) }

func (s *Space) Params() []Hyperparameter { return slices.Clone(s.params) }

func (s *Space) Names() []string {
	names := make([]string, len(s.params))
	for i, h := range s.params {
		names[i] = h.Name
	}
	return names
}

func (s *Space) Param(name string) (Hyperparameter, bool) {
	i, ok := s.index[name]
	if !ok {
		return Hyperparameter{}, false
	}
	return s.params[i], true
}

// Index returns the position of name in the space, or -1.
func (s *Space) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Types annotates each encoded dimension: 0 for continuous, otherwise the
// number of categories.
func (s *Space) Types() []int {
	types := make([]int, len(s.params))
	for i, h := range s.params {
		if h.Kind == KindCategorical {
			types[i] = len(h.Choices)
		}
	}
	return types
}

func (s *Space) Default() Configuration { return s.def }

// Configuration builds a configuration from raw values. Values of inactive
// hyperparameters are dropped; active ones that are missing take their default.
func (s *Space) Configuration(values map[string]string) (Configuration, error) {
	for name := range values {
		if _, ok := s.index[name]; !ok {
			return Configuration{}, fmt.Errorf("unknown hyperparameter %q", name)
		}
	}
	return s.resolve(values, nil)
}

func (s *Space) resolve(values map[string]string, fill func(string) (string, bool)) (Configuration, error) {
	out := make(map[string]string, len(s.params))
	for _, h := range s.params {
		if !activeUnder(h, out) {
			continue
		}
		raw, ok := values[h.Name]
		if !ok && fill != nil {
			raw, ok = fill(h.Name)
		}
		if !ok {
			raw = h.Default
		}
		v, err := h.canonical(raw)
		if err != nil {
			return Configuration{}, fmt.Errorf("hyperparameter %q: %w", h.Name, err)
		}
		out[h.Name] = v
	}
	return newConfiguration(s, out), nil
}

func activeUnder(h Hyperparameter, resolved map[string]string) bool {
	if h.Parent == "" {
		return true
	}
	pv, ok := resolved[h.Parent]
	if !ok {
		return false
	}
	return slices.Contains(h.ParentValues, pv)
}
