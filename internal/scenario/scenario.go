// Package scenario holds the read-only experiment description shared by all
// analysis steps.
package scenario

import (
	"github.com/signalnine/rundown/internal/space"
)

type Objective string

const (
	ObjectiveRuntime Objective = "runtime"
	ObjectiveQuality Objective = "quality"
)

type Scenario struct {
	Name           string
	Objective      Objective
	Cutoff         float64
	WallclockLimit float64
	RunCountLimit  int
	CPULimit       float64
	Deterministic  bool
	// Repetitions is the number of seeds each instance is evaluated on when
	// the target algorithm is not deterministic.
	Repetitions    int
	CostForCrash   float64
	Space          *space.Space
	TrainInstances []string
	TestInstances  []string
	FeatureNames   []string
	Features       map[string][]float64
}

// Instances returns train then test instances without duplicates.
func (s *Scenario) Instances() []string {
	seen := make(map[string]bool, len(s.TrainInstances)+len(s.TestInstances))
	var out []string
	for _, list := range [][]string{s.TrainInstances, s.TestInstances} {
		for _, inst := range list {
			if !seen[inst] {
				seen[inst] = true
				out = append(out, inst)
			}
		}
	}
	return out
}

// SeedsPerInstance is the number of runs the evaluation policy requires per
// (configuration, instance).
func (s *Scenario) SeedsPerInstance() int {
	if s.Deterministic || s.Repetitions < 1 {
		return 1
	}
	return s.Repetitions
}

// FeatureVector returns the features of inst, zero-filled when unknown.
func (s *Scenario) FeatureVector(inst string) []float64 {
	out := make([]float64, len(s.FeatureNames))
	copy(out, s.Features[inst])
	return out
}

// CrashCost is the cost recorded for runs that crashed.
func (s *Scenario) CrashCost() float64 {
	if s.CostForCrash != 0 {
		return s.CostForCrash
	}
	if s.Objective == ObjectiveRuntime || s.Objective == "" {
		return s.Cutoff
	}
	return 1 << 31
}
