package scenario_test

import (
	"testing"

	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancesDeduplicates(t *testing.T) {
	s := &scenario.Scenario{
		TrainInstances: []string{"a", "b"},
		TestInstances:  []string{"b", "c"},
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.Instances())
}

func TestSeedsPerInstance(t *testing.T) {
	assert.Equal(t, 1, (&scenario.Scenario{Deterministic: true, Repetitions: 5}).SeedsPerInstance())
	assert.Equal(t, 5, (&scenario.Scenario{Repetitions: 5}).SeedsPerInstance())
	assert.Equal(t, 1, (&scenario.Scenario{}).SeedsPerInstance())
}

func TestFeatureVector(t *testing.T) {
	s := &scenario.Scenario{
		FeatureNames: []string{"f1", "f2"},
		Features:     map[string][]float64{"a": {1, 2}},
	}
	assert.Equal(t, []float64{1, 2}, s.FeatureVector("a"))
	assert.Equal(t, []float64{0, 0}, s.FeatureVector("unknown"))
}

func TestCrashCost(t *testing.T) {
	assert.Equal(t, 300.0, (&scenario.Scenario{Objective: scenario.ObjectiveRuntime, Cutoff: 300}).CrashCost())
	assert.Equal(t, 7.0, (&scenario.Scenario{Cutoff: 300, CostForCrash: 7}).CrashCost())
}

func TestFinalIncumbent(t *testing.T) {
	sp, err := space.New([]space.Hyperparameter{{Name: "x", Kind: space.KindInt, Lower: 0, Upper: 9}})
	require.NoError(t, err)
	_, _, ok := scenario.Trajectory(nil).FinalIncumbent()
	assert.False(t, ok)

	inc, err := sp.Configuration(map[string]string{"x": "4"})
	require.NoError(t, err)
	traj := scenario.Trajectory{
		{WallclockTime: 1, Cost: 10, Incumbent: sp.Default()},
		{WallclockTime: 5, Cost: 3, Incumbent: inc},
	}
	cfg, cost, ok := traj.FinalIncumbent()
	require.True(t, ok)
	assert.Equal(t, 3.0, cost)
	assert.True(t, cfg.Equal(inc))
}
