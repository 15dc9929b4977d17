// Package oracle fits a cost model on observed runs and answers cost queries
// for configurations that were never evaluated.
package oracle

import (
	"fmt"

	"github.com/signalnine/rundown/internal/forest"
	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
)

type Oracle struct {
	model forest.Predictor
	scen  *scenario.Scenario
}

// Point is the model input for cfg on inst: configuration encoding followed
// by the instance features.
func Point(cfg space.Configuration, inst string, scen *scenario.Scenario) []float64 {
	return append(cfg.Encode(), scen.FeatureVector(inst)...)
}

// Types annotates the dimensions of Point.
func Types(scen *scenario.Scenario) []int {
	return append(scen.Space.Types(), make([]int, len(scen.FeatureNames))...)
}

// Dataset builds training rows from every observed run of l. Estimated runs
// are left out so the model never trains on its own predictions.
func Dataset(l *ledger.Ledger, scen *scenario.Scenario) ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for _, r := range l.Records() {
		if r.Value.Origin != ledger.Observed {
			continue
		}
		X = append(X, Point(r.Config, r.Key.Instance, scen))
		y = append(y, r.Value.Cost)
	}
	return X, y
}

// Fit trains trainer on the observed runs of l. A nil trainer means the
// default forest.
func Fit(l *ledger.Ledger, scen *scenario.Scenario, trainer forest.Trainer) (*Oracle, error) {
	X, y := Dataset(l, scen)
	if len(X) == 0 {
		return nil, fmt.Errorf("fitting cost model: %w", forest.ErrInsufficientData)
	}
	if trainer == nil {
		trainer = forest.ForestTrainer{Options: forest.DefaultOptions()}
	}
	model, err := trainer.Train(X, y, Types(scen))
	if err != nil {
		return nil, fmt.Errorf("fitting cost model: %w", err)
	}
	return &Oracle{model: model, scen: scen}, nil
}

func (o *Oracle) Predict(cfg space.Configuration, inst string) float64 {
	return o.model.Predict(Point(cfg, inst, o.scen))
}

// MarginalCost averages predictions over instances. Without instances the
// configuration is scored with zero features.
func (o *Oracle) MarginalCost(cfg space.Configuration, instances []string) float64 {
	if len(instances) == 0 {
		return o.Predict(cfg, "")
	}
	var sum float64
	for _, inst := range instances {
		sum += o.Predict(cfg, inst)
	}
	return sum / float64(len(instances))
}
