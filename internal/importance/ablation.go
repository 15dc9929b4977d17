package importance

import (
	"fmt"
	"slices"

	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/oracle"
	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
)

// ablation walks from the default to incumbent, at every step flipping the
// parameter whose change gives the lowest predicted cost. Children activated
// by a flip take the incumbent's value, so each step removes at least one
// difference. Such children are listed as carried by the step and score 0.
func ablation(l *ledger.Ledger, scen *scenario.Scenario, incumbent space.Configuration, opts *Options) (*Result, error) {
	o, err := oracle.Fit(l, scen, opts.trainer())
	if err != nil {
		return nil, fmt.Errorf("ablation: %w", err)
	}
	instances := scen.TrainInstances
	if len(instances) == 0 {
		instances = scen.Instances()
	}
	cost := func(c space.Configuration) float64 { return o.MarginalCost(c, instances) }

	current := l.Space().Default()
	res := &Result{Method: MethodAblation, Scores: map[string]float64{}, Baseline: cost(current)}
	if current.Equal(incumbent) {
		return res, nil
	}

	fill := incumbent.Value
	prev := res.Baseline
	for diff := current.Diff(incumbent); len(diff) > 0; diff = current.Diff(incumbent) {
		var (
			best     space.Configuration
			bestName string
			bestCost float64
		)
		for _, name := range diff {
			if !current.Active(name) || !incumbent.Active(name) {
				continue
			}
			v, _ := incumbent.Value(name)
			cand, err := current.With(name, v, fill)
			if err != nil {
				return nil, fmt.Errorf("ablation: flipping %s: %w", name, err)
			}
			c := cost(cand)
			if bestName == "" || c < bestCost {
				best, bestName, bestCost = cand, name, c
			}
		}
		if bestName == "" {
			return nil, fmt.Errorf("ablation: no applicable parameter among %v", diff)
		}
		v, _ := incumbent.Value(bestName)
		step := Step{Parameter: bestName, Value: v, Cost: bestCost, Score: prev - bestCost}
		remaining := best.Diff(incumbent)
		for _, name := range diff {
			if name != bestName && !slices.Contains(remaining, name) {
				step.Carried = append(step.Carried, name)
			}
		}
		res.Path = append(res.Path, step)
		res.Order = append(res.Order, bestName)
		opts.logger().Debug("ablation step", "parameter", bestName, "cost", bestCost)
		current, prev = best, bestCost
	}

	total := res.Baseline - prev
	for i := range res.Path {
		if total != 0 {
			res.Path[i].Score /= total
		} else {
			res.Path[i].Score = 0
		}
		res.Scores[res.Path[i].Parameter] = res.Path[i].Score
		for _, name := range res.Path[i].Carried {
			res.Scores[name] = 0
		}
	}
	return res, nil
}
