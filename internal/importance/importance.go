// Package importance estimates how much each hyperparameter contributes to
// the cost of a configuration.
package importance

import (
	"fmt"
	"log/slog"

	"github.com/signalnine/rundown/internal/forest"
	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
)

type Method string

const (
	MethodForwardSelection Method = "forward-selection"
	MethodAblation         Method = "ablation"
)

// Methods lists every supported method in the order they are reported.
var Methods = []Method{MethodForwardSelection, MethodAblation}

func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown importance method %q", s)
}

// Step is one point on a selection or ablation path. Cost is the
// cross-validated RMSE after the step for forward selection and the
// predicted configuration cost for ablation.
type Step struct {
	Parameter string  `json:"parameter"`
	Value     string  `json:"value,omitempty"`
	Cost      float64 `json:"cost"`
	Score     float64 `json:"score"`
	// Carried lists parameters that reached the incumbent's value as a side
	// effect of this step, such as children activated by a flip.
	Carried []string `json:"carried,omitempty"`
}

type Result struct {
	Method Method             `json:"method"`
	Scores map[string]float64 `json:"scores"`
	// Order lists parameters in the order they were selected or flipped.
	Order []string `json:"order"`
	Path  []Step   `json:"path"`
	// Baseline is the cost before the first step.
	Baseline float64 `json:"baseline"`
}

type Options struct {
	Trainer forest.Trainer
	// Folds for cross-validation in forward selection.
	Folds  int
	Logger *slog.Logger
}

func (o *Options) trainer() forest.Trainer {
	if o.Trainer != nil {
		return o.Trainer
	}
	return forest.ForestTrainer{Options: forest.DefaultOptions()}
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Evaluate runs method over the runs in l. Only ablation uses incumbent.
func Evaluate(l *ledger.Ledger, scen *scenario.Scenario, incumbent space.Configuration, method Method, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	opts.logger().Info("evaluating parameter importance", "method", method, "configs", len(l.Configs()))

	switch method {
	case MethodForwardSelection:
		return forwardSelection(l, opts)
	case MethodAblation:
		if !incumbent.Space().Compatible(l.Space()) {
			return nil, fmt.Errorf("ablation: incumbent: %w", ledger.ErrSchemaMismatch)
		}
		return ablation(l, scen, incumbent, opts)
	default:
		return nil, fmt.Errorf("unknown importance method %q", method)
	}
}
