package importance

import (
	"fmt"
	"math"

	"github.com/signalnine/rundown/internal/forest"
	"github.com/signalnine/rundown/internal/ledger"
)

const defaultFolds = 5

// forwardSelection adds, one at a time, the parameter whose inclusion gives
// the lowest cross-validated RMSE of a model over per-configuration cost.
// Ties go to the parameter declared first.
func forwardSelection(l *ledger.Ledger, opts *Options) (*Result, error) {
	sp := l.Space()
	var X [][]float64
	var y []float64
	for _, cfg := range l.Configs() {
		c := l.Cost(cfg)
		if math.IsNaN(c) {
			continue
		}
		X = append(X, cfg.Encode())
		y = append(y, c)
	}
	if len(X) < 2 {
		return nil, fmt.Errorf("forward selection needs at least two evaluated configurations, got %d: %w",
			len(X), forest.ErrInsufficientData)
	}

	folds := opts.Folds
	if folds < 2 {
		folds = defaultFolds
	}
	folds = min(folds, len(X))

	cv := &crossValidator{X: X, y: y, types: sp.Types(), folds: folds, trainer: opts.trainer()}
	prev, err := cv.rmse(nil)
	if err != nil {
		return nil, err
	}

	res := &Result{Method: MethodForwardSelection, Scores: map[string]float64{}, Baseline: prev}
	names := sp.Names()
	used := make([]bool, len(names))
	var selected []int
	for range names {
		best, bestErr := -1, math.Inf(1)
		for i := range names {
			if used[i] {
				continue
			}
			e, err := cv.rmse(append(selected[:len(selected):len(selected)], i))
			if err != nil {
				return nil, err
			}
			if e < bestErr {
				best, bestErr = i, e
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		selected = append(selected, best)

		score := prev - bestErr
		res.Scores[names[best]] = score
		res.Order = append(res.Order, names[best])
		res.Path = append(res.Path, Step{Parameter: names[best], Cost: bestErr, Score: score})
		opts.logger().Debug("forward selection step", "parameter", names[best], "rmse", bestErr)
		prev = bestErr
	}
	return res, nil
}

type crossValidator struct {
	X       [][]float64
	y       []float64
	types   []int
	folds   int
	trainer forest.Trainer
}

// rmse trains on the given columns and returns the k-fold RMSE. Row i is
// held out in fold i mod k.
func (cv *crossValidator) rmse(cols []int) (float64, error) {
	types := make([]int, len(cols))
	for j, c := range cols {
		types[j] = cv.types[c]
	}
	project := func(row []float64) []float64 {
		out := make([]float64, len(cols))
		for j, c := range cols {
			out[j] = row[c]
		}
		return out
	}

	var sse float64
	for k := 0; k < cv.folds; k++ {
		var trX [][]float64
		var trY []float64
		for i, row := range cv.X {
			if i%cv.folds != k {
				trX = append(trX, project(row))
				trY = append(trY, cv.y[i])
			}
		}
		model, err := cv.trainer.Train(trX, trY, types)
		if err != nil {
			return 0, fmt.Errorf("training fold %d: %w", k, err)
		}
		for i := k; i < len(cv.X); i += cv.folds {
			d := model.Predict(project(cv.X[i])) - cv.y[i]
			sse += d * d
		}
	}
	return math.Sqrt(sse / float64(len(cv.X))), nil
}
