// Package forest fits bagged regression trees over mixed continuous and
// categorical inputs.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

var ErrInsufficientData = errors.New("insufficient training data")

type Predictor interface {
	Predict(x []float64) float64
}

// Trainer fits a Predictor. types annotates each input dimension: 0 for
// continuous, k>0 for a categorical with k values.
type Trainer interface {
	Train(X [][]float64, y []float64, types []int) (Predictor, error)
}

type Options struct {
	Trees           int     `yaml:"trees" validate:"gte=0"`
	MinSamplesSplit int     `yaml:"min_samples_split" validate:"gte=0"`
	MaxDepth        int     `yaml:"max_depth" validate:"gte=0"`
	RatioFeatures   float64 `yaml:"ratio_features" validate:"gte=0,lte=1"`
	Bootstrap       bool    `yaml:"bootstrap"`
	Seed            int64   `yaml:"seed"`
}

func DefaultOptions() Options {
	return Options{
		Trees:           10,
		MinSamplesSplit: 3,
		MaxDepth:        20,
		RatioFeatures:   1.0,
		Bootstrap:       true,
		Seed:            12345,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Trees <= 0 {
		o.Trees = d.Trees
	}
	if o.MinSamplesSplit < 2 {
		o.MinSamplesSplit = 2
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.RatioFeatures <= 0 || o.RatioFeatures > 1 {
		o.RatioFeatures = d.RatioFeatures
	}
	return o
}

// ForestTrainer is the default Trainer.
type ForestTrainer struct {
	Options Options
}

func (t ForestTrainer) Train(X [][]float64, y []float64, types []int) (Predictor, error) {
	return Train(X, y, types, t.Options)
}

type Forest struct {
	trees []*node
	dim   int
}

type node struct {
	leaf        bool
	value       float64
	feature     int
	categorical bool
	split       float64
	left, right *node
}

// Train fits a forest. The result only depends on the inputs and opts.Seed.
func Train(X [][]float64, y []float64, types []int, opts Options) (*Forest, error) {
	if len(X) == 0 {
		return nil, ErrInsufficientData
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("got %d rows but %d targets", len(X), len(y))
	}
	for i, row := range X {
		if len(row) != len(types) {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), len(types))
		}
	}
	opts = opts.withDefaults()

	f := &Forest{trees: make([]*node, opts.Trees), dim: len(types)}
	for t := range f.trees {
		b := &builder{
			X:     X,
			y:     y,
			types: types,
			opts:  opts,
			rng:   rand.New(rand.NewSource(opts.Seed + int64(t))),
		}
		f.trees[t] = b.build(b.sample(), 0)
	}
	return f, nil
}

func (f *Forest) Predict(x []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.trees))
}

func (n *node) predict(x []float64) float64 {
	for !n.leaf {
		v := x[n.feature]
		goLeft := v <= n.split
		if n.categorical {
			goLeft = v == n.split
		}
		if goLeft {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

type builder struct {
	X     [][]float64
	y     []float64
	types []int
	opts  Options
	rng   *rand.Rand
}

func (b *builder) sample() []int {
	n := len(b.y)
	idx := make([]int, n)
	for i := range idx {
		if b.opts.Bootstrap {
			idx[i] = b.rng.Intn(n)
		} else {
			idx[i] = i
		}
	}
	return idx
}

func (b *builder) features() []int {
	dim := len(b.types)
	k := int(math.Ceil(b.opts.RatioFeatures * float64(dim)))
	if k >= dim {
		all := make([]int, dim)
		for i := range all {
			all[i] = i
		}
		return all
	}
	if k < 1 {
		k = 1
	}
	picked := b.rng.Perm(dim)[:k]
	sort.Ints(picked)
	return picked
}

type split struct {
	feature     int
	categorical bool
	value       float64
	sse         float64
}

func (b *builder) build(idx []int, depth int) *node {
	sum, sq := b.sums(idx)
	n := float64(len(idx))
	mean := sum / n
	parentSSE := sq - sum*sum/n
	if len(idx) < b.opts.MinSamplesSplit || depth >= b.opts.MaxDepth || parentSSE <= 1e-12 {
		return &node{leaf: true, value: mean}
	}

	best := split{feature: -1, sse: parentSSE - 1e-12}
	for _, f := range b.features() {
		var s split
		var ok bool
		if b.types[f] > 0 {
			s, ok = b.bestCategorical(idx, f)
		} else {
			s, ok = b.bestContinuous(idx, f)
		}
		if ok && s.sse < best.sse {
			best = s
		}
	}
	if best.feature < 0 {
		return &node{leaf: true, value: mean}
	}

	var left, right []int
	for _, i := range idx {
		v := b.X[i][best.feature]
		if (best.categorical && v == best.value) || (!best.categorical && v <= best.value) {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &node{
		feature:     best.feature,
		categorical: best.categorical,
		split:       best.value,
		left:        b.build(left, depth+1),
		right:       b.build(right, depth+1),
	}
}

func (b *builder) sums(idx []int) (sum, sq float64) {
	for _, i := range idx {
		sum += b.y[i]
		sq += b.y[i] * b.y[i]
	}
	return sum, sq
}

func (b *builder) bestContinuous(idx []int, f int) (split, bool) {
	sorted := append([]int(nil), idx...)
	sort.SliceStable(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })
	totalSum, totalSq := b.sums(sorted)
	n := len(sorted)

	best := split{feature: f, sse: math.Inf(1)}
	found := false
	var lSum, lSq float64
	for i := 0; i < n-1; i++ {
		y := b.y[sorted[i]]
		lSum += y
		lSq += y * y
		lo, hi := b.X[sorted[i]][f], b.X[sorted[i+1]][f]
		if lo == hi {
			continue
		}
		ln, rn := float64(i+1), float64(n-i-1)
		rSum, rSq := totalSum-lSum, totalSq-lSq
		sse := (lSq - lSum*lSum/ln) + (rSq - rSum*rSum/rn)
		if sse < best.sse {
			best.sse = sse
			best.value = (lo + hi) / 2
			found = true
		}
	}
	return best, found
}

func (b *builder) bestCategorical(idx []int, f int) (split, bool) {
	type acc struct{ n, sum, sq float64 }
	groups := map[float64]*acc{}
	var totalN, totalSum, totalSq float64
	for _, i := range idx {
		v, y := b.X[i][f], b.y[i]
		a, ok := groups[v]
		if !ok {
			a = &acc{}
			groups[v] = a
		}
		a.n++
		a.sum += y
		a.sq += y * y
		totalN++
		totalSum += y
		totalSq += y * y
	}
	if len(groups) < 2 {
		return split{}, false
	}
	cats := make([]float64, 0, len(groups))
	for v := range groups {
		cats = append(cats, v)
	}
	sort.Float64s(cats)

	best := split{feature: f, categorical: true, sse: math.Inf(1)}
	for _, c := range cats {
		a := groups[c]
		rn, rSum, rSq := totalN-a.n, totalSum-a.sum, totalSq-a.sq
		sse := (a.sq - a.sum*a.sum/a.n) + (rSq - rSum*rSum/rn)
		if sse < best.sse {
			best.sse = sse
			best.value = c
		}
	}
	return best, true
}
