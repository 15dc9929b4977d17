// Package ledger stores run observations keyed by (configuration, instance,
// seed) and merges the ledgers of independent optimization runs.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalnine/rundown/internal/space"
)

var (
	ErrSchemaMismatch      = errors.New("hyperparameter spaces do not match")
	ErrAggregationMismatch = errors.New("ledgers aggregate observations differently")
)

// Ledger keeps every observation of a key and resolves them through its
// aggregation function on read. Entries are never removed.
type Ledger struct {
	mu      sync.RWMutex
	space   *space.Space
	agg     Aggregation
	configs map[string]space.Configuration
	runs    map[RunKey][]RunValue
}

type Option func(*Ledger)

func WithAggregate(a Aggregation) Option {
	return func(l *Ledger) {
		if a != "" {
			l.agg = a
		}
	}
}

func New(s *space.Space, opts ...Option) *Ledger {
	l := &Ledger{
		space:   s,
		agg:     AggregateMean,
		configs: make(map[string]space.Configuration),
		runs:    make(map[RunKey][]RunValue),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record is one resolved ledger entry.
type Record struct {
	Config space.Configuration
	Key    RunKey
	Value  RunValue
}

func (l *Ledger) Space() *space.Space { return l.space }

func (l *Ledger) Aggregate() Aggregation { return l.agg }

// Add inserts v under (cfg, instance, seed), aggregating with whatever is
// already recorded there. Safe for concurrent use.
func (l *Ledger) Add(cfg space.Configuration, instance string, seed int64, v RunValue) error {
	if !l.space.Compatible(cfg.Space()) {
		return fmt.Errorf("%w: configuration %s", ErrSchemaMismatch, cfg)
	}
	if v.Origin == "" {
		v.Origin = Observed
	}
	if v.Status == "" {
		v.Status = StatusSuccess
	}
	key := RunKey{ConfigID: cfg.ID(), Instance: instance, Seed: seed}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.insert(cfg, key, v)
	return nil
}

func (l *Ledger) insert(cfg space.Configuration, key RunKey, values ...RunValue) {
	if _, ok := l.configs[key.ConfigID]; !ok {
		l.configs[key.ConfigID] = cfg
	}
	l.runs[key] = append(l.runs[key], values...)
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.runs)
}

// Get returns the resolved value of key.
func (l *Ledger) Get(key RunKey) (RunValue, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	vals, ok := l.runs[key]
	if !ok {
		return RunValue{}, false
	}
	return l.resolve(vals), true
}

// Observations returns every raw value recorded under key.
func (l *Ledger) Observations(key RunKey) []RunValue {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]RunValue(nil), l.runs[key]...)
}

// resolve collapses the observations of one key. Observed values shadow
// estimates; statuses resolve to the worst one seen.
func (l *Ledger) resolve(vals []RunValue) RunValue {
	use := vals
	origin := Estimated
	for _, v := range vals {
		if v.Origin == Observed {
			origin = Observed
			break
		}
	}
	if origin == Observed {
		use = make([]RunValue, 0, len(vals))
		for _, v := range vals {
			if v.Origin == Observed {
				use = append(use, v)
			}
		}
	}

	costs := make([]float64, len(use))
	runtimes := make([]float64, len(use))
	status := StatusSuccess
	for i, v := range use {
		costs[i] = v.Cost
		runtimes[i] = v.Runtime
		status = Worse(status, v.Status)
	}
	return RunValue{
		Cost:    l.agg.Apply(costs),
		Runtime: l.agg.Apply(runtimes),
		Status:  status,
		Origin:  origin,
	}
}

// Keys returns all keys ordered by configuration, instance and seed.
func (l *Ledger) Keys() []RunKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedKeys()
}

func (l *Ledger) sortedKeys() []RunKey {
	keys := make([]RunKey, 0, len(l.runs))
	for k := range l.runs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.ConfigID != b.ConfigID {
			return a.ConfigID < b.ConfigID
		}
		if a.Instance != b.Instance {
			return a.Instance < b.Instance
		}
		return a.Seed < b.Seed
	})
	return keys
}

// Records returns every resolved entry in key order.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := l.sortedKeys()
	out := make([]Record, len(keys))
	for i, k := range keys {
		out[i] = Record{Config: l.configs[k.ConfigID], Key: k, Value: l.resolve(l.runs[k])}
	}
	return out
}

func (l *Ledger) Config(id string) (space.Configuration, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg, ok := l.configs[id]
	return cfg, ok
}

// Configs returns every configuration with at least one run, ordered by ID.
func (l *Ledger) Configs() []space.Configuration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]space.Configuration, 0, len(l.configs))
	for _, c := range l.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// RunsForConfig lists the (instance, seed) slots recorded for cfg.
func (l *Ledger) RunsForConfig(cfg space.Configuration) []InstanceSeed {
	var out []InstanceSeed
	for _, k := range l.Keys() {
		if k.ConfigID == cfg.ID() {
			out = append(out, InstanceSeed{Instance: k.Instance, Seed: k.Seed})
		}
	}
	return out
}

// Cost is the mean resolved cost of cfg over all its runs, NaN if it has none.
func (l *Ledger) Cost(cfg space.Configuration) float64 {
	var costs []float64
	for _, r := range l.Records() {
		if r.Key.ConfigID == cfg.ID() {
			costs = append(costs, r.Value.Cost)
		}
	}
	return Mean(costs)
}

// LossPerInstance averages the resolved cost of cfg across seeds, per instance.
func (l *Ledger) LossPerInstance(cfg space.Configuration) map[string]float64 {
	byInst := map[string][]float64{}
	for _, r := range l.Records() {
		if r.Key.ConfigID == cfg.ID() {
			byInst[r.Key.Instance] = append(byInst[r.Key.Instance], r.Value.Cost)
		}
	}
	out := make(map[string]float64, len(byInst))
	for inst, costs := range byInst {
		out[inst] = Mean(costs)
	}
	return out
}

// Clone returns an independent copy sharing no mutable state with l.
func (l *Ledger) Clone() *Ledger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := New(l.space, WithAggregate(l.agg))
	for k, vals := range l.runs {
		out.insert(l.configs[k.ConfigID], k, vals...)
	}
	return out
}

// Merge combines ledgers into a new one. Observations of shared keys are
// pooled, so the result does not depend on argument order. All ledgers must
// share the space and the aggregation. Sources are left untouched.
func Merge(ledgers ...*Ledger) (*Ledger, error) {
	if len(ledgers) == 0 {
		return nil, fmt.Errorf("no ledgers to merge")
	}
	base := ledgers[0]
	for i, src := range ledgers[1:] {
		if !base.space.Compatible(src.space) {
			return nil, fmt.Errorf("%w: ledger %d", ErrSchemaMismatch, i+1)
		}
		if src.agg != base.agg {
			return nil, fmt.Errorf("%w: ledger %d uses %s, ledger 0 uses %s", ErrAggregationMismatch, i+1, src.agg, base.agg)
		}
	}

	out := New(base.space, WithAggregate(base.agg))
	for _, src := range ledgers {
		src.mu.RLock()
		for k, vals := range src.runs {
			out.insert(src.configs[k.ConfigID], k, vals...)
		}
		src.mu.RUnlock()
	}
	return out, nil
}
