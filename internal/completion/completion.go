// Package completion fills in the runs a scenario requires but no
// optimization run performed, either by running the target algorithm or by
// asking a cost model.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/signalnine/rundown/internal/forest"
	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/oracle"
	"github.com/signalnine/rundown/internal/runner"
	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
)

type Strategy int

const (
	// Validation runs the target algorithm for every missing run.
	Validation Strategy = iota
	// Surrogate predicts missing runs with a cost model fit on observed runs.
	Surrogate
)

func (s Strategy) String() string {
	switch s {
	case Validation:
		return "validation"
	case Surrogate:
		return "surrogate"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "validation":
		return Validation, nil
	case "epm", "surrogate":
		return Surrogate, nil
	default:
		return 0, fmt.Errorf("unknown missing-data strategy %q (want validation or epm)", s)
	}
}

// Executor evaluates one configuration on one instance. Enforcing the cutoff
// is the executor's job.
type Executor interface {
	Execute(ctx context.Context, cfg space.Configuration, instance string, seed int64, cutoff float64) (ledger.RunValue, error)
}

type Options struct {
	Strategy Strategy
	Executor Executor
	Trainer  forest.Trainer
	// Parallel bounds concurrent executor calls.
	Parallel int
	// Seed drives the choice of seeds for new runs.
	Seed   int64
	Logger *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Run is one evaluation the scenario requires.
type Run struct {
	Config   space.Configuration
	Instance string
	Seed     int64
}

// Missing lists the runs needed so that every configuration has
// SeedsPerInstance distinct seeds on every instance of scen. New seeds never
// collide with recorded ones.
func Missing(l *ledger.Ledger, configs []space.Configuration, scen *scenario.Scenario, seed int64) []Run {
	rng := rand.New(rand.NewSource(seed))
	need := scen.SeedsPerInstance()
	instances := scen.Instances()
	done := map[string]bool{}

	var missing []Run
	for _, cfg := range configs {
		if done[cfg.ID()] {
			continue
		}
		done[cfg.ID()] = true

		seeds := map[string]map[int64]bool{}
		for _, run := range l.RunsForConfig(cfg) {
			if seeds[run.Instance] == nil {
				seeds[run.Instance] = map[int64]bool{}
			}
			seeds[run.Instance][run.Seed] = true
		}
		for _, inst := range instances {
			have := seeds[inst]
			if have == nil {
				have = map[int64]bool{}
			}
			for n := len(have); n < need; n++ {
				s := nextSeed(rng, have, scen.Deterministic)
				have[s] = true
				missing = append(missing, Run{Config: cfg, Instance: inst, Seed: s})
			}
		}
	}
	return missing
}

func nextSeed(rng *rand.Rand, used map[int64]bool, deterministic bool) int64 {
	if deterministic && !used[0] {
		return 0
	}
	for {
		s := rng.Int63n(1 << 31)
		if !used[s] {
			return s
		}
	}
}

// Complete returns a copy of l extended with every run configs still miss
// under scen. l itself is not modified. A scenario without instances is a
// no-op.
func Complete(ctx context.Context, l *ledger.Ledger, configs []space.Configuration, scen *scenario.Scenario, opts *Options) (*ledger.Ledger, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.logger()
	out := l.Clone()
	if len(scen.Instances()) == 0 {
		logger.Warn("scenario has no instances, nothing to complete")
		return out, nil
	}

	missing := Missing(l, configs, scen, opts.Seed)
	logger.Info("completing missing runs", "strategy", opts.Strategy, "configs", len(configs), "missing", len(missing))
	if len(missing) == 0 {
		return out, nil
	}

	var err error
	switch opts.Strategy {
	case Validation:
		err = validate(ctx, out, missing, scen, opts)
	case Surrogate:
		err = estimate(l, out, missing, scen, opts)
	default:
		err = fmt.Errorf("unknown missing-data strategy %v", opts.Strategy)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validate(ctx context.Context, out *ledger.Ledger, missing []Run, scen *scenario.Scenario, opts *Options) error {
	if opts.Executor == nil {
		return fmt.Errorf("validation needs a target-algorithm executor")
	}
	logger := opts.logger()

	jobs := make([]runner.Job, len(missing))
	for i, r := range missing {
		jobs[i] = func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := opts.Executor.Execute(ctx, r.Config, r.Instance, r.Seed, scen.Cutoff)
			if err != nil {
				logger.Warn("target algorithm run failed",
					"config", r.Config.ID(), "instance", r.Instance, "seed", r.Seed, "error", err)
				v = ledger.RunValue{Cost: scen.CrashCost(), Runtime: scen.Cutoff, Status: ledger.StatusCrashed}
			}
			v.Origin = ledger.Observed
			return out.Add(r.Config, r.Instance, r.Seed, v)
		}
	}
	if errs := runner.RunPool(ctx, opts.Parallel, jobs); len(errs) > 0 {
		return fmt.Errorf("validating %d runs: %w", len(missing), errors.Join(errs...))
	}
	return nil
}

func estimate(l, out *ledger.Ledger, missing []Run, scen *scenario.Scenario, opts *Options) error {
	o, err := oracle.Fit(l, scen, opts.Trainer)
	if err != nil {
		return err
	}
	for _, r := range missing {
		cost := o.Predict(r.Config, r.Instance)
		v := ledger.RunValue{Cost: cost, Status: ledger.StatusSuccess, Origin: ledger.Estimated}
		if scen.Objective != scenario.ObjectiveQuality {
			v.Runtime = cost
		}
		if err := out.Add(r.Config, r.Instance, r.Seed, v); err != nil {
			return err
		}
	}
	opts.logger().Info("estimated missing runs", "count", len(missing))
	return nil
}
