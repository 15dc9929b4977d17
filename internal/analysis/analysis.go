// Package analysis ties the readers, the completer and the engines together:
// it turns a scenario and a set of optimization run folders into a stored
// summary plus importance results.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/signalnine/rundown/internal/completion"
	"github.com/signalnine/rundown/internal/forest"
	"github.com/signalnine/rundown/internal/importance"
	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/reader"
	"github.com/signalnine/rundown/internal/result"
	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
	"github.com/signalnine/rundown/internal/stats"
	"github.com/signalnine/rundown/internal/store"
)

type Options struct {
	Strategy completion.Strategy
	Executor completion.Executor
	Trainer  forest.Trainer
	Parallel int
	Seed     int64
	// Aggregate resolves repeated observations of one run.
	Aggregate ledger.Aggregation
	Methods   []importance.Method
	Folds     int
	Logger    *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Analysis is everything Analyze computed. Ledger holds the merged runs plus
// the completed ones.
type Analysis struct {
	Scenario   *scenario.Scenario
	Runs       []*reader.Run
	BestRun    *reader.Run
	Ledger     *ledger.Ledger
	Default    space.Configuration
	Incumbent  space.Configuration
	Summary    *result.Summary
	Importance []*importance.Result
}

// Analyze loads the given run folders and compares the default configuration
// of scen with the best run's incumbent.
func Analyze(ctx context.Context, scen *scenario.Scenario, runDirs []string, opts *Options) (*Analysis, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.logger()

	if len(runDirs) == 0 {
		return nil, fmt.Errorf("no run folders given")
	}

	a := &Analysis{Scenario: scen}
	sum := result.NewSummary(scen.Name)
	sum.MissingData = opts.Strategy.String()
	a.Summary = sum

	ledgers := make([]*ledger.Ledger, 0, len(runDirs))
	for _, dir := range runDirs {
		run, err := reader.ReadRun(dir, scen.Space, ledger.WithAggregate(opts.Aggregate))
		if err != nil {
			return nil, fmt.Errorf("reading run %s: %w", dir, err)
		}
		logger.Info("loaded run", "folder", dir, "runs", run.Ledger.Len(), "trajectory", len(run.Trajectory))
		a.Runs = append(a.Runs, run)
		ledgers = append(ledgers, run.Ledger)

		rs := result.RunSummary{Folder: filepath.Base(dir), Runs: run.Ledger.Len(), FinalCost: result.Float(math.NaN())}
		if inc, cost, ok := run.Incumbent(); ok {
			rs.Incumbent = inc.ID()
			rs.FinalCost = result.Float(cost)
		}
		sum.Runs = append(sum.Runs, rs)
	}

	merged, err := ledger.Merge(ledgers...)
	if err != nil {
		return nil, fmt.Errorf("merging runs: %w", err)
	}

	a.Default = scen.Space.Default()
	a.BestRun, a.Incumbent = bestRun(a.Runs)
	if a.BestRun == nil {
		a.Incumbent = cheapest(merged, a.Default)
		a.warnf(logger, "no run has a trajectory, using the cheapest recorded configuration as incumbent")
	} else {
		sum.BestRun = filepath.Base(a.BestRun.Folder)
	}
	sum.Default = a.Default.ID()
	sum.Incumbent = a.Incumbent.ID()

	configs := []space.Configuration{a.Default, a.Incumbent}
	for _, run := range a.Runs {
		if inc, _, ok := run.Incumbent(); ok {
			configs = append(configs, inc)
		}
	}
	completed, err := completion.Complete(ctx, merged, configs, scen, &completion.Options{
		Strategy: opts.Strategy,
		Executor: opts.Executor,
		Trainer:  opts.Trainer,
		Parallel: opts.Parallel,
		Seed:     opts.Seed,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("completing missing data: %w", err)
	}
	a.Ledger = completed
	sum.LedgerRuns = completed.Len()
	sum.Configs = len(completed.Configs())

	a.compare(logger)
	a.evaluateImportance(logger, opts)
	return a, nil
}

// bestRun picks the run whose final incumbent has the lowest estimated
// cost. Ties go to the earlier run.
func bestRun(runs []*reader.Run) (*reader.Run, space.Configuration) {
	var (
		best     *reader.Run
		bestInc  space.Configuration
		bestCost float64
	)
	for _, run := range runs {
		inc, cost, ok := run.Incumbent()
		if !ok {
			continue
		}
		if best == nil || cost < bestCost {
			best, bestInc, bestCost = run, inc, cost
		}
	}
	return best, bestInc
}

func cheapest(l *ledger.Ledger, fallback space.Configuration) space.Configuration {
	best := fallback
	bestCost := math.Inf(1)
	for _, cfg := range l.Configs() {
		if c := l.Cost(cfg); c < bestCost {
			best, bestCost = cfg, c
		}
	}
	return best
}

func (a *Analysis) warnf(logger *slog.Logger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Warn(msg)
	a.Summary.Warnings = append(a.Summary.Warnings, msg)
}

func (a *Analysis) compare(logger *slog.Logger) {
	scen, sum := a.Scenario, a.Summary

	defLoss := a.Ledger.LossPerInstance(a.Default)
	incLoss := a.Ledger.LossPerInstance(a.Incumbent)
	if len(defLoss) != len(incLoss) {
		a.warnf(logger, "default evaluated on %d instances, incumbent on %d", len(defLoss), len(incLoss))
	}

	cutoff := scen.Cutoff
	if scen.Objective == scenario.ObjectiveQuality || cutoff <= 0 {
		cutoff = math.Inf(1)
	}
	sum.DefaultPAR10 = result.FromPAR10(stats.CalculatePAR10(defLoss, cutoff, scen.TrainInstances, scen.TestInstances))
	sum.IncumbentPAR10 = result.FromPAR10(stats.CalculatePAR10(incLoss, cutoff, scen.TrainInstances, scen.TestInstances))
	sum.Timeouts = result.Timeouts{
		Default:   stats.CountTimeouts(defLoss, cutoff, nil),
		Incumbent: stats.CountTimeouts(incLoss, cutoff, nil),
	}

	for inst, c := range defLoss {
		sum.Losses[inst] = result.InstanceLoss{Default: result.Float(c), Incumbent: result.Float(math.NaN())}
	}
	for inst, c := range incLoss {
		il, ok := sum.Losses[inst]
		if !ok {
			il.Default = result.Float(math.NaN())
		}
		il.Incumbent = result.Float(c)
		sum.Losses[inst] = il
	}

	sum.Overview = stats.NewOverview(sum.BestRun, scen)
	sum.ConfigDiff = stats.ConfigDiff(a.Default, a.Incumbent)
}

// evaluateImportance runs every requested method. A failing method is
// reported as a warning and does not fail the analysis.
func (a *Analysis) evaluateImportance(logger *slog.Logger, opts *Options) {
	for _, m := range opts.Methods {
		res, err := importance.Evaluate(a.Ledger, a.Scenario, a.Incumbent, m, &importance.Options{
			Trainer: opts.Trainer,
			Folds:   opts.Folds,
			Logger:  logger,
		})
		if err != nil {
			a.warnf(logger, "importance %s failed: %v", m, err)
			continue
		}
		a.Importance = append(a.Importance, res)
		a.Summary.Importance = append(a.Summary.Importance, string(m))
	}
}

// Save writes the summary, the importance results and the completed ledger
// into a fresh directory under outDir and returns that directory.
func (a *Analysis) Save(ctx context.Context, outDir string) (string, error) {
	dir, err := result.CreateRunDir(outDir)
	if err != nil {
		return "", err
	}
	if err := result.WriteSummary(dir, a.Summary); err != nil {
		return "", err
	}
	for _, r := range a.Importance {
		if err := result.WriteImportance(dir, r); err != nil {
			return "", err
		}
	}

	st, err := store.Open(filepath.Join(dir, result.LedgerFile))
	if err != nil {
		return "", err
	}
	defer st.Close()
	if err := st.Save(ctx, a.Ledger); err != nil {
		return "", fmt.Errorf("saving ledger: %w", err)
	}
	return dir, nil
}
