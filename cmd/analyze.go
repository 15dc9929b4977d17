package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/rundown/internal/analysis"
	"github.com/signalnine/rundown/internal/completion"
	"github.com/signalnine/rundown/internal/config"
	"github.com/signalnine/rundown/internal/docker"
	"github.com/signalnine/rundown/internal/forest"
	"github.com/signalnine/rundown/internal/importance"
	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/reader"
	"github.com/signalnine/rundown/internal/report"
	"github.com/signalnine/rundown/internal/scenario"
)

var (
	flagMethod   string
	flagOutput   string
	flagParallel int
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [run-dir...]",
		Short: "Merge runs, complete missing data and compare default with incumbent",
		RunE:  runAnalyze,
	}
	cmd.Flags().StringVar(&flagMethod, "method", "", "override missing-data method (validation, epm)")
	cmd.Flags().StringVar(&flagOutput, "output", "", "override output directory")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "override max concurrent target-algorithm runs")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagMethod != "" {
		cfg.MissingData.Method = flagMethod
	}
	if flagOutput != "" {
		cfg.Output.Dir = flagOutput
	}
	if flagParallel > 0 {
		cfg.MissingData.Parallel = flagParallel
	}

	var runDirs []string
	if len(args) > 0 {
		runDirs, err = config.ExpandRuns(args)
	} else {
		runDirs, err = cfg.RunDirs()
	}
	if err != nil {
		return err
	}

	scen, err := reader.LoadScenario(cfg.Scenario)
	if err != nil {
		return err
	}
	opts, err := analysisOptions(cfg, scen)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := analysis.Analyze(ctx, scen, runDirs, opts)
	if err != nil {
		return err
	}
	dir, err := a.Save(ctx, cfg.Output.Dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analysis directory: %s\n\n", dir)
	return report.Generate(dir, "table", out)
}

// analysisOptions turns the config into analysis options. The executor is
// only built when missing runs are validated.
func analysisOptions(cfg *config.Config, scen *scenario.Scenario) (*analysis.Options, error) {
	strategy, err := completion.ParseStrategy(cfg.MissingData.Method)
	if err != nil {
		return nil, err
	}
	agg, err := ledger.AggregateByName(cfg.MissingData.Aggregation)
	if err != nil {
		return nil, err
	}
	methods := make([]importance.Method, 0, len(cfg.Importance.Methods))
	for _, name := range cfg.Importance.Methods {
		m, err := importance.ParseMethod(name)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}

	opts := &analysis.Options{
		Strategy:  strategy,
		Trainer:   forest.ForestTrainer{Options: cfg.Forest},
		Parallel:  cfg.MissingData.Parallel,
		Seed:      cfg.MissingData.Seed,
		Aggregate: agg,
		Methods:   methods,
		Folds:     cfg.Importance.Folds,
	}
	if strategy == completion.Validation {
		if cfg.Executor.Image == "" || cfg.Executor.Command == "" {
			return nil, fmt.Errorf("validation needs executor.image and executor.command")
		}
		opts.Executor = newExecutor(cfg.Executor, scen.Objective)
	}
	return opts, nil
}

func newExecutor(e config.Executor, objective scenario.Objective) *docker.Executor {
	return &docker.Executor{
		Image:       e.Image,
		Command:     e.Command,
		InstanceDir: e.InstanceDir,
		CPULimit:    e.CPULimit,
		MemoryLimit: e.MemoryLimitMB * 1024 * 1024,
		Grace:       e.Grace(),
		Objective:   objective,
	}
}
