package analysis_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/rundown/internal/analysis"
	"github.com/signalnine/rundown/internal/completion"
	"github.com/signalnine/rundown/internal/importance"
	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/reader"
	"github.com/signalnine/rundown/internal/result"
	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
	"github.com/signalnine/rundown/internal/store"
)

const (
	scenarioPath = "../../testdata/scenario/scenario.yaml"
	run1         = "../../testdata/scenario/run_1"
	run2         = "../../testdata/scenario/run_2"
)

// solverExecutor finishes in 1s with the restart solver and times out
// otherwise.
type solverExecutor struct {
	mu    sync.Mutex
	calls []string
}

func (e *solverExecutor) Execute(_ context.Context, cfg space.Configuration, instance string, _ int64, cutoff float64) (ledger.RunValue, error) {
	e.mu.Lock()
	e.calls = append(e.calls, cfg.ID()+"@"+instance)
	e.mu.Unlock()
	if v, _ := cfg.Value("solver"); v == "restart" {
		return ledger.RunValue{Cost: 1, Runtime: 1, Status: ledger.StatusSuccess}, nil
	}
	return ledger.RunValue{Cost: 12, Runtime: cutoff, Status: ledger.StatusTimeout}, nil
}

func loadScenario(t *testing.T) *scenario.Scenario {
	t.Helper()
	scen, err := reader.LoadScenario(scenarioPath)
	require.NoError(t, err)
	return scen
}

func analyze(t *testing.T, exec completion.Executor, methods ...importance.Method) *analysis.Analysis {
	t.Helper()
	a, err := analysis.Analyze(context.Background(), loadScenario(t), []string{run1, run2}, &analysis.Options{
		Strategy: completion.Validation,
		Executor: exec,
		Parallel: 2,
		Seed:     1,
		Methods:  methods,
	})
	require.NoError(t, err)
	return a
}

func TestAnalyzePicksBestRun(t *testing.T) {
	a := analyze(t, &solverExecutor{})

	assert.Equal(t, "run_1", a.Summary.BestRun)
	solver, _ := a.Incumbent.Value("solver")
	assert.Equal(t, "restart", solver)
	assert.Equal(t, a.Scenario.Space.Default().ID(), a.Summary.Default)
	require.Len(t, a.Summary.Runs, 2)
	assert.Equal(t, result.Float(2.0), a.Summary.Runs[0].FinalCost)
	assert.Equal(t, result.Float(3.5), a.Summary.Runs[1].FinalCost)
}

func TestAnalyzeCompletesAndComputesPAR10(t *testing.T) {
	exec := &solverExecutor{}
	a := analyze(t, exec)

	// default on t1, incumbent on i2 and t1, second run's incumbent on t1
	assert.Len(t, exec.calls, 4)

	sum := a.Summary
	assert.InDelta(t, 53.0, float64(sum.DefaultPAR10.Train), 1e-9)
	assert.InDelta(t, 100.0, float64(sum.DefaultPAR10.Test), 1e-9)
	assert.InDelta(t, 206.0/3, float64(sum.DefaultPAR10.Combined), 1e-9)
	assert.InDelta(t, 1.5, float64(sum.IncumbentPAR10.Train), 1e-9)
	assert.InDelta(t, 1.0, float64(sum.IncumbentPAR10.Test), 1e-9)
	assert.Equal(t, result.Timeouts{Default: 2, Incumbent: 0}, sum.Timeouts)

	// the default's two observations on i1 are pooled across runs
	assert.Equal(t, result.Float(6), sum.Losses["i1"].Default)
	assert.Equal(t, result.Float(2), sum.Losses["i1"].Incumbent)
	assert.Empty(t, sum.Warnings)

	assert.Equal(t, "run_1", sum.Overview.BestRun)
	assert.Equal(t, 3, sum.Overview.Parameters)
	changed := map[string]bool{}
	for _, row := range sum.ConfigDiff {
		changed[row.Parameter] = row.Changed
	}
	assert.True(t, changed["solver"])
	assert.True(t, changed["alpha"])
}

func TestAnalyzeImportance(t *testing.T) {
	a := analyze(t, &solverExecutor{}, importance.MethodForwardSelection, importance.MethodAblation)

	require.Len(t, a.Importance, 2, "warnings: %v", a.Summary.Warnings)
	assert.Equal(t, []string{"forward-selection", "ablation"}, a.Summary.Importance)
	abl := a.Importance[1]
	assert.Equal(t, importance.MethodAblation, abl.Method)
	assert.ElementsMatch(t, []string{"solver", "alpha"}, abl.Order)
}

func TestAnalyzeSurrogate(t *testing.T) {
	a, err := analysis.Analyze(context.Background(), loadScenario(t), []string{run1, run2}, &analysis.Options{
		Strategy: completion.Surrogate,
	})
	require.NoError(t, err)

	assert.Equal(t, "surrogate", a.Summary.MissingData)
	for _, inst := range []string{"i1", "i2", "t1"} {
		loss := a.Summary.Losses[inst]
		assert.False(t, math.IsNaN(float64(loss.Default)), "default on %s", inst)
		assert.False(t, math.IsNaN(float64(loss.Incumbent)), "incumbent on %s", inst)
	}
}

func TestAnalyzeWithoutTrajectory(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(filepath.Join(run2, "runhistory.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runhistory.json"), data, 0o644))

	a, err := analysis.Analyze(context.Background(), loadScenario(t), []string{dir}, &analysis.Options{
		Strategy: completion.Validation,
		Executor: &solverExecutor{},
	})
	require.NoError(t, err)

	alpha, _ := a.Incumbent.Value("alpha")
	assert.Equal(t, "0.9", alpha)
	assert.Empty(t, a.Summary.BestRun)
	assert.NotEmpty(t, a.Summary.Warnings)
}

func TestAnalyzeErrors(t *testing.T) {
	ctx := context.Background()
	scen := loadScenario(t)

	_, err := analysis.Analyze(ctx, scen, nil, nil)
	assert.Error(t, err)

	_, err = analysis.Analyze(ctx, scen, []string{t.TempDir()}, nil)
	assert.Error(t, err)

	// validation without an executor
	_, err = analysis.Analyze(ctx, scen, []string{run1}, &analysis.Options{Strategy: completion.Validation})
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	a := analyze(t, &solverExecutor{}, importance.MethodAblation)
	out := t.TempDir()

	dir, err := a.Save(context.Background(), out)
	require.NoError(t, err)

	sum, err := result.ReadSummary(filepath.Join(dir, result.SummaryFile))
	require.NoError(t, err)
	assert.Equal(t, a.Summary.ID, sum.ID)
	assert.Equal(t, a.Summary.Incumbent, sum.Incumbent)

	_, err = result.ReadImportance(filepath.Join(dir, result.ImportanceFile(importance.MethodAblation)))
	require.NoError(t, err)

	latest, err := filepath.EvalSymlinks(filepath.Join(out, "latest"))
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolved, latest)

	st, err := store.Open(filepath.Join(dir, result.LedgerFile))
	require.NoError(t, err)
	defer st.Close()
	l, err := st.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, a.Ledger.Len(), l.Len())
}
