package cmd

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/rundown/internal/completion"
	"github.com/signalnine/rundown/internal/config"
	"github.com/signalnine/rundown/internal/docker"
	"github.com/signalnine/rundown/internal/importance"
	"github.com/signalnine/rundown/internal/reader"
	"github.com/signalnine/rundown/internal/scenario"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	if err := root.Execute(); err != nil {
		t.Fatalf("rundown %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAnalysisOptionsValidation(t *testing.T) {
	cfg, err := config.Load("../testdata/full.yaml")
	if err != nil {
		t.Fatal(err)
	}
	scen, err := reader.LoadScenario(cfg.Scenario)
	if err != nil {
		t.Fatal(err)
	}
	opts, err := analysisOptions(cfg, scen)
	if err != nil {
		t.Fatalf("analysisOptions: %v", err)
	}
	if opts.Strategy != completion.Validation {
		t.Errorf("strategy: got %v", opts.Strategy)
	}
	exec, ok := opts.Executor.(*docker.Executor)
	if !ok {
		t.Fatalf("executor: got %T", opts.Executor)
	}
	if exec.MemoryLimit != 2048*1024*1024 || exec.Grace != 2*time.Second || exec.Objective != scenario.ObjectiveRuntime {
		t.Errorf("executor: got %+v", exec)
	}
	if len(opts.Methods) != 1 || opts.Methods[0] != importance.MethodAblation {
		t.Errorf("methods: got %v", opts.Methods)
	}
	if opts.Parallel != 8 || opts.Seed != 7 || opts.Folds != 3 {
		t.Errorf("got parallel %d, seed %d, folds %d", opts.Parallel, opts.Seed, opts.Folds)
	}
}

func TestAnalysisOptionsSurrogate(t *testing.T) {
	cfg, err := config.Load("../testdata/minimal.yaml")
	if err != nil {
		t.Fatal(err)
	}
	opts, err := analysisOptions(cfg, &scenario.Scenario{})
	if err != nil {
		t.Fatalf("analysisOptions: %v", err)
	}
	if opts.Strategy != completion.Surrogate || opts.Executor != nil {
		t.Errorf("got strategy %v, executor %v", opts.Strategy, opts.Executor)
	}

	cfg.MissingData.Aggregation = "mode"
	if _, err := analysisOptions(cfg, &scenario.Scenario{}); err == nil {
		t.Error("expected error for unknown aggregation")
	}
}

func TestAnalyzeReportList(t *testing.T) {
	out := t.TempDir()
	got := execute(t, "--config", "../testdata/minimal.yaml", "analyze", "--output", out)
	for _, want := range []string{"Analysis directory:", "restart-solver", "PAR10", "Run with best incumbent"} {
		if !strings.Contains(got, want) {
			t.Errorf("analyze output missing %q:\n%s", want, got)
		}
	}

	latest := filepath.Join(out, "latest")
	md := execute(t, "report", latest, "--format", "markdown")
	if !strings.Contains(md, "| PAR10 |") {
		t.Errorf("markdown report missing PAR10 row:\n%s", md)
	}

	list := execute(t, "list", latest)
	if !strings.HasPrefix(list, "COST") || !strings.Contains(list, "solver='restart'") {
		t.Errorf("unexpected list output:\n%s", list)
	}
}

func TestMerge(t *testing.T) {
	db := filepath.Join(t.TempDir(), "merged.db")
	got := execute(t, "merge", "--out", db,
		"--scenario", "../testdata/scenario/scenario.yaml",
		"../testdata/scenario/run_1", "../testdata/scenario/run_2")
	if !strings.Contains(got, "Merged 2 runs") {
		t.Errorf("unexpected merge output: %q", got)
	}

	list := execute(t, "list", db)
	// three distinct configurations across both runs
	if n := strings.Count(list, "\n"); n != 4 {
		t.Errorf("expected header plus 3 configurations, got %d lines:\n%s", n, list)
	}
}

func TestReportMissingDir(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"report", filepath.Join(t.TempDir(), "nope")})
	if err := root.Execute(); err == nil {
		t.Error("expected error for missing analysis dir")
	}
}
