package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/rundown/internal/config"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := config.Load("../../testdata/minimal.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MissingData.Method != "epm" {
		t.Errorf("expected method epm, got %q", cfg.MissingData.Method)
	}
	if cfg.MissingData.Aggregation != "mean" {
		t.Errorf("expected default aggregation mean, got %q", cfg.MissingData.Aggregation)
	}
	if len(cfg.Importance.Methods) != 2 {
		t.Errorf("expected both importance methods by default, got %v", cfg.Importance.Methods)
	}
	if cfg.Forest.Trees != 10 || !cfg.Forest.Bootstrap {
		t.Errorf("expected default forest options, got %+v", cfg.Forest)
	}
	if !filepath.IsAbs(cfg.Scenario) && !strings.HasPrefix(cfg.Scenario, "../../testdata") {
		t.Errorf("scenario path not resolved against config dir: %q", cfg.Scenario)
	}

	dirs, err := cfg.RunDirs()
	if err != nil {
		t.Fatalf("RunDirs: %v", err)
	}
	if len(dirs) != 2 || filepath.Base(dirs[0]) != "run_1" || filepath.Base(dirs[1]) != "run_2" {
		t.Errorf("expected run_1 and run_2, got %v", dirs)
	}
}

func TestLoadFull(t *testing.T) {
	cfg, err := config.Load("../../testdata/full.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MissingData.Parallel != 8 || cfg.MissingData.Seed != 7 {
		t.Errorf("missing_data: got %+v", cfg.MissingData)
	}
	if cfg.Executor.Image != "solver:latest" {
		t.Errorf("executor image: got %q", cfg.Executor.Image)
	}
	if cfg.Executor.Grace() != 2*time.Second {
		t.Errorf("grace: got %v", cfg.Executor.Grace())
	}
	if filepath.Base(cfg.Executor.InstanceDir) != "instances" || filepath.Base(cfg.Output.Dir) != "out" {
		t.Errorf("paths: instance_dir %q, output %q", cfg.Executor.InstanceDir, cfg.Output.Dir)
	}
	if len(cfg.Importance.Methods) != 1 || cfg.Importance.Methods[0] != "ablation" {
		t.Errorf("importance methods: got %v", cfg.Importance.Methods)
	}
	if cfg.Forest.Trees != 20 || cfg.Forest.Seed != 99 || cfg.Forest.MinSamplesSplit != 3 {
		t.Errorf("forest: got %+v", cfg.Forest)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load("nonexistent.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalid(t *testing.T) {
	_, err := config.Load("../../testdata/invalid.yaml")
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no scenario", "runs: [a]\nmissing_data: {method: epm}\n", "scenario is required"},
		{"no runs", "scenario: s.yaml\nmissing_data: {method: epm}\n", "runs is required"},
		{"bad method", "scenario: s.yaml\nruns: [a]\nmissing_data: {method: guess}\n", "must be one of"},
		{"bad importance", "scenario: s.yaml\nruns: [a]\nmissing_data: {method: epm}\nimportance: {methods: [fanova]}\n", "must be one of"},
		{"validation needs image", "scenario: s.yaml\nruns: [a]\n", "executor.image is required"},
		{"bad ratio", "scenario: s.yaml\nruns: [a]\nmissing_data: {method: epm}\nforest: {ratio_features: 2}\n", "ratio"},
	}
	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestExpandRunsNoMatch(t *testing.T) {
	if _, err := config.ExpandRuns([]string{filepath.Join(t.TempDir(), "run_*")}); err == nil {
		t.Error("expected error when no folder matches")
	}
}
