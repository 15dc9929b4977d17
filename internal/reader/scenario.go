// Package reader loads scenarios and the output folders of optimization runs.
package reader

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
)

type scenarioFile struct {
	Name           string                 `yaml:"name"`
	RunObjective   string                 `yaml:"run_obj"`
	Cutoff         float64                `yaml:"cutoff_time"`
	WallclockLimit float64                `yaml:"wallclock_limit"`
	RunCountLimit  int                    `yaml:"runcount_limit"`
	CPULimit       float64                `yaml:"cpu_limit"`
	Deterministic  bool                   `yaml:"deterministic"`
	Repetitions    int                    `yaml:"repetitions"`
	CostForCrash   float64                `yaml:"cost_for_crash"`
	Parameters     []space.Hyperparameter `yaml:"parameters"`
	TrainInstances []string               `yaml:"train_instances"`
	TestInstances  []string               `yaml:"test_instances"`
	TrainInstFile  string                 `yaml:"train_inst_file"`
	TestInstFile   string                 `yaml:"test_inst_file"`
	Features       struct {
		Names  []string             `yaml:"names"`
		Values map[string][]float64 `yaml:"values"`
	} `yaml:"features"`
}

// LoadScenario reads a YAML scenario. Instance files are resolved relative to
// the scenario's directory and hold one instance per line.
func LoadScenario(path string) (*scenario.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}

	sp, err := space.New(f.Parameters)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	s := &scenario.Scenario{
		Name:           f.Name,
		Objective:      scenario.Objective(f.RunObjective),
		Cutoff:         f.Cutoff,
		WallclockLimit: f.WallclockLimit,
		RunCountLimit:  f.RunCountLimit,
		CPULimit:       f.CPULimit,
		Deterministic:  f.Deterministic,
		Repetitions:    f.Repetitions,
		CostForCrash:   f.CostForCrash,
		Space:          sp,
		TrainInstances: f.TrainInstances,
		TestInstances:  f.TestInstances,
		FeatureNames:   f.Features.Names,
		Features:       f.Features.Values,
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	switch s.Objective {
	case "":
		s.Objective = scenario.ObjectiveRuntime
	case scenario.ObjectiveRuntime, scenario.ObjectiveQuality:
	default:
		return nil, fmt.Errorf("scenario %s: unknown run_obj %q", path, f.RunObjective)
	}
	if s.Objective == scenario.ObjectiveRuntime && s.Cutoff <= 0 {
		return nil, fmt.Errorf("scenario %s: runtime objective needs a positive cutoff_time", path)
	}

	dir := filepath.Dir(path)
	if f.TrainInstFile != "" {
		insts, err := readInstanceFile(filepath.Join(dir, f.TrainInstFile))
		if err != nil {
			return nil, err
		}
		s.TrainInstances = append(s.TrainInstances, insts...)
	}
	if f.TestInstFile != "" {
		insts, err := readInstanceFile(filepath.Join(dir, f.TestInstFile))
		if err != nil {
			return nil, err
		}
		s.TestInstances = append(s.TestInstances, insts...)
	}
	for inst, vec := range s.Features {
		if len(vec) != len(s.FeatureNames) {
			return nil, fmt.Errorf("scenario %s: instance %q has %d features, want %d", path, inst, len(vec), len(s.FeatureNames))
		}
	}
	return s, nil
}

func readInstanceFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading instance file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// extra columns after the instance name are instance specifics
		out = append(out, strings.Fields(line)[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading instance file %s: %w", path, err)
	}
	return out, nil
}
