package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/signalnine/rundown/internal/forest"
)

type Config struct {
	Scenario    string         `yaml:"scenario" validate:"required"`
	Runs        []string       `yaml:"runs" validate:"required,min=1,dive,required"`
	Output      Output         `yaml:"output"`
	MissingData MissingData    `yaml:"missing_data"`
	Executor    Executor       `yaml:"executor"`
	Importance  Importance     `yaml:"importance"`
	Forest      forest.Options `yaml:"forest"`
}

type Output struct {
	Dir string `yaml:"dir"`
}

type MissingData struct {
	Method      string `yaml:"method" validate:"omitempty,oneof=validation epm surrogate"`
	Parallel    int    `yaml:"parallel" validate:"gte=0"`
	Seed        int64  `yaml:"seed"`
	Aggregation string `yaml:"aggregation" validate:"omitempty,oneof=mean median"`
}

// Executor describes how the target algorithm is run for validation.
type Executor struct {
	Image         string  `yaml:"image"`
	Command       string  `yaml:"command"`
	InstanceDir   string  `yaml:"instance_dir"`
	CPULimit      float64 `yaml:"cpu_limit" validate:"gte=0"`
	MemoryLimitMB int64   `yaml:"memory_limit_mb" validate:"gte=0"`
	GraceSeconds  float64 `yaml:"grace_seconds" validate:"gte=0"`
}

func (e Executor) Grace() time.Duration {
	return time.Duration(e.GraceSeconds * float64(time.Second))
}

type Importance struct {
	Methods []string `yaml:"methods" validate:"dive,oneof=forward-selection ablation"`
	Folds   int      `yaml:"folds" validate:"gte=0"`
}

func defaults() Config {
	return Config{
		Output:      Output{Dir: "results"},
		MissingData: MissingData{Method: "validation", Parallel: 4, Seed: 1, Aggregation: "mean"},
		Executor:    Executor{GraceSeconds: 5},
		Importance:  Importance{Methods: []string{"forward-selection", "ablation"}, Folds: 5},
		Forest:      forest.DefaultOptions(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return &cfg, nil
}

// resolvePaths makes relative paths relative to the config file.
func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Scenario = abs(c.Scenario)
	for i := range c.Runs {
		c.Runs[i] = abs(c.Runs[i])
	}
	c.Output.Dir = abs(c.Output.Dir)
	c.Executor.InstanceDir = abs(c.Executor.InstanceDir)
}

var structValidator = validator.New()

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, formatFieldError(e))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}

	if cfg.MissingData.Method == "" {
		cfg.MissingData.Method = "validation"
	}
	if cfg.MissingData.Parallel == 0 {
		cfg.MissingData.Parallel = 1
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "results"
	}
	if cfg.MissingData.Method == "validation" {
		if cfg.Executor.Image == "" {
			return fmt.Errorf("executor.image is required for validation")
		}
		if cfg.Executor.Command == "" {
			return fmt.Errorf("executor.command is required for validation")
		}
	}
	return nil
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(e.Namespace(), "Config."))
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", field, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s fails %s=%s (got: %v)", field, e.Tag(), e.Param(), e.Value())
	}
}

// RunDirs expands the run patterns into existing directories, sorted and
// without duplicates.
func (c *Config) RunDirs() ([]string, error) {
	return ExpandRuns(c.Runs)
}

func ExpandRuns(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var dirs []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad run pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no run folders match %q", p)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || !info.IsDir() || seen[m] {
				continue
			}
			seen[m] = true
			dirs = append(dirs, m)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
