package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/rundown/internal/importance"
)

const (
	SummaryFile = "summary.json"
	LedgerFile  = "ledger.db"
)

func ImportanceFile(method importance.Method) string {
	return fmt.Sprintf("importance_%s.json", method)
}

// CreateRunDir makes a fresh timestamped analysis directory under baseDir
// and points baseDir/latest at it. Directories created within the same
// millisecond get a numeric suffix, so an existing analysis is never reused.
func CreateRunDir(baseDir string) (string, error) {
	parent, err := filepath.Abs(filepath.Join(baseDir, "analyses"))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05.000")
	runDir := filepath.Join(parent, stamp)
	for n := 2; ; n++ {
		err := os.Mkdir(runDir, 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("creating run dir: %w", err)
		}
		runDir = filepath.Join(parent, fmt.Sprintf("%s-%d", stamp, n))
	}

	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// NewSummary returns a summary with a fresh ID.
func NewSummary(scenario string) *Summary {
	return &Summary{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Scenario:  scenario,
		Losses:    map[string]InstanceLoss{},
	}
}

func WriteSummary(dir string, s *Summary) error {
	return writeJSON(filepath.Join(dir, SummaryFile), s)
}

func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing summary: %w", err)
	}
	return &s, nil
}

func WriteImportance(dir string, r *importance.Result) error {
	return writeJSON(filepath.Join(dir, ImportanceFile(r.Method)), r)
}

func ReadImportance(path string) (*importance.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading importance: %w", err)
	}
	var r importance.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing importance: %w", err)
	}
	return &r, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}
