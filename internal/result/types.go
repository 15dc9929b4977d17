package result

import (
	"encoding/json"
	"math"
	"time"

	"github.com/signalnine/rundown/internal/stats"
)

// Float is a float64 that encodes NaN and infinities as JSON null and decodes
// null back to NaN.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

type PAR10 struct {
	Train    Float `json:"train"`
	Test     Float `json:"test"`
	Combined Float `json:"combined"`
}

func FromPAR10(p stats.PAR10) PAR10 {
	return PAR10{Train: Float(p.Train), Test: Float(p.Test), Combined: Float(p.Combined)}
}

func (p PAR10) Stats() stats.PAR10 {
	return stats.PAR10{Train: float64(p.Train), Test: float64(p.Test), Combined: float64(p.Combined)}
}

type RunSummary struct {
	Folder    string `json:"folder"`
	Incumbent string `json:"incumbent"`
	FinalCost Float  `json:"final_cost"`
	Runs      int    `json:"runs"`
}

type InstanceLoss struct {
	Default   Float `json:"default"`
	Incumbent Float `json:"incumbent"`
}

type Timeouts struct {
	Default   int `json:"default"`
	Incumbent int `json:"incumbent"`
}

type Summary struct {
	ID             string                  `json:"id"`
	CreatedAt      time.Time               `json:"created_at"`
	Scenario       string                  `json:"scenario"`
	MissingData    string                  `json:"missing_data"`
	Runs           []RunSummary            `json:"runs"`
	BestRun        string                  `json:"best_run"`
	Default        string                  `json:"default"`
	Incumbent      string                  `json:"incumbent"`
	LedgerRuns     int                     `json:"ledger_runs"`
	Configs        int                     `json:"configs"`
	Overview       stats.Overview          `json:"overview"`
	ConfigDiff     []stats.DiffRow         `json:"config_diff"`
	DefaultPAR10   PAR10                   `json:"default_par10"`
	IncumbentPAR10 PAR10                   `json:"incumbent_par10"`
	Timeouts       Timeouts                `json:"timeouts"`
	Losses         map[string]InstanceLoss `json:"losses"`
	Importance     []string                `json:"importance,omitempty"`
	Warnings       []string                `json:"warnings,omitempty"`
}
