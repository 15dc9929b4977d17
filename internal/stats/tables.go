package stats

import (
	"strconv"

	"github.com/signalnine/rundown/internal/scenario"
	"github.com/signalnine/rundown/internal/space"
)

// ComparisonTable lays out default and incumbent PAR10 side by side. Values
// holds one entry per (group, column) pair, group-major.
type ComparisonTable struct {
	Groups  []string        `json:"groups"`
	Columns []string        `json:"columns"`
	Rows    []ComparisonRow `json:"rows"`
}

type ComparisonRow struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
}

func BuildComparisonTable(def, inc PAR10) ComparisonTable {
	return ComparisonTable{
		Groups:  []string{"Default", "Incumbent"},
		Columns: []string{"Train", "Test", "Combined"},
		Rows: []ComparisonRow{{
			Label:  "PAR10",
			Values: []float64{def.Train, def.Test, def.Combined, inc.Train, inc.Test, inc.Combined},
		}},
	}
}

// Overview is the meta-data block of a report.
type Overview struct {
	BestRun        string  `json:"best_run"`
	TrainInstances int     `json:"train_instances"`
	TestInstances  int     `json:"test_instances"`
	Parameters     int     `json:"parameters"`
	Cutoff         float64 `json:"cutoff"`
	WallclockLimit float64 `json:"wallclock_limit"`
	RunCountLimit  int     `json:"run_count_limit"`
	CPULimit       float64 `json:"cpu_limit"`
	Deterministic  bool    `json:"deterministic"`
}

func NewOverview(bestRun string, scen *scenario.Scenario) Overview {
	o := Overview{
		BestRun:        bestRun,
		TrainInstances: len(scen.TrainInstances),
		TestInstances:  len(scen.TestInstances),
		Cutoff:         scen.Cutoff,
		WallclockLimit: scen.WallclockLimit,
		RunCountLimit:  scen.RunCountLimit,
		CPULimit:       scen.CPULimit,
		Deterministic:  scen.Deterministic,
	}
	if scen.Space != nil {
		o.Parameters = scen.Space.Len()
	}
	return o
}

// Rows returns label/value pairs in display order.
func (o Overview) Rows() [][2]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return [][2]string{
		{"Run with best incumbent", o.BestRun},
		{"# Train instances", strconv.Itoa(o.TrainInstances)},
		{"# Test instances", strconv.Itoa(o.TestInstances)},
		{"# Parameters", strconv.Itoa(o.Parameters)},
		{"Cutoff", f(o.Cutoff)},
		{"Walltime budget", f(o.WallclockLimit)},
		{"Runcount budget", strconv.Itoa(o.RunCountLimit)},
		{"CPU budget", f(o.CPULimit)},
		{"Deterministic", strconv.FormatBool(o.Deterministic)},
	}
}

// DiffRow is one parameter of the default/incumbent comparison. Inactive
// values are "-".
type DiffRow struct {
	Parameter string `json:"parameter"`
	Default   string `json:"default"`
	Incumbent string `json:"incumbent"`
	Changed   bool   `json:"changed"`
}

// ConfigDiff lists, in space order, every parameter active in at least one of
// the two configurations.
func ConfigDiff(def, inc space.Configuration) []DiffRow {
	var rows []DiffRow
	for _, name := range def.Space().Names() {
		dv, dok := def.Value(name)
		iv, iok := inc.Value(name)
		if !dok && !iok {
			continue
		}
		if !dok {
			dv = "-"
		}
		if !iok {
			iv = "-"
		}
		rows = append(rows, DiffRow{Parameter: name, Default: dv, Incumbent: iv, Changed: dv != iv})
	}
	return rows
}
