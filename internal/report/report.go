package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/rundown/internal/importance"
	"github.com/signalnine/rundown/internal/result"
	"github.com/signalnine/rundown/internal/stats"
)

// Analysis is everything stored for one analysis directory.
type Analysis struct {
	Summary    *result.Summary      `json:"summary"`
	Importance []*importance.Result `json:"importance,omitempty"`
}

// Generate reads a stored analysis and renders it as table, markdown or json.
func Generate(dir, format string, w io.Writer) error {
	a, err := Load(dir)
	if err != nil {
		return err
	}

	switch format {
	case "markdown":
		return writeMarkdown(a, w)
	case "json":
		return writeJSON(a, w)
	default:
		return writeTable(a, w)
	}
}

func Load(dir string) (*Analysis, error) {
	s, err := result.ReadSummary(filepath.Join(dir, result.SummaryFile))
	if err != nil {
		return nil, err
	}
	a := &Analysis{Summary: s}
	paths, err := filepath.Glob(filepath.Join(dir, "importance_*.json"))
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		r, err := result.ReadImportance(p)
		if err != nil {
			return nil, err
		}
		a.Importance = append(a.Importance, r)
	}
	sort.Slice(a.Importance, func(i, j int) bool {
		return methodRank(a.Importance[i].Method) < methodRank(a.Importance[j].Method)
	})
	return a, nil
}

func methodRank(m importance.Method) int {
	for i, known := range importance.Methods {
		if known == m {
			return i
		}
	}
	return len(importance.Methods)
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}

func comparison(s *result.Summary) stats.ComparisonTable {
	return stats.BuildComparisonTable(s.DefaultPAR10.Stats(), s.IncumbentPAR10.Stats())
}

func comparisonHeader(t stats.ComparisonTable) []string {
	var cols []string
	for _, g := range t.Groups {
		for _, c := range t.Columns {
			cols = append(cols, g+" "+c)
		}
	}
	return cols
}

func writeTable(a *Analysis, w io.Writer) error {
	s := a.Summary
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "SCENARIO %s (%s missing data, %d runs over %d configs)\n",
		s.Scenario, s.MissingData, s.LedgerRuns, s.Configs)
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, row := range s.Overview.Rows() {
		fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PARAMETER\tDEFAULT\tINCUMBENT")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, d := range s.ConfigDiff {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Parameter, d.Default, d.Incumbent)
	}

	t := comparison(s)
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "\t%s\n", strings.ToUpper(strings.Join(comparisonHeader(t), "\t")))
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, r := range t.Rows {
		vals := make([]string, len(r.Values))
		for i, v := range r.Values {
			vals[i] = num(v)
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.Label, strings.Join(vals, "\t"))
	}
	fmt.Fprintf(tw, "Timeouts\t%d\t\t\t%d\n", s.Timeouts.Default, s.Timeouts.Incumbent)

	for _, r := range a.Importance {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "%s\tSCORE\tCOST\n", strings.ToUpper(string(r.Method)))
		fmt.Fprintln(tw, strings.Repeat("-", 80))
		for _, step := range r.Path {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", step.Parameter, num(step.Score), num(step.Cost))
		}
	}
	for _, warn := range s.Warnings {
		fmt.Fprintf(tw, "\nWARNING: %s\n", warn)
	}
	return tw.Flush()
}

func writeMarkdown(a *Analysis, w io.Writer) error {
	s := a.Summary
	fmt.Fprintf(w, "# %s\n\n", s.Scenario)
	fmt.Fprintln(w, "| | |")
	fmt.Fprintln(w, "|---|---|")
	for _, row := range s.Overview.Rows() {
		fmt.Fprintf(w, "| %s | %s |\n", row[0], row[1])
	}

	fmt.Fprintln(w, "\n## Best configuration")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Parameter | Default | Incumbent |")
	fmt.Fprintln(w, "|---|---|---|")
	for _, d := range s.ConfigDiff {
		fmt.Fprintf(w, "| %s | %s | %s |\n", d.Parameter, d.Default, d.Incumbent)
	}

	t := comparison(s)
	fmt.Fprintln(w, "\n## PAR10")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "| | %s |\n", strings.Join(comparisonHeader(t), " | "))
	fmt.Fprintf(w, "|---%s|\n", strings.Repeat("|---", len(comparisonHeader(t))))
	for _, r := range t.Rows {
		vals := make([]string, len(r.Values))
		for i, v := range r.Values {
			vals[i] = num(v)
		}
		fmt.Fprintf(w, "| %s | %s |\n", r.Label, strings.Join(vals, " | "))
	}

	for _, r := range a.Importance {
		fmt.Fprintf(w, "\n## Importance: %s\n\n", r.Method)
		fmt.Fprintln(w, "| Parameter | Score | Cost |")
		fmt.Fprintln(w, "|---|---|---|")
		for _, step := range r.Path {
			fmt.Fprintf(w, "| %s | %s | %s |\n", step.Parameter, num(step.Score), num(step.Cost))
		}
	}
	if len(s.Warnings) > 0 {
		fmt.Fprintln(w, "\n## Warnings")
		fmt.Fprintln(w)
		for _, warn := range s.Warnings {
			fmt.Fprintf(w, "- %s\n", warn)
		}
	}
	return nil
}

func writeJSON(a *Analysis, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}
