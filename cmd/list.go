package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalnine/rundown/internal/config"
	"github.com/signalnine/rundown/internal/result"
	"github.com/signalnine/rundown/internal/store"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [analysis-dir | ledger.db]",
		Short: "List the configurations in a stored ledger with their mean cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ledgerPath(args)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("opening ledger: %w", err)
			}
			st, err := store.Open(path)
			if err != nil {
				return err
			}
			defer st.Close()
			l, err := st.Load(cmd.Context(), nil)
			if err != nil {
				return err
			}

			type row struct {
				id   string
				cost float64
				runs int
			}
			var rows []row
			for _, cfg := range l.Configs() {
				rows = append(rows, row{id: cfg.ID(), cost: l.Cost(cfg), runs: len(l.RunsForConfig(cfg))})
			}
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].cost < rows[j].cost })

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "COST\tRUNS\tCONFIGURATION")
			for _, r := range rows {
				fmt.Fprintf(tw, "%.2f\t%d\t%s\n", r.cost, r.runs, r.id)
			}
			return tw.Flush()
		},
	}
}

// ledgerPath resolves the list argument: a database file, an analysis
// directory, or the latest analysis from the config.
func ledgerPath(args []string) (string, error) {
	var target string
	if len(args) > 0 {
		target = args[0]
	} else {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return "", err
		}
		target = filepath.Join(cfg.Output.Dir, "latest")
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return filepath.Join(target, result.LedgerFile), nil
	}
	return target, nil
}
