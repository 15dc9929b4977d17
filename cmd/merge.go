package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/rundown/internal/config"
	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/reader"
	"github.com/signalnine/rundown/internal/store"
)

var (
	flagMergeOut      string
	flagMergeScenario string
)

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge [run-dir...]",
		Short: "Merge the run histories of several runs into one ledger database",
		RunE:  runMerge,
	}
	cmd.Flags().StringVar(&flagMergeOut, "out", "ledger.db", "ledger database to write")
	cmd.Flags().StringVar(&flagMergeScenario, "scenario", "", "scenario file (default: from config)")
	return cmd
}

func runMerge(cmd *cobra.Command, args []string) error {
	scenarioPath := flagMergeScenario
	patterns := args
	if scenarioPath == "" || len(patterns) == 0 {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("need --scenario and run folders or a config: %w", err)
		}
		if scenarioPath == "" {
			scenarioPath = cfg.Scenario
		}
		if len(patterns) == 0 {
			patterns = cfg.Runs
		}
	}
	dirs, err := config.ExpandRuns(patterns)
	if err != nil {
		return err
	}
	scen, err := reader.LoadScenario(scenarioPath)
	if err != nil {
		return err
	}

	ledgers := make([]*ledger.Ledger, 0, len(dirs))
	for _, dir := range dirs {
		run, err := reader.ReadRun(dir, scen.Space)
		if err != nil {
			return err
		}
		ledgers = append(ledgers, run.Ledger)
	}
	merged, err := ledger.Merge(ledgers...)
	if err != nil {
		return err
	}

	st, err := store.Open(flagMergeOut)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Save(cmd.Context(), merged); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Merged %d runs: %d entries over %d configurations into %s\n",
		len(dirs), merged.Len(), len(merged.Configs()), flagMergeOut)
	return nil
}
