package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/consolidate"
	"github.com/cortexmem/cortex/internal/dream"
)

var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Run a consolidation pass",
	Long: `Runs the quick-sleep pass (one LLM call applying a structured plan)
when an LLM credential is configured, or the --micro SQL-only pass
otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if flagMicro {
			result, err := consolidate.MicroPass(s, cfg.Consolidation)
			if err != nil {
				return err
			}
			printJSONOrText(result, func() {
				fmt.Printf("duplicates_collapsed: %d, decayed: %d, stale_deleted: %d, marked_consolidated: %d\n",
					result.DuplicatesCollapsed, result.Decayed, result.StaleDeleted, result.MarkedConsolidated)
			})
			return nil
		}

		provider := loadProvider(cfg)
		writer := skillsWriter(s)

		return runWithSignals(func(ctx context.Context) error {
			result, err := consolidate.QuickSleep(ctx, s, provider, writer, cfg.Consolidation, time.Now())
			if err != nil {
				return err
			}

			// The auto-dream rule runs the global dream pass right after a
			// project quick-sleep rather than on a timer.
			if result.ScheduleDream && provider != nil {
				if _, derr := dream.Run(ctx, s, provider, writer, true, cfg.Consolidation.Model, time.Now()); derr != nil {
					fmt.Printf("warning: scheduled global dream failed: %v\n", derr)
				}
			}

			writer.SweepObsolete(writer.ProjectDir(), result.SkillNames, 30*24*time.Hour, time.Now())
			s.Checkpoint()

			printJSONOrText(result, func() {
				fmt.Printf("consolidated: %d, promoted: %d, deleted: %d, skills_written: %d, fell_back_to_micro: %v\n",
					result.Consolidated, result.Promoted, result.Deleted, result.SkillsWritten, result.FellBackToMicro)
			})
			return nil
		})
	},
}

func printJSONOrText(v interface{}, text func()) {
	if flagJSON {
		data, _ := json.Marshal(v)
		fmt.Println(string(data))
		return
	}
	text()
}

func init() {
	sleepCmd.Flags().BoolVar(&flagMicro, "micro", false, "force the SQL-only micro pass, skipping the LLM call")
	sleepCmd.Flags().BoolVarP(&flagGlobal, "global", "g", false, "accepted for CLI compatibility; sleep does not read it")
	rootCmd.AddCommand(sleepCmd)
}
