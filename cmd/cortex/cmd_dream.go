package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/dream"
)

var dreamCmd = &cobra.Command{
	Use:   "dream",
	Short: "Run the deep-reflection pass",
	Long: `Surveys the consolidated store, mines cross-cluster patterns and
meta-notes, and regenerates skill files. Requires an LLM credential.`,
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

		provider := loadProvider(cfg)
		writer := skillsWriter(s)

		return runWithSignals(func(ctx context.Context) error {
			result, err := dream.Run(ctx, s, provider, writer, flagGlobal, cfg.Consolidation.Model, time.Now())
			if err != nil {
				return err
			}

			sweepDir := writer.ProjectDir()
			if flagGlobal {
				sweepDir = writer.GlobalDir()
			}
			writer.SweepObsolete(sweepDir, result.SkillNames, 30*24*time.Hour, time.Now())
			s.Checkpoint()

			printJSONOrText(result, func() {
				fmt.Printf("clusters_surveyed: %d, patterns_found: %d, meta_notes_written: %d, confidence_adjustments: %d, skills_written: %d\n",
					result.ClustersSurveyed, result.PatternsFound, result.MetaNotesWritten, result.ConfidenceAdjustments, result.SkillsWritten)
			})
			return nil
		})
	},
}

func init() {
	dreamCmd.Flags().BoolVarP(&flagGlobal, "global", "g", false, "dream over the global store instead of the project store")
	rootCmd.AddCommand(dreamCmd)
}
