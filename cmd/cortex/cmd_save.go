package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/consolidate"
	"github.com/cortexmem/cortex/internal/store"
)

var saveCmd = &cobra.Command{
	Use:   "save <content>",
	Short: "Record an episodic observation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content := strings.Join(args, " ")
		kind := flagType
		if kind == "" {
			kind = string(store.KindObservation)
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		id, err := s.InsertRaw(content, kind, store.DetectSessionID())
		if err != nil {
			return err
		}

		if flagGlobal {
			consolidatedID, cerr := s.InsertConsolidated(content, kind, 0.6, []int64{id})
			if cerr == nil {
				s.PromoteGlobal(consolidatedID)
			}
		}

		// An inline micro pass fires once the unconsolidated count
		// reaches auto_micro_threshold.
		unconsolidated, uerr := s.UnconsolidatedCount()
		if uerr == nil && unconsolidated >= cfg.Consolidation.AutoMicroThreshold {
			consolidate.MicroPass(s, cfg.Consolidation)
		}

		if flagJSON {
			fmt.Printf(`{"id": %d}`+"\n", id)
		} else {
			fmt.Printf("saved as id %d\n", id)
		}
		return nil
	},
}

func init() {
	saveCmd.Flags().StringVar(&flagType, "type", "", "memory kind (bugfix, decision, pattern, preference, observation)")
	saveCmd.Flags().BoolVarP(&flagGlobal, "global", "g", false, "also promote to the global store")
	rootCmd.AddCommand(saveCmd)
}
