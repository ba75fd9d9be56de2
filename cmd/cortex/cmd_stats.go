package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the read-only stats snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		w := skillsWriter(s)

		var stats *store.Stats
		if flagGlobal {
			stats, err = s.GlobalStats(w.GlobalCount())
		} else {
			stats, err = s.Stats(w.ProjectCount())
		}
		if err != nil {
			return err
		}

		if flagJSON {
			data, _ := json.Marshal(stats)
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("raw: %d\n", stats.Raw)
		fmt.Printf("unconsolidated: %d\n", stats.Unconsolidated)
		fmt.Printf("consolidated: %d\n", stats.Consolidated)
		fmt.Printf("skills: %d\n", stats.Skills)
		if stats.LastSleepAt != nil {
			fmt.Printf("last_sleep_at: %s\n", stats.LastSleepAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		if stats.LastDreamAt != nil {
			fmt.Printf("last_dream_at: %s\n", stats.LastDreamAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVarP(&flagGlobal, "global", "g", false, "report global store counts instead of project")
	rootCmd.AddCommand(statsCmd)
}
