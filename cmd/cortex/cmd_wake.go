package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/wake"
)

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Session-start catch-up: consolidate backlog, then print context",
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
			result, err := wake.Run(ctx, s, provider, writer, cfg.Consolidation, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(result.Context)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(wakeCmd)
}
