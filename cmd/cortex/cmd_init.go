package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .cortex in the current project",
	Long: `Creates the .cortex directory, its databases, and a default
config.toml. Safe to run more than once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		configPath := filepath.Join(flagDir, "config.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := os.WriteFile(configPath, []byte(defaultConfigTOML), 0644); err != nil {
				return fmt.Errorf("write default config: %w", err)
			}
		}

		gitignorePath := filepath.Join(flagDir, ".gitignore")
		if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
			if err := os.WriteFile(gitignorePath, []byte("raw.db\nraw.db-wal\nraw.db-shm\n"), 0644); err != nil {
				return fmt.Errorf("write .gitignore: %w", err)
			}
		}

		if err := os.MkdirAll(s.SkillsDir(), 0755); err != nil {
			return fmt.Errorf("create skills directory: %w", err)
		}

		fmt.Printf("initialized cortex store in %s\n", flagDir)
		return nil
	},
}

const defaultConfigTOML = `[consolidation]
auto_micro_threshold = 10
decay_threshold = 0.1
model = "claude-haiku-4-5"
stale_horizon = "720h"
batch_max = 100
`

func init() {
	rootCmd.AddCommand(initCmd)
}
