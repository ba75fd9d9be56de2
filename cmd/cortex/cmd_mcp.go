package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/rpc"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as a JSON-RPC server over stdin/stdout",
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
		server := rpc.NewServer(s, provider, writer, cfg)

		return runWithSignals(func(ctx context.Context) error {
			if err := server.Run(ctx); err != nil && err != context.Canceled {
				fmt.Fprintf(os.Stderr, "rpc server error: %v\n", err)
				return err
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
