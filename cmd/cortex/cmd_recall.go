package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/retrieval"
)

var recallCmd = &cobra.Command{
	Use:   "recall [query]",
	Short: "Search project and global memory",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		env, err := retrieval.Recall(s, query, flagLimit, time.Now())
		if err != nil {
			return err
		}

		if flagJSON {
			data, _ := json.Marshal(env.Results)
			fmt.Println(string(data))
			return nil
		}

		if len(env.Results) == 0 {
			fmt.Println("no results")
			return nil
		}
		for _, r := range env.Results {
			fmt.Printf("[%d] (%s, score %.3f) %s\n", r.ID, r.Kind, r.Score, r.Content)
		}
		for _, w := range env.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().IntVar(&flagLimit, "limit", 15, "maximum number of results")
	rootCmd.AddCommand(recallCmd)
}
