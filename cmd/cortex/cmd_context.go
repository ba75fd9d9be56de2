package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/contextdoc"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Assemble the prompt-injection context document",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		writer := skillsWriter(s)
		doc, err := contextdoc.Format(s, writer, contextdoc.Options{
			Query:   flagQuery,
			Limit:   flagLimit,
			Compact: flagCompact,
		}, time.Now())
		if err != nil {
			return err
		}

		fmt.Println(doc)
		return nil
	},
}

func init() {
	contextCmd.Flags().StringVar(&flagQuery, "query", "", "focus the Patterns & Decisions section on a query")
	contextCmd.Flags().IntVar(&flagLimit, "limit", 15, "maximum entries per section")
	contextCmd.Flags().BoolVar(&flagCompact, "compact", false, "collapse sections 1/4/5 and cap entries to 120 characters")
	rootCmd.AddCommand(contextCmd)
}
