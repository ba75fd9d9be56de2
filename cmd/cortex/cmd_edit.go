package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/store"
)

var (
	editContent    string
	editConfidence float64
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Update a consolidated entry's content or confidence",
	Long: `Negative ids target the global store; positive ids target the
project's consolidated store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return &store.ValidationError{Msg: fmt.Sprintf("malformed id %q", args[0])}
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		upd := store.ConsolidatedUpdate{}
		if cmd.Flags().Changed("content") {
			upd.Content = &editContent
		}
		if cmd.Flags().Changed("confidence") {
			upd.Confidence = &editConfidence
		}

		if id < 0 {
			err = s.GlobalUpdate(-id, upd)
		} else {
			err = s.UpdateConsolidated(id, upd)
		}
		if err != nil {
			return err
		}

		fmt.Printf("updated id %d\n", id)
		return nil
	},
}

func init() {
	editCmd.Flags().StringVar(&editContent, "content", "", "replacement content")
	editCmd.Flags().Float64Var(&editConfidence, "confidence", 0, "replacement confidence in [0,1]")
	rootCmd.AddCommand(editCmd)
}
