package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/store"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a consolidated entry",
	Long:  `Negative ids target the global store.`,
	Args:  cobra.ExactArgs(1),
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

		if id < 0 {
			err = s.GlobalDelete(-id)
		} else {
			err = s.DeleteConsolidated(id)
		}
		if err != nil {
			return err
		}

		fmt.Printf("deleted id %d\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
