package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a work item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		cancelled, err := client.Cancel(cobraCmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("cancelled: %v\n", cancelled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
