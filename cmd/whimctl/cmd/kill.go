package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill <workerId>",
	Short: "Kill a running worker and revert its work item to queued",
	Args:  cobra.ExactArgs(1),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		if err := client.Kill(cobraCmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("killed worker %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(killCmd)
}
