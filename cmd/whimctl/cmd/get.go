package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a work item by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		id := args[0]
		payload, err := fetchOrCache(cobraCmd.Context(), cacheKeyFor("work", id), func(ctx context.Context) (json.RawMessage, error) {
			return client.Get(ctx, id)
		})
		if err != nil {
			return err
		}
		return printPayload(payload)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
