package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List registered workers",
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		payload, err := fetchOrCache(cobraCmd.Context(), cacheKeyFor("workers"), func(ctx context.Context) (json.RawMessage, error) {
			return client.Workers(ctx)
		})
		if err != nil {
			return err
		}
		return printPayload(payload)
	},
}

func init() {
	rootCmd.AddCommand(workersCmd)
}
