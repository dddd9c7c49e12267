package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a combined snapshot of queue stats, worker counts, and in-flight spec generation",
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		payload, err := fetchOrCache(cobraCmd.Context(), cacheKeyFor("status"), func(ctx context.Context) (json.RawMessage, error) {
			return client.Status(ctx)
		})
		if err != nil {
			return err
		}
		return printPayload(payload)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
