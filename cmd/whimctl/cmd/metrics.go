package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List recorded worker metrics",
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		payload, err := fetchOrCache(cobraCmd.Context(), cacheKeyFor("metrics"), func(ctx context.Context) (json.RawMessage, error) {
			return client.Metrics(ctx)
		})
		if err != nil {
			return err
		}
		return printPayload(payload)
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}
