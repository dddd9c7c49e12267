package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var queueTypeFilter string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List active work items",
	Long: `List active work items across the queue.

Examples:
  whimctl queue
  whimctl queue --type verification`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		payload, err := fetchOrCache(cobraCmd.Context(), cacheKeyFor("queue", queueTypeFilter), func(ctx context.Context) (json.RawMessage, error) {
			return client.Queue(ctx, queueTypeFilter)
		})
		if err != nil {
			return err
		}
		return printPayload(payload)
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.Flags().StringVar(&queueTypeFilter, "type", "", "Filter by work item type: execution, verification")
}
