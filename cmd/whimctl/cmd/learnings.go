package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var (
	learningsRepo string
	learningsSpec string
)

var learningsCmd = &cobra.Command{
	Use:   "learnings",
	Short: "List recorded learnings",
	Long: `List learnings recorded by completed workers.

Examples:
  whimctl learnings
  whimctl learnings --repo github.com/acme/widgets`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		payload, err := fetchOrCache(cobraCmd.Context(), cacheKeyFor("learnings", learningsRepo, learningsSpec), func(ctx context.Context) (json.RawMessage, error) {
			return client.Learnings(ctx, learningsRepo, learningsSpec)
		})
		if err != nil {
			return err
		}
		return printPayload(payload)
	},
}

func init() {
	rootCmd.AddCommand(learningsCmd)
	learningsCmd.Flags().StringVar(&learningsRepo, "repo", "", "Filter by repository")
	learningsCmd.Flags().StringVar(&learningsSpec, "spec", "", "Filter by spec")
}
