package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skylarbarrera/whim/internal/cliclient"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Review the dead-letter queue (failed work items)",
	Long: `dlq is a convenience view over failed work items: it introduces
no new entity, only richer error-detail rendering for whimctl queue
--status failed.`,
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List failed work items",
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		payload, err := fetchOrCache(cobraCmd.Context(), cacheKeyFor("dlq"), func(ctx context.Context) (json.RawMessage, error) {
			return client.DeadLetterQueue(ctx)
		})
		if err != nil {
			return err
		}
		return printPayload(payload)
	},
}

// dlqWorkItem mirrors the subset of domain.WorkItem's wire shape that
// dlq retry needs to resubmit a failed item as a fresh one. Its fields
// carry no json tags: encoding/json's case-insensitive name matching
// maps the camelCase keys ("repo", "sourceRef", ...) onto them.
type dlqWorkItem struct {
	Repo        string
	Spec        *string
	Description *string
	Priority    string
	Source      *string
	SourceRef   *string
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Resubmit a failed work item as a fresh one",
	Long: `retry clones a failed work item's repo/spec/description/priority
into a brand-new submission; the original failed item is left
untouched as the historical record.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		ctx := cobraCmd.Context()
		raw, err := client.Get(ctx, args[0])
		if err != nil {
			return err
		}
		var item dlqWorkItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return fmt.Errorf("decode failed work item: %w", err)
		}

		payload, err := client.Submit(ctx, cliclient.SubmitRequest{
			Repo:        item.Repo,
			Spec:        item.Spec,
			Description: item.Description,
			Priority:    item.Priority,
			Source:      item.Source,
			SourceRef:   item.SourceRef,
		})
		if err != nil {
			return err
		}
		return printPayload(payload)
	},
}

var dlqDiscardCmd = &cobra.Command{
	Use:   "discard <id>",
	Short: "Acknowledge a failed work item with no further action",
	Long: `discard acknowledges review of a failed work item. Failed is
already terminal, so this issues a cancel call for idempotent
confirmation and reports the outcome; it does not resubmit or delete
anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		cancelled, err := client.Cancel(cobraCmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("acknowledged %s (state transition applied: %v)\n", args[0], cancelled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd, dlqRetryCmd, dlqDiscardCmd)
}
