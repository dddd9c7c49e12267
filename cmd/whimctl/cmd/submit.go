package cmd

import (
	"github.com/spf13/cobra"

	"github.com/skylarbarrera/whim/internal/cliclient"
)

var submitArgs struct {
	repo          string
	description   string
	spec          string
	branch        string
	priority      string
	maxIterations int
	source        string
	sourceRef     string
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new work item",
	Long: `Submit a new work item to the queue.

Examples:
  whimctl submit --repo github.com/acme/widgets --description "add retries"
  whimctl submit --repo github.com/acme/widgets --spec ./spec.md --priority high`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&submitArgs.repo, "repo", "", "Target repository (required)")
	submitCmd.Flags().StringVar(&submitArgs.description, "description", "", "Natural-language description (triggers spec generation)")
	submitCmd.Flags().StringVar(&submitArgs.spec, "spec", "", "Pre-written spec text (skips spec generation)")
	submitCmd.Flags().StringVar(&submitArgs.branch, "branch", "", "Explicit branch name override")
	submitCmd.Flags().StringVar(&submitArgs.priority, "priority", "medium", "Priority: low, medium, high, critical")
	submitCmd.Flags().IntVar(&submitArgs.maxIterations, "max-iterations", 0, "Iteration budget (0 = default)")
	submitCmd.Flags().StringVar(&submitArgs.source, "source", "", "Originating system (e.g. intake-poller)")
	submitCmd.Flags().StringVar(&submitArgs.sourceRef, "source-ref", "", "Originating reference (e.g. issue URL)")
	_ = submitCmd.MarkFlagRequired("repo")
}

func runSubmit(cobraCmd *cobra.Command, args []string) error {
	req := cliclient.SubmitRequest{
		Repo:          submitArgs.repo,
		Priority:      submitArgs.priority,
		MaxIterations: submitArgs.maxIterations,
	}
	if submitArgs.description != "" {
		req.Description = &submitArgs.description
	}
	if submitArgs.spec != "" {
		req.Spec = &submitArgs.spec
	}
	if submitArgs.branch != "" {
		req.Branch = &submitArgs.branch
	}
	if submitArgs.source != "" {
		req.Source = &submitArgs.source
	}
	if submitArgs.sourceRef != "" {
		req.SourceRef = &submitArgs.sourceRef
	}

	payload, err := client.Submit(cobraCmd.Context(), req)
	if err != nil {
		return err
	}
	return printPayload(payload)
}
