// Package cmd implements whimctl, the operator CLI wrapping the
// orchestrator's HTTP Surface. Grounded on the cobra root/subcommand
// layout in hortator-ai-Hortator's cmd/hortator/cmd package.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skylarbarrera/whim/internal/cliclient"
)

var (
	orchestratorURL string
	outputFormat    string
	offline         bool
	cachePath       string

	client *cliclient.Client
	cache  *cliclient.Cache
)

var rootCmd = &cobra.Command{
	Use:   "whimctl",
	Short: "Operator CLI for the whim orchestrator",
	Long: `whimctl is the operator CLI for the whim orchestrator.

It wraps the orchestrator's HTTP Surface to submit work, inspect the
queue, workers and metrics, review learnings, and triage failed
(dead-letter) work items.

Examples:
  # Submit a new work item
  whimctl submit --repo github.com/acme/widgets --description "add retries"

  # Check a work item's status
  whimctl get wi-abc123

  # List the active queue
  whimctl queue

  # Review the dead-letter queue (failed work items)
  whimctl dlq list`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		client = cliclient.New(orchestratorURL)
		c, err := cliclient.OpenCache(cachePath)
		if err != nil {
			return err
		}
		cache = c
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cache != nil {
			return cache.Close()
		}
		return nil
	},
}

// Execute runs the CLI's root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultCache := filepath.Join(os.TempDir(), "whimctl-cache.db")

	rootCmd.PersistentFlags().StringVar(&orchestratorURL, "orchestrator-url", defaultOrchestratorURL(), "Orchestrator base URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Serve read commands from the local cache instead of calling the orchestrator")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache-path", defaultCache, "Path to the local SQLite read cache")
}

func defaultOrchestratorURL() string {
	if v := os.Getenv("WHIM_ORCHESTRATOR_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}
