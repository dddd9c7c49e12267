package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/skylarbarrera/whim/internal/domain"
)

// ExecSpawner launches the worker binary as a detached child process per
// the worker spawn contract in spec section 6.4: ORCHESTRATOR_URL,
// WORKER_ID, WORK_ITEM (JSON), GITHUB_TOKEN, WORK_DIR. Grounded on
// specgen.ExecInvoker's process-launch pattern.
type ExecSpawner struct {
	// Command is the worker binary path or name on PATH.
	Command string
	// Args are extra arguments passed to Command.
	Args []string
	// OrchestratorURL is advertised to the worker so it can call back
	// into the Worker RPCs.
	OrchestratorURL string
	// GitHubToken is forwarded to the worker for PR creation.
	GitHubToken string
	// WorkDirRoot is the parent directory under which each worker gets
	// its own per-item working directory.
	WorkDirRoot string
}

// Spawn satisfies dispatcher.Spawner.
func (s ExecSpawner) Spawn(ctx context.Context, workerID string, item domain.WorkItem) error {
	workDir := filepath.Join(s.WorkDirRoot, workerID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	itemJSON, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"ORCHESTRATOR_URL="+s.OrchestratorURL,
		"WORKER_ID="+workerID,
		"WORK_ITEM="+string(itemJSON),
		"GITHUB_TOKEN="+s.GitHubToken,
		"WORK_DIR="+workDir,
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker process: %w", err)
	}

	// The worker communicates its lifecycle back over the Worker RPCs;
	// the dispatcher does not wait on the process here. Reap it in the
	// background so it doesn't linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}
