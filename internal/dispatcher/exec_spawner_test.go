package dispatcher_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarbarrera/whim/internal/dispatcher"
	"github.com/skylarbarrera/whim/internal/domain"
)

// writeDumpEnvScript writes a tiny shell script that dumps the env vars
// the worker spawn contract requires into a file inside its working
// directory, so the test can assert on them without a real worker binary.
func writeDumpEnvScript(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "dump-env.sh")
	script := `#!/bin/sh
{
  echo "ORCHESTRATOR_URL=$ORCHESTRATOR_URL"
  echo "WORKER_ID=$WORKER_ID"
  echo "WORK_ITEM=$WORK_ITEM"
  echo "GITHUB_TOKEN=$GITHUB_TOKEN"
  echo "WORK_DIR=$WORK_DIR"
} > "$WORK_DIR/env.dump"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExecSpawnerPassesWorkerSpawnContract(t *testing.T) {
	root := t.TempDir()
	scriptDir := t.TempDir()
	script := writeDumpEnvScript(t, scriptDir)

	spawner := dispatcher.ExecSpawner{
		Command:         "/bin/sh",
		Args:            []string{script},
		OrchestratorURL: "http://localhost:8080",
		GitHubToken:     "token-123",
		WorkDirRoot:     root,
	}

	item := domain.WorkItem{ID: "item-1", Repo: "o/r", Status: domain.StatusAssigned}
	ctx := context.Background()
	require.NoError(t, spawner.Spawn(ctx, "worker-1", item))

	workDir := filepath.Join(root, "worker-1")
	dumpPath := filepath.Join(workDir, "env.dump")

	var contents []byte
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(dumpPath)
		if err != nil {
			return false
		}
		contents = b
		return true
	}, 2*time.Second, 10*time.Millisecond, "worker process did not write its env dump in time")

	itemJSON, err := json.Marshal(item)
	require.NoError(t, err)

	dump := string(contents)
	assert.Contains(t, dump, "ORCHESTRATOR_URL=http://localhost:8080")
	assert.Contains(t, dump, "WORKER_ID=worker-1")
	assert.Contains(t, dump, "WORK_ITEM="+string(itemJSON))
	assert.Contains(t, dump, "GITHUB_TOKEN=token-123")
	assert.Contains(t, dump, "WORK_DIR="+workDir)
}

func TestExecSpawnerCreatesPerWorkerDirectory(t *testing.T) {
	root := t.TempDir()
	spawner := dispatcher.ExecSpawner{
		Command:     "/bin/true",
		WorkDirRoot: root,
	}

	require.NoError(t, spawner.Spawn(context.Background(), "worker-xyz", domain.WorkItem{ID: "item-1"}))

	info, err := os.Stat(filepath.Join(root, "worker-xyz"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExecSpawnerFailsOnUnstartableCommand(t *testing.T) {
	root := t.TempDir()
	spawner := dispatcher.ExecSpawner{
		Command:     filepath.Join(root, "does-not-exist"),
		WorkDirRoot: root,
	}

	err := spawner.Spawn(context.Background(), "worker-1", domain.WorkItem{ID: "item-1"})
	assert.Error(t, err)
}
