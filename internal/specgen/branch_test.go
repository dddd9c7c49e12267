package specgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveBranchWithSourceProvenance(t *testing.T) {
	source := "github-issue"
	ref := "#42 Fix Login!"
	got := deriveBranch(&source, &ref, "Fix login bug", time.Now())
	assert.Equal(t, "ai/github-issue-42-fix-login-fix-login-bug", got)
}

func TestDeriveBranchFallsBackToTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := deriveBranch(nil, nil, "Add login", now)
	assert.Equal(t, "ai/20260102030405-add-login", got)
}

func TestDeriveBranchDefaultsTitleToTask(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := deriveBranch(nil, nil, "!!!", now)
	assert.Equal(t, "ai/20260102030405-task", got)
}
