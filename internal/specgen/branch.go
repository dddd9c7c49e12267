package specgen

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// slug lowercases s, replaces runs of non-alphanumerics with a single
// hyphen, trims leading/trailing hyphens, and truncates to maxLen.
func slug(s string, maxLen int) string {
	lowered := strings.ToLower(s)
	replaced := nonAlphanumeric.ReplaceAllString(lowered, "-")
	trimmed := strings.Trim(replaced, "-")
	if len(trimmed) > maxLen {
		trimmed = strings.Trim(trimmed[:maxLen], "-")
	}
	if trimmed == "" {
		trimmed = "task"
	}
	return trimmed
}

// deriveBranch implements the branch-name derivation rules: when the
// item carries source/sourceRef provenance, the branch names that
// origin; otherwise it falls back to a timestamped slug of the title.
func deriveBranch(source, sourceRef *string, title string, now time.Time) string {
	if source != nil && *source != "" && sourceRef != nil && *sourceRef != "" {
		return fmt.Sprintf("ai/%s-%s-%s", *source, slug(*sourceRef, 40), slug(title, 40))
	}
	ts := now.UTC().Format("20060102150405")
	return fmt.Sprintf("ai/%s-%s", ts, slug(title, 40))
}
