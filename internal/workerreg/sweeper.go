package workerreg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/skylarbarrera/whim/internal/store"
)

// sweeperRunType names the exclusive lease used to keep the staleness
// sweeper single-instance even if more than one orchestrator process is
// briefly alive during a deploy.
const sweeperRunType = "worker-staleness-sweep"

// SweeperConfig holds the tunables for the periodic staleness sweep.
type SweeperConfig struct {
	// HolderID identifies this orchestrator instance for lease ownership.
	HolderID string

	// Interval between sweeps (spec default: 30s).
	Interval time.Duration

	// MaxStartupJitter avoids a thundering herd across simultaneously
	// started orchestrator instances.
	MaxStartupJitter time.Duration

	// StaleWindow is the heartbeat staleness threshold (spec default: 120s).
	StaleWindow time.Duration

	// RegistrationGrace is how long an assigned item may go without a
	// registered worker before it's reverted to queued (spec default: 60s).
	RegistrationGrace time.Duration

	// LeaseDuration is how long the exclusive sweep lease is held.
	LeaseDuration time.Duration
}

// DefaultSweeperConfig returns the spec's stated defaults.
func DefaultSweeperConfig(holderID string) SweeperConfig {
	return SweeperConfig{
		HolderID:          holderID,
		Interval:          30 * time.Second,
		MaxStartupJitter:  5 * time.Second,
		StaleWindow:       120 * time.Second,
		RegistrationGrace: 60 * time.Second,
		LeaseDuration:     time.Minute,
	}
}

// Sweeper periodically reaps stale workers and stale-assigned work items.
type Sweeper struct {
	registry *Registry
	store    store.Store
	cfg      SweeperConfig
}

// NewSweeper constructs a Sweeper over registry's store.
func NewSweeper(registry *Registry, s store.Store, cfg SweeperConfig) *Sweeper {
	return &Sweeper{registry: registry, store: s, cfg: cfg}
}

// Run starts the sweep loop with jittered startup, running once
// immediately after the jitter and then on every Interval tick until ctx
// is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.cfg.MaxStartupJitter > 0 {
		jitter := rand.N(s.cfg.MaxStartupJitter)
		slog.InfoContext(ctx, "staleness sweeper starting", "startup_jitter", jitter, "interval", s.cfg.Interval)

		timer := time.NewTimer(jitter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := s.sweepOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "initial staleness sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "staleness sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "staleness sweep failed", "error", err)
			}
		}
	}
}

// sweepOnce runs a single reconciliation pass: stale workers are marked
// stuck (releasing their locks and applying the retry policy), then
// assigned items with no registered worker past the grace window are
// reverted to queued.
func (s *Sweeper) sweepOnce(ctx context.Context) error {
	start := time.Now().UTC()

	acquired, err := s.store.TryAcquireExclusiveRun(ctx, sweeperRunType, s.cfg.HolderID, s.cfg.LeaseDuration, start)
	if err != nil {
		return fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !acquired {
		slog.DebugContext(ctx, "staleness sweep skipped, another instance holds the lease")
		return nil
	}

	staleBefore := start.Add(-s.cfg.StaleWindow)
	stale, err := s.store.ListStaleWorkers(ctx, staleBefore)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("list stale workers: %w", err)
	}

	var stuck, failed int
	for _, w := range stale {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "staleness sweep interrupted", "processed", stuck+failed)
			return nil
		default:
		}

		if _, err := s.registry.Stuck(ctx, w.ID, "heartbeat staleness window exceeded", 0); err != nil {
			slog.ErrorContext(ctx, "staleness sweep: failed to mark worker stuck", "worker_id", w.ID, "error", err)
			failed++
			continue
		}
		stuck++
	}

	reverted, err := s.store.RevertStaleAssigned(ctx, start.Add(-s.cfg.RegistrationGrace), s.registry.policy, start)
	if err != nil {
		slog.ErrorContext(ctx, "staleness sweep: failed to revert stale assignments", "error", err)
	}

	slog.InfoContext(ctx, "staleness sweep completed",
		"stuck", stuck,
		"failed", failed,
		"reverted_assignments", reverted,
		"duration", time.Since(start))
	return nil
}
