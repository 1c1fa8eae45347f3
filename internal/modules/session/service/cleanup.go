package service

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	sessionout "komerge/internal/modules/session/port/out"
	"komerge/internal/platform/clock"
	"komerge/internal/platform/logctx"
	"komerge/internal/platform/metrics"
)

// CleanupScheduler reclaims sessions whose file retention horizon passed,
// regardless of how recently they were renewed.
type CleanupScheduler struct {
	store    *SessionStore
	files    sessionout.FileStore
	clock    clock.Clock
	interval time.Duration
	fileTTL  time.Duration
	metrics  *metrics.Recorder
}

func NewCleanupScheduler(store *SessionStore, files sessionout.FileStore, clk clock.Clock, interval, fileTTL time.Duration, rec *metrics.Recorder) *CleanupScheduler {
	return &CleanupScheduler{store: store, files: files, clock: clk, interval: interval, fileTTL: fileTTL, metrics: rec}
}

// Run sweeps orphans once, then on every interval sweeps due sessions followed
// by orphans until ctx is cancelled. A sweep in progress always completes.
func (c *CleanupScheduler) Run(ctx context.Context) error {
	log := logctx.FromContext(ctx)
	work := context.WithoutCancel(ctx)
	if _, err := c.SweepOrphans(work); err != nil {
		log.Warn().Err(err).Msg("orphan sweep failed")
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("cleanup scheduler stopped")
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			if _, err := c.Cycle(work); err != nil {
				log.Warn().Err(err).Msg("cleanup cycle incomplete")
			}
		}
	}
}

// SweepReport counts what one cleanup cycle reclaimed.
type SweepReport struct {
	Sessions  int
	Orphans   int
	Remaining int
}

// Cycle sweeps due sessions, then orphaned directories, so files a failed
// delete left behind are reclaimed on the same or a later cycle.
func (c *CleanupScheduler) Cycle(ctx context.Context) (SweepReport, error) {
	var result *multierror.Error
	removed, err := c.Sweep(ctx)
	if err != nil {
		result = multierror.Append(result, err)
	}
	orphans, err := c.SweepOrphans(ctx)
	if err != nil {
		result = multierror.Append(result, err)
	}
	return SweepReport{Sessions: removed, Orphans: orphans, Remaining: c.store.Len()}, result.ErrorOrNil()
}

// Sweep deletes every session due at the current time. Failures do not stop
// the sweep; they are collected and returned together.
func (c *CleanupScheduler) Sweep(ctx context.Context) (int, error) {
	var result *multierror.Error
	removed := 0
	for _, sessionID := range c.store.Due(c.clock.Now()) {
		if err := c.store.Delete(ctx, sessionID); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		removed++
	}
	c.metrics.Swept(removed)
	if removed > 0 {
		log := logctx.FromContext(ctx)
		log.Info().Int("removed", removed).Int("remaining", c.store.Len()).Msg("swept expired sessions")
	}
	return removed, result.ErrorOrNil()
}

// SweepOrphans removes session directories no live session owns once they are
// older than the file TTL. They are left behind by restarts and by deletes
// whose file removal failed.
func (c *CleanupScheduler) SweepOrphans(ctx context.Context) (int, error) {
	entries, err := c.files.List()
	if err != nil {
		return 0, err
	}
	now := c.clock.Now()
	var result *multierror.Error
	removed := 0
	for _, e := range entries {
		if c.store.Has(e.ID) || now.Sub(e.ModTime) < c.fileTTL {
			continue
		}
		if err := c.files.Remove(e.ID); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log := logctx.FromContext(ctx)
		log.Info().Int("removed", removed).Msg("swept orphaned session files")
	}
	return removed, result.ErrorOrNil()
}
