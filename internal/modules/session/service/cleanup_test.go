package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	sessionout "komerge/internal/modules/session/port/out"
	"komerge/internal/modules/session/service"
	apperrors "komerge/internal/platform/errors"
)

func TestSweepRemovesDueSessionsEvenWhenRenewed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, service.TTLs{Session: time.Hour, File: 2 * time.Hour})
	scheduler := service.NewCleanupScheduler(f.store, f.files, f.clock, time.Minute, 2*time.Hour, f.metrics)

	early, err := f.store.Create(context.Background(), scenarioUpload(t))
	if err != nil {
		t.Fatalf("create early: %v", err)
	}
	f.clock.Advance(30 * time.Minute)
	late, err := f.store.Create(context.Background(), scenarioUpload(t))
	if err != nil {
		t.Fatalf("create late: %v", err)
	}

	f.clock.Advance(50 * time.Minute)
	if _, err := f.store.Renew(context.Background(), early.ID); !errors.Is(err, apperrors.ErrExpired) {
		t.Fatalf("early session liveness already lapsed, expected expired, got %v", err)
	}
	renewal, err := f.store.Renew(context.Background(), late.ID)
	if err != nil {
		t.Fatalf("renew late: %v", err)
	}
	if !renewal.FileCleanupAt.Equal(late.FileCleanupAt) {
		t.Fatalf("renewal must not move file cleanup, got %s want %s", renewal.FileCleanupAt, late.FileCleanupAt)
	}
	if n, err := scheduler.Sweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("nothing is due yet, got %d %v", n, err)
	}

	f.clock.Advance(40 * time.Minute)
	if n, err := scheduler.Sweep(context.Background()); err != nil || n != 1 {
		t.Fatalf("expected early session swept, got %d %v", n, err)
	}
	if _, err := os.Stat(filepath.Dir(early.UploadPath)); !os.IsNotExist(err) {
		t.Fatalf("early session files must be gone")
	}
	if _, err := f.store.Get(context.Background(), late.ID); err != nil {
		t.Fatalf("late session must survive: %v", err)
	}

	f.clock.Advance(30 * time.Minute)
	if n, err := scheduler.Sweep(context.Background()); err != nil || n != 1 {
		t.Fatalf("expected late session swept despite renewal, got %d %v", n, err)
	}
	if _, err := f.store.Get(context.Background(), late.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if testutil.ToFloat64(f.metrics.SweepRemoved) != 2 {
		t.Fatalf("expected two swept sessions recorded")
	}
}

func TestSweepToleratesFilesAlreadyGone(t *testing.T) {
	t.Parallel()
	f := newFixture(t, service.TTLs{Session: time.Hour, File: time.Hour})
	scheduler := service.NewCleanupScheduler(f.store, f.files, f.clock, time.Minute, time.Hour, f.metrics)
	session, err := f.store.Create(context.Background(), scenarioUpload(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := os.RemoveAll(filepath.Dir(session.UploadPath)); err != nil {
		t.Fatalf("remove files: %v", err)
	}
	f.clock.Advance(time.Hour)
	if n, err := scheduler.Sweep(context.Background()); err != nil || n != 1 {
		t.Fatalf("expected sweep to succeed, got %d %v", n, err)
	}
}

func TestSweepOrphansRemovesOnlyStaleUnownedDirs(t *testing.T) {
	t.Parallel()
	f := newFixture(t, service.TTLs{Session: time.Hour, File: time.Hour})
	scheduler := service.NewCleanupScheduler(f.store, f.files, f.clock, time.Minute, time.Hour, f.metrics)

	live, err := f.store.Create(context.Background(), scenarioUpload(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, id := range []string{"stale", "fresh"} {
		if _, err := f.files.SaveUpload(context.Background(), id, strings.NewReader("x")); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	old := f.clock.Now().Add(-2 * time.Hour)
	for _, id := range []string{"stale", live.ID} {
		if err := os.Chtimes(filepath.Join(f.root, id), old, old); err != nil {
			t.Fatalf("chtimes %s: %v", id, err)
		}
	}
	if err := os.Chtimes(filepath.Join(f.root, "fresh"), f.clock.Now(), f.clock.Now()); err != nil {
		t.Fatalf("chtimes fresh: %v", err)
	}

	n, err := scheduler.SweepOrphans(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected one orphan removed, got %d %v", n, err)
	}
	for id, want := range map[string]bool{"stale": false, "fresh": true, live.ID: true} {
		_, statErr := os.Stat(filepath.Join(f.root, id))
		if exists := statErr == nil; exists != want {
			t.Fatalf("%s: exists=%v, want %v", id, exists, want)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, service.TTLs{Session: time.Hour, File: time.Hour})
	scheduler := service.NewCleanupScheduler(f.store, f.files, f.clock, time.Millisecond, time.Hour, f.metrics)
	if _, err := f.store.Create(context.Background(), scenarioUpload(t)); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for f.store.Len() != 0 {
		select {
		case <-deadline:
			t.Fatalf("scheduler never swept the due session")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduler did not stop after cancel")
	}
}

// flakyFiles fails the first n removals.
type flakyFiles struct {
	sessionout.FileStore
	failures atomic.Int32
	removes  atomic.Int32
}

func (f *flakyFiles) Remove(sessionID string) error {
	f.removes.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("device busy")
	}
	return f.FileStore.Remove(sessionID)
}

func TestRunReclaimsFilesLeftByFailedDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t, service.TTLs{Session: time.Hour, File: time.Hour})
	files := &flakyFiles{FileStore: f.files}
	files.failures.Store(1)
	store := service.NewSessionStore(f.clock, &seqID{}, files, f.stats, service.TTLs{Session: time.Hour, File: time.Hour}, f.metrics)
	scheduler := service.NewCleanupScheduler(store, files, f.clock, time.Millisecond, time.Hour, f.metrics)

	session, err := store.Create(context.Background(), scenarioUpload(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	dir := filepath.Dir(session.UploadPath)
	f.clock.Advance(time.Hour)
	old := f.clock.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(dir, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) && store.Len() == 0 {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatalf("session directory was never reclaimed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if files.removes.Load() < 2 {
		t.Fatalf("expected a failed removal followed by a reclaim, got %d removals", files.removes.Load())
	}
}
