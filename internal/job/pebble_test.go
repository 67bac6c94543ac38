package job

import (
	"context"
	"testing"
)

func openTestPebble(t *testing.T, dir string) *PebbleRepository {
	t.Helper()
	repo, err := OpenPebbleRepository(dir, nil)
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return repo
}

func TestPebbleRepository(t *testing.T) {
	testRepository(t, func(t *testing.T) Repository {
		repo := openTestPebble(t, t.TempDir())
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}

func TestPebbleRepository_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo := openTestPebble(t, dir)
	job := New("ses-1", "webm")
	_ = job.Start()
	if err := job.Fail("export failed: webm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestPebble(t, dir)
	defer func() { _ = reopened.Close() }()

	saved, err := reopened.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Status != StatusFailed || saved.Error != "export failed: webm" {
		t.Errorf("unexpected job after reopen: %+v", saved)
	}
	if !saved.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("expected CreatedAt %v, got %v", job.CreatedAt, saved.CreatedAt)
	}
}

func TestPebbleRepository_CancelledContext(t *testing.T) {
	repo := openTestPebble(t, t.TempDir())
	defer func() { _ = repo.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := repo.Save(ctx, New("ses", "webm")); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFailInterrupted_AfterReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo := openTestPebble(t, dir)
	queued := New("ses-1", "webm")
	running := New("ses-2", "mp4")
	_ = running.Start()
	done := New("ses-3", "png")
	_ = done.Start()
	_ = done.Complete(Output{FileName: "pixel-frame.png", MIME: "image/png"}, "/files/pixel-frame.png")
	for _, j := range []*Job{queued, running, done} {
		if err := repo.Save(ctx, j); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestPebble(t, dir)
	defer func() { _ = reopened.Close() }()

	n, err := FailInterrupted(ctx, reopened, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 interrupted jobs, got %d", n)
	}

	for _, id := range []string{queued.ID, running.ID} {
		saved, err := reopened.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if saved.Status != StatusFailed || saved.Error != InterruptedMessage {
			t.Errorf("expected %s to be failed as interrupted, got %+v", id, saved)
		}
	}

	saved, err := reopened.FindByID(ctx, done.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Status != StatusCompleted {
		t.Errorf("expected completed job untouched, got %s", saved.Status)
	}

	// a second pass finds nothing left to fail
	if n, err := FailInterrupted(ctx, reopened, nil); err != nil || n != 0 {
		t.Errorf("expected no jobs on second pass, got %d, %v", n, err)
	}
}
