package job

import (
	"context"
	"testing"
	"time"
)

// testRepository runs the behaviour every Repository must provide.
func testRepository(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("Save and FindByID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		job := New("ses-1", "webm")
		job.PushToS3 = true

		if err := repo.Save(ctx, job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		saved, err := repo.FindByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if saved.ID != job.ID || saved.SessionID != "ses-1" || saved.Format != "webm" || !saved.PushToS3 {
			t.Errorf("unexpected saved job: %+v", saved)
		}
	})

	t.Run("Save updates", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		job := New("ses-1", "mp4")
		_ = repo.Save(ctx, job)

		_ = job.Start()
		_ = job.Complete(Output{Path: "/tmp/out.mp4", FileName: "pixel-video.mp4", MIME: "video/mp4", Size: 7, Chunks: 2}, "")
		_ = repo.Save(ctx, job)

		saved, _ := repo.FindByID(ctx, job.ID)
		if saved.Status != StatusCompleted {
			t.Errorf("expected status %s, got %s", StatusCompleted, saved.Status)
		}
		if saved.Output.Size != 7 || saved.Output.Chunks != 2 || saved.Output.FileName != "pixel-video.mp4" {
			t.Errorf("unexpected output: %+v", saved.Output)
		}
	})

	t.Run("FindByID not found", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.FindByID(context.Background(), "nonexistent"); err != ErrJobNotFound {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("FindByID returns a copy", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		job := New("ses-1", "webm")
		_ = repo.Save(ctx, job)

		found, _ := repo.FindByID(ctx, job.ID)
		_ = found.Start()

		original, _ := repo.FindByID(ctx, job.ID)
		if original.Status != StatusInQueue {
			t.Error("modifying returned job status should not affect repository")
		}
	})

	t.Run("List oldest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		jobs, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(jobs) != 0 {
			t.Errorf("expected 0 jobs, got %d", len(jobs))
		}

		first := NewWithID("job-b", "ses", "webm")
		second := NewWithID("job-a", "ses", "webm")
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		_ = repo.Save(ctx, second)
		_ = repo.Save(ctx, first)

		jobs, err = repo.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("expected 2 jobs, got %d", len(jobs))
		}
		if jobs[0].ID != "job-b" || jobs[1].ID != "job-a" {
			t.Errorf("unexpected order: %s, %s", jobs[0].ID, jobs[1].ID)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		job := New("ses", "webm")
		_ = repo.Save(ctx, job)

		if err := repo.Delete(ctx, job.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := repo.FindByID(ctx, job.ID); err != ErrJobNotFound {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
		if err := repo.Delete(ctx, job.ID); err != ErrJobNotFound {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("Concurrent access", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		done := make(chan bool)

		go func() {
			for i := 0; i < 50; i++ {
				_ = repo.Save(ctx, New("ses", "webm"))
			}
			done <- true
		}()
		go func() {
			for i := 0; i < 50; i++ {
				_, _ = repo.List(ctx)
			}
			done <- true
		}()

		<-done
		<-done
	})
}
