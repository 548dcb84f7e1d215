package job

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	j := NewWithID("video-1-abcdef01")
	if err := repo.Save(ctx, j); err != nil {
		t.Fatalf("Save: %v", err)
	}

	found, err := repo.FindByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.ID != j.ID || found.Status != StatusUploaded {
		t.Errorf("unexpected job: %+v", found)
	}

	// Mutating the returned clone must not leak into the repository.
	found.Status = StatusExtracted
	again, _ := repo.FindByID(ctx, j.ID)
	if again.Status != StatusUploaded {
		t.Errorf("repository state mutated through clone: %s", again.Status)
	}
}

func TestMemoryRepository_FindMissing(t *testing.T) {
	repo := NewMemoryRepository()
	if _, err := repo.FindByID(context.Background(), "nope"); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_ListKeepsFirstSaveOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_ = repo.Save(ctx, NewWithID(id))
	}
	// Saving again must not move "c" to the end.
	_ = repo.Save(ctx, NewWithID("c"))

	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("List returned %d jobs, want 3", len(jobs))
	}
	want := []string{"c", "a", "b"}
	for i, j := range jobs {
		if j.ID != want[i] {
			t.Fatalf("List()[%d] = %s, want %s", i, j.ID, want[i])
		}
	}
}

func TestMemoryRepository_ListByStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	uploaded := NewWithID("uploaded")
	cleaned := NewWithID("cleaned")
	cleaned.Status = StatusCleaned
	failed := NewWithID("failed")
	failed.Status = StatusFailed
	for _, j := range []*Job{uploaded, cleaned, failed} {
		_ = repo.Save(ctx, j)
	}

	jobs, err := repo.List(ctx, StatusUploaded, StatusFailed)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "uploaded" || jobs[1].ID != "failed" {
		t.Errorf("List(UPLOADED, FAILED) = %v", jobIDs(jobs))
	}

	jobs, _ = repo.List(ctx, StatusExtracted)
	if len(jobs) != 0 {
		t.Errorf("List(EXTRACTED) = %v, want none", jobIDs(jobs))
	}
}

func jobIDs(jobs []*Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}

func TestMemoryRepository_Concurrent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = repo.Save(ctx, NewWithID("shared"))
		}()
		go func() {
			defer wg.Done()
			_, _ = repo.FindByID(ctx, "shared")
		}()
	}
	wg.Wait()

	if _, err := repo.FindByID(ctx, "shared"); err != nil {
		t.Errorf("FindByID after concurrent saves: %v", err)
	}
}
