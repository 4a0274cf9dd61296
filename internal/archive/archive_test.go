package archive

import (
	"context"
	"testing"

	"github.com/raysh454/moku-wst/internal/model"
	"github.com/raysh454/moku-wst/internal/testutil"
)

func TestRunArchivesCandidatesAndDeletesBlobs(t *testing.T) {
	store := testutil.NewDummyStore()
	blobs := testutil.NewDummyBlobStore()
	ctx := context.Background()

	if err := blobs.Put("diff/old/1/1.jpg", []byte("old"), "image/jpeg", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := blobs.Put("diff/new/1/1.jpg", []byte("new"), "image/jpeg", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	dc, _, err := store.CreateDiffContent(ctx, &model.DiffContent{
		NewSnapshotID:   1,
		OldDiffImageKey: "diff/old/1/1.jpg",
		NewDiffImageKey: "diff/new/1/1.jpg",
	})
	if err != nil {
		t.Fatalf("CreateDiffContent: %v", err)
	}

	svc := &Service{Store: store, Blobs: blobs, Logger: &testutil.DummyLogger{}}
	res, err := svc.Run(ctx, Options{DurationMonths: 9, MaxItems: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Archived != 1 {
		t.Fatalf("Archived = %d, want 1", res.Archived)
	}

	if _, err := store.GetDiffContentByNewSnapshot(ctx, 1); err == nil {
		t.Fatal("expected diff_content to be gone after archival")
	}
	if _, err := blobs.Get("diff/old/1/1.jpg"); err == nil {
		t.Fatal("expected old-side image blob to be deleted")
	}
	if _, err := blobs.Get("diff/new/1/1.jpg"); err == nil {
		t.Fatal("expected new-side image blob to be deleted")
	}

	_ = dc
}

func TestRunDryRunDeletesNothing(t *testing.T) {
	store := testutil.NewDummyStore()
	blobs := testutil.NewDummyBlobStore()
	ctx := context.Background()

	if _, _, err := store.CreateDiffContent(ctx, &model.DiffContent{NewSnapshotID: 2}); err != nil {
		t.Fatalf("CreateDiffContent: %v", err)
	}

	svc := &Service{Store: store, Blobs: blobs, Logger: &testutil.DummyLogger{}}
	res, err := svc.Run(ctx, Options{DurationMonths: 9, MaxItems: 10, DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Candidates != 1 || res.Archived != 0 {
		t.Fatalf("res = %+v, want Candidates=1 Archived=0", res)
	}
	if _, err := store.GetDiffContentByNewSnapshot(ctx, 2); err != nil {
		t.Fatal("expected diff_content to still exist after a dry run")
	}
}

func TestRunRespectsMaxItems(t *testing.T) {
	store := testutil.NewDummyStore()
	blobs := testutil.NewDummyBlobStore()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if _, _, err := store.CreateDiffContent(ctx, &model.DiffContent{NewSnapshotID: i}); err != nil {
			t.Fatalf("CreateDiffContent: %v", err)
		}
	}

	svc := &Service{Store: store, Blobs: blobs, Logger: &testutil.DummyLogger{}}
	res, err := svc.Run(ctx, Options{DurationMonths: 9, MaxItems: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Candidates != 2 {
		t.Fatalf("Candidates = %d, want 2 (max items cap)", res.Candidates)
	}
}
