package lease

import (
	"testing"
)

func TestKeyForFormatsJobFrequencyShard(t *testing.T) {
	got := KeyFor("fetch", "24h", 3)
	want := "fetch.24h.shard3"
	if got != want {
		t.Fatalf("KeyFor() = %q, want %q", got, want)
	}
}

func TestTryAcquireIsExclusiveAcrossLeaseHandles(t *testing.T) {
	dir := t.TempDir()
	key := KeyFor("render-diffs", "1h", 0)

	first, err := New(dir, key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, err := first.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected first handle to acquire the lease")
	}
	defer first.Release()

	second, err := New(dir, key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, err = second.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if ok {
		t.Fatalf("expected second handle to fail to acquire an already-held lease")
	}
}

func TestTryAcquireSucceedsAfterRelease(t *testing.T) {
	dir := t.TempDir()
	key := KeyFor("archive", "24h", 0)

	first, err := New(dir, key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, err := first.TryAcquire()
	if err != nil || !ok {
		t.Fatalf("TryAcquire() = %v, %v, want true, nil", ok, err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second, err := New(dir, key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, err = second.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected lease to be acquirable again after release")
	}
	defer second.Release()
}
