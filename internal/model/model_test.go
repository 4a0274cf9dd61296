package model

import (
	"testing"
	"time"
)

func TestFrequencyHours(t *testing.T) {
	cases := map[Frequency]int{
		Freq6h:          6,
		Freq12h:         12,
		Freq24h:         24,
		Frequency("bogus"): 24,
	}
	for f, want := range cases {
		if got := f.Hours(); got != want {
			t.Errorf("Frequency(%q).Hours() = %d, want %d", f, got, want)
		}
	}
}

func TestSourceHasActiveClientBinding(t *testing.T) {
	s := &Source{ClientBindings: []ClientBinding{{ClientID: 1, Active: false}, {ClientID: 2, Active: true}}}
	if !s.HasActiveClientBinding() {
		t.Fatalf("expected true with one active binding")
	}

	s2 := &Source{ClientBindings: []ClientBinding{{ClientID: 1, Active: false}}}
	if s2.HasActiveClientBinding() {
		t.Fatalf("expected false with no active bindings")
	}

	s3 := &Source{}
	if s3.HasActiveClientBinding() {
		t.Fatalf("expected false with no bindings at all")
	}
}

func TestSourceDueAt(t *testing.T) {
	s := &Source{Frequency: Freq12h}
	if got := s.DueAt(); !got.IsZero() {
		t.Fatalf("DueAt() with nil LastRun = %v, want zero", got)
	}

	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.LastRun = &last
	want := last.Add(12 * time.Hour)
	if got := s.DueAt(); !got.Equal(want) {
		t.Fatalf("DueAt() = %v, want %v", got, want)
	}
}

func TestDiffSummaryEmpty(t *testing.T) {
	if !(DiffSummary{}).Empty() {
		t.Fatalf("zero-value DiffSummary should be empty")
	}
	if (DiffSummary{T: []string{"changed"}}).Empty() {
		t.Fatalf("DiffSummary with text should not be empty")
	}
	if (DiffSummary{I: []string{"img.png"}}).Empty() {
		t.Fatalf("DiffSummary with an image should not be empty")
	}
	if (DiffSummary{L: []string{"https://example.com"}}).Empty() {
		t.Fatalf("DiffSummary with a link should not be empty")
	}
}

func TestDiffHtmlIsFirstFetch(t *testing.T) {
	if !(&DiffHtml{}).IsFirstFetch() {
		t.Fatalf("DiffHtml with nil OldSnapshotID should be a first fetch")
	}
	old := int64(5)
	if (&DiffHtml{OldSnapshotID: &old}).IsFirstFetch() {
		t.Fatalf("DiffHtml with an OldSnapshotID should not be a first fetch")
	}
}

func TestDiffContentDegraded(t *testing.T) {
	if !(&DiffContent{}).Degraded() {
		t.Fatalf("DiffContent with no image keys should be degraded")
	}
	if (&DiffContent{OldDiffImageKey: "a", NewDiffImageKey: "b"}).Degraded() {
		t.Fatalf("DiffContent with both image keys should not be degraded")
	}
	if (&DiffContent{NewDiffImageKey: "b"}).Degraded() {
		t.Fatalf("a first-fetch DiffContent (no old side by design) with only a new image key should not count degraded")
	}
}
