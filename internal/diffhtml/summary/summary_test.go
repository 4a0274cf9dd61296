package summary_test

import (
	"context"
	"testing"
	"time"

	"github.com/raysh454/moku-wst/internal/diffhtml/summary"
	"github.com/raysh454/moku-wst/internal/diffhtml/treediff"
	"github.com/raysh454/moku-wst/internal/model"
)

func match(t *testing.T, oldHTML, newHTML string) *treediff.Match {
	t.Helper()
	left, err := treediff.Parse(oldHTML)
	if err != nil {
		t.Fatalf("parse left: %v", err)
	}
	right, err := treediff.Parse(newHTML)
	if err != nil {
		t.Fatalf("parse right: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m, err := treediff.MatchTrees(ctx, left, right, treediff.DefaultOptions())
	if err != nil {
		t.Fatalf("MatchTrees: %v", err)
	}
	return m
}

func TestAddedAndRemovedTextSummary(t *testing.T) {
	oldPage := `<html><body><p id="a">hello</p><p id="gone">leaving soon</p></body></html>`
	newPage := `<html><body><p id="a">hello</p><p id="new">brand new copy</p></body></html>`
	m := match(t, oldPage, newPage)

	oldRoot, newRoot, err := treediff.BuildViews(context.Background(), m)
	if err != nil {
		t.Fatalf("BuildViews: %v", err)
	}

	removed := summary.Removed(oldRoot)
	added := summary.Added(newRoot)

	if len(removed.T) == 0 {
		t.Error("expected removed.T to capture the deleted paragraph's text")
	}
	if len(added.T) == 0 {
		t.Error("expected added.T to capture the inserted paragraph's text")
	}
	if contains(removed.T, "hello") {
		t.Error("unchanged content should not appear in removed.T")
	}
}

func TestAddedAndRemovedImageAndLink(t *testing.T) {
	oldPage := `<html><body><a href="/old">old link</a><img src="/old.png"/></body></html>`
	newPage := `<html><body><a href="/new">new link</a><img src="/new.png"/></body></html>`
	m := match(t, oldPage, newPage)

	oldRoot, newRoot, err := treediff.BuildViews(context.Background(), m)
	if err != nil {
		t.Fatalf("BuildViews: %v", err)
	}

	removed := summary.Removed(oldRoot)
	added := summary.Added(newRoot)

	if !contains(removed.I, "/old.png") {
		t.Errorf("expected removed.I to contain /old.png, got %v", removed.I)
	}
	if !contains(added.I, "/new.png") {
		t.Errorf("expected added.I to contain /new.png, got %v", added.I)
	}
}

func TestEmptyDiffProducesEmptySummaries(t *testing.T) {
	page := `<html><body><p id="a">stable</p></body></html>`
	m := match(t, page, page)

	oldRoot, newRoot, err := treediff.BuildViews(context.Background(), m)
	if err != nil {
		t.Fatalf("BuildViews: %v", err)
	}

	if !summary.Removed(oldRoot).Empty() {
		t.Error("expected no removed content for an unchanged page")
	}
	if !summary.Added(newRoot).Empty() {
		t.Error("expected no added content for an unchanged page")
	}
}

func TestAddedCapturesHrefAndSrcUpdatesOnKeptNodes(t *testing.T) {
	// Both special cases for diffhtml.ClassUpdateTag: an anchor with no
	// children (annotate.go only marks a href change ClassUpdateTag when
	// the anchor has no FirstChild — one with text content instead gets
	// marked ClassInsTag, already handled before this fix), and an img
	// whose src differs only by query string (nodeRatio's img rule
	// compares cleanImgSrc, which strips it, so the node still matches
	// across old/new instead of being treated as delete+insert).
	oldPage := `<html><body><p id="a">stable</p><a id="link" href="/old"></a><img id="pic" src="/pic.png?v=1"/></body></html>`
	newPage := `<html><body><p id="a">stable</p><a id="link" href="/new"></a><img id="pic" src="/pic.png?v=2"/></body></html>`
	m := match(t, oldPage, newPage)

	oldRoot, newRoot, err := treediff.BuildViews(context.Background(), m)
	if err != nil {
		t.Fatalf("BuildViews: %v", err)
	}

	added := summary.Added(newRoot)
	removed := summary.Removed(oldRoot)

	if !contains(added.L, "/new") {
		t.Errorf("expected added.L to record the updated href, got %v", added.L)
	}
	if !contains(added.I, "/pic.png?v=2") {
		t.Errorf("expected added.I to record the updated src, got %v", added.I)
	}
	if contains(removed.L, "/old") || contains(removed.I, "/pic.png?v=1") {
		t.Errorf("an attribute-only update on a kept node must not appear in removed, got L=%v I=%v", removed.L, removed.I)
	}
}

func TestStripCommonCancelsEntriesOnBothSides(t *testing.T) {
	added := model.DiffSummary{T: []string{"moved text", "new text"}, I: []string{"/same.png"}, L: []string{"/kept"}}
	removed := model.DiffSummary{T: []string{"moved text", "gone text"}, I: []string{"/same.png"}, L: []string{}}

	summary.StripCommon(&added, &removed)

	if contains(added.T, "moved text") || contains(removed.T, "moved text") {
		t.Errorf("expected shared text entry stripped from both sides, got added=%v removed=%v", added.T, removed.T)
	}
	if !contains(added.T, "new text") {
		t.Errorf("expected added-only text to survive, got %v", added.T)
	}
	if !contains(removed.T, "gone text") {
		t.Errorf("expected removed-only text to survive, got %v", removed.T)
	}
	if len(added.I) != 0 || len(removed.I) != 0 {
		t.Errorf("expected shared image src stripped from both sides, got added.I=%v removed.I=%v", added.I, removed.I)
	}
	if !contains(added.L, "/kept") {
		t.Errorf("expected added-only link to survive, got %v", added.L)
	}
}

func TestStripCommonOnEntirelyIdenticalSidesLeavesBothEmpty(t *testing.T) {
	added := model.DiffSummary{T: []string{"x"}, I: []string{"/x.png"}, L: []string{"/x"}}
	removed := model.DiffSummary{T: []string{"x"}, I: []string{"/x.png"}, L: []string{"/x"}}

	summary.StripCommon(&added, &removed)

	if !added.Empty() || !removed.Empty() {
		t.Fatalf("expected a pure move to leave both summaries empty, got added=%+v removed=%+v", added, removed)
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
