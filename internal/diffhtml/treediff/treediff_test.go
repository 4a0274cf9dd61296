package treediff_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/moku-wst/internal/diffhtml"
	"github.com/raysh454/moku-wst/internal/diffhtml/treediff"
)

func mustMatch(t *testing.T, oldHTML, newHTML string) *treediff.Match {
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

func TestUnchangedPageProducesNoMarkup(t *testing.T) {
	page := `<html><body><p id="a">hello</p><p id="b">world</p></body></html>`
	m := mustMatch(t, page, page)

	ctx := context.Background()
	oldHTML, newHTML, err := treediff.RenderViews(ctx, m)
	if err != nil {
		t.Fatalf("RenderViews: %v", err)
	}
	for _, class := range []string{diffhtml.ClassInsTag, diffhtml.ClassDelTag, diffhtml.ClassInsText, diffhtml.ClassDelText} {
		if strings.Contains(oldHTML, class) || strings.Contains(newHTML, class) {
			t.Errorf("expected no %q markup for an unchanged page", class)
		}
	}
}

func TestInsertedParagraphMarkedOnNewSideOnly(t *testing.T) {
	oldPage := `<html><body><p id="a">hello</p></body></html>`
	newPage := `<html><body><p id="a">hello</p><p id="b">new paragraph</p></body></html>`
	m := mustMatch(t, oldPage, newPage)

	oldHTML, newHTML, err := treediff.RenderViews(context.Background(), m)
	if err != nil {
		t.Fatalf("RenderViews: %v", err)
	}
	if strings.Contains(oldHTML, "new paragraph") {
		t.Error("old view should not contain content that did not exist yet")
	}
	if !strings.Contains(newHTML, diffhtml.ClassInsTag) {
		t.Error("expected new view to mark the inserted paragraph")
	}
}

func TestDeletedParagraphMarkedOnOldSideOnly(t *testing.T) {
	oldPage := `<html><body><p id="a">hello</p><p id="b">going away</p></body></html>`
	newPage := `<html><body><p id="a">hello</p></body></html>`
	m := mustMatch(t, oldPage, newPage)

	oldHTML, newHTML, err := treediff.RenderViews(context.Background(), m)
	if err != nil {
		t.Fatalf("RenderViews: %v", err)
	}
	if !strings.Contains(oldHTML, diffhtml.ClassDelTag) {
		t.Error("expected old view to mark the deleted paragraph")
	}
	if strings.Contains(newHTML, "going away") {
		t.Error("new view should not retain deleted content")
	}
}

func TestTextChangeHighlightedWordLevel(t *testing.T) {
	oldPage := `<html><body><p id="a">the price is low</p></body></html>`
	newPage := `<html><body><p id="a">the price is high</p></body></html>`
	m := mustMatch(t, oldPage, newPage)

	oldHTML, newHTML, err := treediff.RenderViews(context.Background(), m)
	if err != nil {
		t.Fatalf("RenderViews: %v", err)
	}
	if !strings.Contains(oldHTML, "low") || !strings.Contains(oldHTML, diffhtml.ClassDelText) {
		t.Errorf("expected old view to mark 'low' deleted, got %q", oldHTML)
	}
	if !strings.Contains(newHTML, "high") || !strings.Contains(newHTML, diffhtml.ClassInsText) {
		t.Errorf("expected new view to mark 'high' inserted, got %q", newHTML)
	}
}

func TestJunkTrackingPixelClassifiedAsJunk(t *testing.T) {
	left, _ := treediff.Parse(`<html><body><p>hi</p></body></html>`)
	right, _ := treediff.Parse(`<html><body><p>hi</p><img src="https://bat.bing.com/p?x=1"/></body></html>`)

	var junkNode bool
	for n := range diffhtml.Descendants(right) {
		if n.Data == "img" {
			junkNode = diffhtml.IsJunk(n)
		}
	}
	if !junkNode {
		t.Error("expected bat.bing.com tracking pixel to be classified as junk")
	}

	_ = left
}

func TestIDShortCircuitMatchesSameElementAcrossMoves(t *testing.T) {
	oldPage := `<html><body><div><p id="keep">same text</p></div></body></html>`
	newPage := `<html><body><section><p id="keep">same text</p></section></body></html>`
	m := mustMatch(t, oldPage, newPage)

	found := false
	for orig, matched := range m.L2R {
		if diffhtml.Attr(orig, "id") == "keep" && matched != nil && diffhtml.Attr(matched, "id") == "keep" {
			found = true
		}
	}
	if !found {
		t.Error("expected the id-tagged paragraph to match across its moved parent")
	}
}
