// Package summary extracts the {T, I, L} change summary (C7) from an
// annotated tree produced by treediff.BuildViews: the deleted-text/image/
// link triple from the old view, and the inserted-text/image/link triple
// from the new view.
package summary

import (
	"strings"

	"github.com/raysh454/moku-wst/internal/diffhtml"
	"github.com/raysh454/moku-wst/internal/model"
	"golang.org/x/net/html"
)

// Removed walks an old-view tree (as built by treediff.BuildViews) and
// collects the text, image sources, and link targets of every deleted
// node. It ignores diffhtml.ClassUpdateTag (the old view puts it on the
// parent of a deleted option) — an attribute-only update is recorded as
// added, never removed.
func Removed(oldRoot *html.Node) model.DiffSummary {
	return extract(oldRoot, diffhtml.ClassDelTag, diffhtml.ClassDelText, "")
}

// Added walks a new-view tree and collects the text, image sources, and
// link targets of every inserted node, plus the href/src of every kept
// node treediff marked diffhtml.ClassUpdateTag (an anchor or image whose
// target changed without the node itself being inserted).
func Added(newRoot *html.Node) model.DiffSummary {
	return extract(newRoot, diffhtml.ClassInsTag, diffhtml.ClassInsText, diffhtml.ClassUpdateTag)
}

func extract(root *html.Node, tagClass, textClass, updateClass string) model.DiffSummary {
	var out model.DiffSummary
	var walk func(n *html.Node, underMarked bool)
	walk = func(n *html.Node, underMarked bool) {
		if n.Type == html.ElementNode && diffhtml.IgnoreTags[n.Data] {
			return
		}

		marked := underMarked
		updateOnly := false
		if n.Type == html.ElementNode && !underMarked {
			switch {
			case diffhtml.HasClass(n, tagClass) || diffhtml.HasClass(n, textClass):
				marked = true
				if text := collectText(n); text != "" {
					out.T = append(out.T, text)
				}
			case updateClass != "" && diffhtml.HasClass(n, updateClass):
				// A kept a/img whose href/src changed: contributes to L/I
				// only, never T (its text didn't change) and never marks
				// its subtree as inserted.
				updateOnly = true
			}
		}

		if (marked || updateOnly) && n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				if src := diffhtml.Attr(n, "src"); src != "" {
					out.I = append(out.I, src)
				}
			case "a":
				if href := diffhtml.Attr(n, "href"); href != "" {
					out.L = append(out.L, stripHrefPrefix(href))
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, marked)
		}
	}
	walk(root, false)
	return out
}

// collectText gathers every non-whitespace text run under n (excluding
// ignored tags), joined by newlines.
func collectText(n *html.Node) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && diffhtml.IgnoreTags[node.Data] {
			return
		}
		if node.Type == html.TextNode {
			if t := strings.TrimSpace(node.Data); t != "" {
				lines = append(lines, t)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(lines, "\n")
}

// StripCommon removes, from each of T/I/L, every entry present in both
// added and removed: an entry that moved without changing reads as a
// deletion at its old position and an insertion at its new one, and
// §4.7's last rule cancels the two out so a pure move produces no
// summary entries at all.
func StripCommon(added, removed *model.DiffSummary) {
	added.T, removed.T = stripShared(added.T, removed.T)
	added.I, removed.I = stripShared(added.I, removed.I)
	added.L, removed.L = stripShared(added.L, removed.L)
}

// stripShared removes, from each of a and b, up to as many occurrences of
// each value as appear in the other — a value repeated within a side
// still cancels one-for-one against the same count on the opposite side.
func stripShared(a, b []string) ([]string, []string) {
	inA := make(map[string]int, len(a))
	for _, v := range a {
		inA[v]++
	}
	inB := make(map[string]int, len(b))
	for _, v := range b {
		inB[v]++
	}

	drop := func(list []string, own, other map[string]int) []string {
		out := list[:0:0]
		for _, v := range list {
			if own[v] > 0 && other[v] > 0 {
				own[v]--
				other[v]--
				continue
			}
			out = append(out, v)
		}
		return out
	}
	outA := drop(a, inA, inB)
	inA = make(map[string]int, len(a))
	for _, v := range a {
		inA[v]++
	}
	inB = make(map[string]int, len(b))
	for _, v := range b {
		inB[v]++
	}
	outB := drop(b, inB, inA)
	return outA, outB
}

func stripHrefPrefix(href string) string {
	if idx := strings.Index(href, "href:"); idx >= 0 {
		return href[idx+len("href:"):]
	}
	return href
}
