package treediff

import (
	"context"
	"strings"

	"github.com/raysh454/moku-wst/internal/diffhtml"
	"github.com/raysh454/moku-wst/internal/diffhtml/seqdiff"
	"golang.org/x/net/html"
)

// BuildViews renders the old (deletions struck through) and new
// (insertions highlighted) annotated trees from a computed Match. Unlike
// the xmldiff-based original, which replays a single edit-action stream
// onto one shared tree, this builds the two views independently off the
// left and right trees directly matched against each other — simpler to
// express over golang.org/x/net/html and sufficient for rendering both
// halves of a diff plus their change summaries.
func BuildViews(ctx context.Context, match *Match) (oldRoot, newRoot *html.Node, err error) {
	oldRoot, err = buildOldView(ctx, match)
	if err != nil {
		return nil, nil, err
	}
	newRoot, err = buildNewView(ctx, match)
	if err != nil {
		return nil, nil, err
	}
	return oldRoot, newRoot, nil
}

// RenderViews is BuildViews followed by serialization, with the diff
// stylesheet inlined into each half.
func RenderViews(ctx context.Context, match *Match) (oldHTML, newHTML string, err error) {
	oldRoot, newRoot, err := BuildViews(ctx, match)
	if err != nil {
		return "", "", err
	}
	diffhtml.InsertStylesheet(oldRoot)
	diffhtml.InsertStylesheet(newRoot)

	oldHTML, err = diffhtml.Render(oldRoot)
	if err != nil {
		return "", "", err
	}
	newHTML, err = diffhtml.Render(newRoot)
	if err != nil {
		return "", "", err
	}
	return oldHTML, newHTML, nil
}

func buildOldView(ctx context.Context, match *Match) (*html.Node, error) {
	clone, origToClone := cloneWithMap(match.Left)

	nodes := diffhtml.BreadthFirst(match.Left)
	for i, orig := range nodes {
		if i%500 == 0 {
			select {
			case <-ctx.Done():
				return nil, ErrTimeout
			default:
			}
		}
		if orig == match.Left || diffhtml.IgnoreTags[tagName(orig)] {
			continue
		}
		c := origToClone[orig]

		rmatch := match.L2R[orig]
		if rmatch == nil {
			markDeleted(c, orig)
			continue
		}
		if isLeafElement(orig) {
			oldText, newText := diffhtml.DirectText(orig), diffhtml.DirectText(rmatch)
			if !seqdiff.Equal(oldText, newText) {
				oldNodes, _ := seqdiff.Render(oldText, newText)
				replaceDirectText(c, oldNodes)
			}
		}
	}
	return clone, nil
}

func buildNewView(ctx context.Context, match *Match) (*html.Node, error) {
	clone, origToClone := cloneWithMap(match.Right)

	nodes := diffhtml.BreadthFirst(match.Right)
	for i, orig := range nodes {
		if i%500 == 0 {
			select {
			case <-ctx.Done():
				return nil, ErrTimeout
			default:
			}
		}
		if orig == match.Right || diffhtml.IgnoreTags[tagName(orig)] {
			continue
		}
		c := origToClone[orig]

		lmatch := match.R2L[orig]
		if lmatch == nil {
			markInserted(c, orig)
			continue
		}

		switch tagName(orig) {
		case "a":
			if diffhtml.Attr(lmatch, "href") != diffhtml.Attr(orig, "href") {
				if c.FirstChild != nil {
					diffhtml.AddClass(c, diffhtml.ClassInsTag)
				} else {
					diffhtml.AddClass(c, diffhtml.ClassUpdateTag)
				}
			}
		case "img":
			if diffhtml.Attr(lmatch, "src") != diffhtml.Attr(orig, "src") {
				diffhtml.AddClass(c, diffhtml.ClassUpdateTag)
			}
		}

		if isLeafElement(orig) {
			oldText, newText := diffhtml.DirectText(lmatch), diffhtml.DirectText(orig)
			if !seqdiff.Equal(oldText, newText) {
				_, newNodes := seqdiff.Render(oldText, newText)
				replaceDirectText(c, newNodes)
			}
		}
	}
	return clone, nil
}

func markDeleted(c, orig *html.Node) {
	switch tagName(orig) {
	case "a", "img":
		diffhtml.AddClass(c, diffhtml.ClassDelTag)
	case "option":
		if c.Parent != nil {
			diffhtml.AddClass(c.Parent, diffhtml.ClassUpdateTag)
		}
	default:
		if strings.TrimSpace(diffhtml.DirectText(orig)) != "" || c.FirstChild != nil {
			diffhtml.AddClass(c, diffhtml.ClassDelTag)
		}
	}
}

func markInserted(c, orig *html.Node) {
	switch tagName(orig) {
	case "a", "img":
		diffhtml.AddClass(c, diffhtml.ClassInsTag)
	case "option":
		if c.Parent != nil {
			diffhtml.AddClass(c.Parent, diffhtml.ClassUpdateTag)
		}
	default:
		if strings.TrimSpace(diffhtml.DirectText(orig)) != "" || c.FirstChild != nil {
			diffhtml.AddClass(c, diffhtml.ClassInsTag)
		}
	}
}

func isLeafElement(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return false
		}
	}
	return true
}

func replaceDirectText(c *html.Node, nodes []*html.Node) {
	for ch := c.FirstChild; ch != nil; {
		next := ch.NextSibling
		c.RemoveChild(ch)
		ch = next
	}
	for _, n := range nodes {
		c.AppendChild(n)
	}
}

// cloneWithMap deep-copies n, returning the clone root and a map from
// every original node to its corresponding clone.
func cloneWithMap(n *html.Node) (*html.Node, map[*html.Node]*html.Node) {
	m := map[*html.Node]*html.Node{}
	var walk func(*html.Node) *html.Node
	walk = func(orig *html.Node) *html.Node {
		clone := &html.Node{
			Type:     orig.Type,
			DataAtom: orig.DataAtom,
			Data:     orig.Data,
			Attr:     append([]html.Attribute(nil), orig.Attr...),
		}
		m[orig] = clone
		for c := orig.FirstChild; c != nil; c = c.NextSibling {
			clone.AppendChild(walk(c))
		}
		return clone
	}
	return walk(n), m
}
