// Package diffhtml holds constants and node-level helpers shared by the
// tree-diff matcher (treediff), the word-level sequence diff (seqdiff), and
// the change-summary extractor (summary). Keeping them here avoids an
// import cycle between those three and lets every rendered diff share one
// visual vocabulary.
package diffhtml

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// IgnoreTags are never matched, diffed, or rendered: style/script carriers
// and vector-graphic internals that contribute no visible content.
var IgnoreTags = map[string]bool{
	"style": true, "base": true, "link": true, "meta": true,
	"script": true, "noscript": true, "title": true, "head": true,
	"svg": true, "defs": true, "polygon": true, "rect": true, "path": true,
}

// UniqueAttrs short-circuits node matching: two elements that both carry
// the same value for one of these attributes are the same node; if only
// one carries it, they are not.
var UniqueAttrs = []string{"id"}

// junkDomains are tracking/ad hosts (and known beacon paths) that IsJunk
// looks for in a node's src or href.
var junkDomains = []string{
	"bat.bing.com", "bat.bing.net", "td.doubleclick.net", "doubleclick.net",
	"googleadservices.com", "pixel.wp.com", "googlesyndication.com",
	"analytics.twitter.com", "google-analytics.com", "images/blank.png",
	"bat.bing",
}

// CSS classes applied to the rendered diff HTML. Matching shoobx/xmldiff's
// palette (green insert, orange delete) but under project-local names.
const (
	ClassInsText   = "diff-ins-text"
	ClassInsTag    = "diff-ins-tag"
	ClassDelText   = "diff-del-text"
	ClassDelTag    = "diff-del-tag"
	ClassUpdateTag = "diff-update-tag-attr"
)

// Stylesheet is inlined into both rendered halves of a diff.
const Stylesheet = `
.diff-ins-text, .diff-ins-tag {
    background-color: #6FDC8C !important;
}
.diff-update-tag-attr {
    border: 2px solid #6FDC8C !important;
}
.diff-del-text, .diff-del-tag {
    background-color: #ffb784 !important;
    text-decoration: line-through;
}
img.diff-del-tag, input.diff-del-tag, embed.diff-del-tag, textarea.diff-del-tag {
    border: 3px solid #ffb784 !important;
}
img.diff-ins-tag, input.diff-ins-tag, embed.diff-ins-tag, textarea.diff-ins-tag {
    border: 3px solid #6FDC8C !important;
}
`

// Attr returns the value of attribute key on n, or "" if absent.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// SetAttr sets attribute key to val on n, replacing any existing value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// AddClass appends class to n's class attribute if not already present.
func AddClass(n *html.Node, class string) {
	existing := Attr(n, "class")
	for _, c := range strings.Fields(existing) {
		if c == class {
			return
		}
	}
	if existing == "" {
		SetAttr(n, "class", class)
		return
	}
	SetAttr(n, "class", existing+" "+class)
}

// HasClass reports whether n's class attribute contains class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// DirectText returns the concatenation of n's direct (non-descendant) text
// children, mirroring lxml's node.xpath('text()').
func DirectText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// IsJunk reports whether node is a tracking pixel, ad script, or invisible
// beacon. The tree-diff matcher and view builders do not call it, so junk
// nodes are matched and annotated like any other node.
func IsJunk(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	tag := strings.ToLower(n.Data)

	hasJunkSrc := func(v string) bool {
		v = strings.ToLower(v)
		for _, d := range junkDomains {
			if strings.Contains(v, d) {
				return true
			}
		}
		return false
	}

	switch tag {
	case "script", "link", "iframe", "a", "img":
		if hasJunkSrc(Attr(n, "src")) || hasJunkSrc(Attr(n, "href")) {
			return true
		}
	}

	switch tag {
	case "img", "iframe", "div", "span":
		style := strings.ToLower(Attr(n, "style"))
		width := strings.TrimSpace(Attr(n, "width"))
		height := strings.TrimSpace(Attr(n, "height"))

		invisible := false
		for _, cond := range []string{
			"display:none", "display: none", "visibility:hidden", "visibility: hidden",
			"width:0", "width: 0", "width:0px", "width: 0px",
			"height:0", "height: 0", "height:0px", "height: 0px",
		} {
			if strings.Contains(style, cond) {
				invisible = true
				break
			}
		}
		zeroDim := func(v string) bool { return v == "0" || strings.HasPrefix(v, "0") }

		if invisible || zeroDim(width) || zeroDim(height) {
			if tag == "div" || tag == "span" {
				for d := range Descendants(n) {
					if d.Type == html.ElementNode && d.DataAtom == atom.Img && hasJunkSrc(Attr(d, "src")) {
						return true
					}
				}
			}
			return true
		}
	}

	return false
}

// Descendants yields every descendant of n in document order.
func Descendants(n *html.Node) func(func(*html.Node) bool) {
	return func(yield func(*html.Node) bool) {
		var walk func(*html.Node) bool
		walk = func(node *html.Node) bool {
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if !yield(c) {
					return false
				}
				if !walk(c) {
					return false
				}
			}
			return true
		}
		walk(n)
	}
}

// PostOrder returns every node under (and including) root in post-order.
func PostOrder(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		out = append(out, n)
	}
	walk(root)
	return out
}

// BreadthFirst returns every node under (and including) root in
// breadth-first order.
func BreadthFirst(root *html.Node) []*html.Node {
	out := []*html.Node{root}
	queue := []*html.Node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

// CloneTree deep-copies a node and all its descendants, detached from any
// parent.
func CloneTree(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:     n.Type,
		DataAtom: n.DataAtom,
		Data:     n.Data,
		Attr:     append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(CloneTree(c))
	}
	return clone
}

// Render serializes n back to an HTML string.
func Render(n *html.Node) (string, error) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}

// InsertStylesheet finds the document's <head> (inserting one as the
// first child of <html> if absent) and prepends the diff stylesheet to
// it, so a rendered diff is visually self-contained.
func InsertStylesheet(root *html.Node) {
	var head *html.Node
	for n := range Descendants(root) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Head {
			head = n
			break
		}
	}
	if head == nil {
		var htmlEl *html.Node
		for n := range Descendants(root) {
			if n.Type == html.ElementNode && n.DataAtom == atom.Html {
				htmlEl = n
				break
			}
		}
		if htmlEl == nil {
			htmlEl = root
		}
		head = &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
		htmlEl.InsertBefore(head, htmlEl.FirstChild)
	}

	style := &html.Node{
		Type: html.ElementNode, Data: "style", DataAtom: atom.Style,
		Attr: []html.Attribute{{Key: "type", Val: "text/css"}},
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: Stylesheet})
	head.InsertBefore(style, head.FirstChild)
}
