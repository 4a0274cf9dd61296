// Package treediff implements the tree-edit-distance content matcher
// (C5): given the previous and current normalized snapshot HTML, it finds
// the best correspondence between old and new DOM nodes, then renders an
// annotated old view (deletions struck through) and new view (insertions
// highlighted), from which package summary extracts the {T, I, L} change
// summary for each.
//
// Node correspondence follows a node-ratio scoring scheme — special rules
// for img/a/option/label/input/textarea, a unique-attribute ("id")
// short-circuit, and a leaf-text/child-structure blended score for
// everything else — matched via a fast longest-common-subsequence pass
// followed by a greedy threshold pass, the same two-phase shape used by
// shoobx/xmldiff (the library this component's behavior is ported from;
// no Go tree-diff library exists anywhere in the example pack, so this
// package reimplements the matching core directly on golang.org/x/net/html
// trees rather than depending on an XML-specific library).
package treediff

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/raysh454/moku-wst/internal/diffhtml"
	"golang.org/x/net/html"
)

// Ratio-mode constants, as accepted by --ratio-mode: they control which
// tags are treated as text leaves (their node text is their direct text
// only, ignoring child structure) rather than being scored by child
// correspondence. "fast"/"faster" add the common block-level text tags
// on top of the always-leaf option/label.
const (
	RatioModeAccurate = "accurate"
	RatioModeFast     = "fast"
	RatioModeFaster   = "faster"
)

// blockTextTags are treated as text leaves under fast/faster ratio mode.
var blockTextTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
}

// Options tunes the matcher.
type Options struct {
	// F is the minimum node-ratio score the greedy pass accepts as a match.
	F float64
	// FastMatch enables the LCS pre-pass before the greedy O(n*m) pass.
	// It is independent of RatioMode and defaults to true via
	// DefaultOptions — the original system always runs it regardless of
	// ratio mode.
	FastMatch bool
	// RatioMode is one of RatioModeAccurate/Fast/Faster; it widens the
	// leaf-tag set computeNodeText treats as text-only under fast/faster.
	RatioMode string
}

// DefaultOptions mirrors the original system's defaults.
func DefaultOptions() Options {
	return Options{F: 0.5, FastMatch: true, RatioMode: RatioModeAccurate}
}

// isBlockTextLeaf reports whether tag should be treated as a text leaf
// under opts' ratio mode, beyond the always-leaf option/label.
func isBlockTextLeaf(opts Options, tag string) bool {
	switch opts.RatioMode {
	case RatioModeFast, RatioModeFaster:
		return blockTextTags[tag]
	default:
		return false
	}
}

// ErrTimeout is returned when ctx is canceled before matching completes.
// The original system bounded this step with a 300-second SIGALRM; the
// Go equivalent is a context deadline the caller controls.
var ErrTimeout = fmt.Errorf("treediff: match timed out")

// Match holds the computed correspondence between a left (old) and right
// (new) tree.
type Match struct {
	Left, Right *html.Node
	L2R         map[*html.Node]*html.Node
	R2L         map[*html.Node]*html.Node
}

// Parse parses a raw HTML document into its root node.
func Parse(rawHTML string) (*html.Node, error) {
	return html.Parse(strings.NewReader(rawHTML))
}

type matcher struct {
	opts      Options
	textCache map[*html.Node]string
}

// MatchTrees computes the node correspondence between left and right.
func MatchTrees(ctx context.Context, left, right *html.Node, opts Options) (*Match, error) {
	m := &matcher{opts: opts, textCache: map[*html.Node]string{}}

	lnodes := diffhtml.PostOrder(left)
	rnodes := diffhtml.PostOrder(right)
	lnodes = removeNode(lnodes, left)
	rnodes = removeNode(rnodes, right)

	result := &Match{
		Left: left, Right: right,
		L2R: map[*html.Node]*html.Node{},
		R2L: map[*html.Node]*html.Node{},
	}
	appendMatch := func(l, r *html.Node) {
		if l != nil {
			result.L2R[l] = r
		}
		if r != nil {
			result.R2L[r] = l
		}
	}

	if opts.FastMatch {
		pairs := m.lcsMatch(lnodes, rnodes, 0.5)
		matchedL := map[*html.Node]bool{}
		matchedR := map[*html.Node]bool{}
		for _, p := range pairs {
			appendMatch(lnodes[p[0]], rnodes[p[1]])
			matchedL[lnodes[p[0]]] = true
			matchedR[rnodes[p[1]]] = true
		}
		lnodes = filterOut(lnodes, matchedL)
		rnodes = filterOut(rnodes, matchedR)
	}

	remainingR := rnodes
	for i, lnode := range lnodes {
		if i%200 == 0 {
			select {
			case <-ctx.Done():
				return nil, ErrTimeout
			default:
			}
		}
		if diffhtml.IgnoreTags[tagName(lnode)] {
			continue
		}

		best := -1.0
		var bestNode *html.Node
		bestIdx := -1
		for idx, rnode := range remainingR {
			if diffhtml.IgnoreTags[tagName(rnode)] {
				continue
			}
			ratio := m.nodeRatio(lnode, rnode)
			if ratio > best {
				best, bestNode, bestIdx = ratio, rnode, idx
			}
			if ratio == 1.0 {
				break
			}
		}

		if best >= opts.F {
			appendMatch(lnode, bestNode)
			if bestIdx >= 0 {
				remainingR = append(append([]*html.Node{}, remainingR[:bestIdx]...), remainingR[bestIdx+1:]...)
			}
		}
	}

	appendMatch(left, right)
	return result, nil
}

func removeNode(nodes []*html.Node, target *html.Node) []*html.Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}

func filterOut(nodes []*html.Node, excluded map[*html.Node]bool) []*html.Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if !excluded[n] {
			out = append(out, n)
		}
	}
	return out
}

// lcsMatch returns index pairs (i into a, j into b) forming the longest
// subsequence of pairs satisfying ratio(a[i], b[j]) >= threshold, in order.
func (m *matcher) lcsMatch(a, b []*html.Node, threshold float64) [][2]int {
	n, k := len(a), len(b)
	ok := make([][]bool, n)
	for i := range ok {
		ok[i] = make([]bool, k)
		for j := range ok[i] {
			if diffhtml.IgnoreTags[tagName(a[i])] || diffhtml.IgnoreTags[tagName(b[j])] {
				continue
			}
			ok[i][j] = m.nodeRatio(a[i], b[j]) >= threshold
		}
	}

	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, k+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := k - 1; j >= 0; j-- {
			if ok[i][j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var pairs [][2]int
	i, j := 0, 0
	for i < n && j < k {
		switch {
		case ok[i][j]:
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}

func tagName(n *html.Node) string {
	if n.Type == html.ElementNode {
		return n.Data
	}
	return ""
}

func firstDirectText(n *html.Node) string {
	if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
		return n.FirstChild.Data
	}
	return ""
}

var wsRE = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(wsRE.ReplaceAllString(s, " "))
}

func cleanImgSrc(src string) string {
	if idx := strings.Index(src, "?"); idx >= 0 {
		return src[:idx]
	}
	return src
}

// nodeRatio scores how likely left and right are "the same node", from 0
// (certainly not) to 1 (certainly so).
func (m *matcher) nodeRatio(left, right *html.Node) float64 {
	ltag, rtag := tagName(left), tagName(right)

	if ltag == "img" || rtag == "img" {
		if cleanImgSrc(diffhtml.Attr(left, "src")) != cleanImgSrc(diffhtml.Attr(right, "src")) {
			return 0
		}
	}
	if ltag == "a" || rtag == "a" {
		if diffhtml.Attr(left, "href") != diffhtml.Attr(right, "href") && firstDirectText(left) != firstDirectText(right) {
			return 0
		}
	}
	if ltag == "option" || rtag == "option" {
		if firstDirectText(left) != firstDirectText(right) {
			return 0
		}
	}
	if ltag == "label" || rtag == "label" {
		if firstDirectText(left) != firstDirectText(right) {
			return 0
		}
	}
	if ltag == "input" || ltag == "textarea" || rtag == "input" || rtag == "textarea" {
		if ltag != rtag {
			return 0
		}
		lh, _ := diffhtml.Render(left)
		rh, _ := diffhtml.Render(right)
		if strings.TrimSpace(lh) == strings.TrimSpace(rh) {
			return 1
		}
		return 0
	}
	if left.Type == html.CommentNode || right.Type == html.CommentNode {
		if left.Type == html.CommentNode && right.Type == html.CommentNode {
			return sequenceRatio(left.Data, right.Data)
		}
		return 0
	}

	for _, attrName := range diffhtml.UniqueAttrs {
		lv, lok := attrLookup(left, attrName)
		rv, rok := attrLookup(right, attrName)
		if lok || rok {
			if lv == rv {
				return 1
			}
			return 0
		}
	}

	leaf := sequenceRatio(m.nodeText(left), m.nodeText(right))
	if cr, ok := m.childRatio(left, right); ok {
		return (leaf + cr) / 2
	}
	return leaf
}

func attrLookup(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func (m *matcher) nodeText(n *html.Node) string {
	if cached, ok := m.textCache[n]; ok {
		return cached
	}
	text := computeNodeText(m.opts, n)
	m.textCache[n] = text
	return text
}

func computeNodeText(opts Options, n *html.Node) string {
	tag := tagName(n)
	if diffhtml.IgnoreTags[tag] {
		return ""
	}
	if tag == "option" || tag == "label" || isBlockTextLeaf(opts, tag) {
		return collapseWhitespace(firstDirectText(n))
	}

	var parts []string
	switch tag {
	case "img":
		parts = []string{fmt.Sprintf("<img src=%s/>", diffhtml.Attr(n, "src"))}
	case "a":
		parts = []string{fmt.Sprintf("<a href=%s>%s</a>", diffhtml.Attr(n, "href"), firstDirectText(n))}
	default:
		parts = []string{diffhtml.DirectText(n)}
	}

	if len(n.Attr) > 0 {
		keys := make([]string, 0, len(n.Attr))
		vals := map[string]string{}
		for _, a := range n.Attr {
			keys = append(keys, a.Key)
			vals[a.Key] = a.Val
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+":"+vals[k])
		}
	}

	return collapseWhitespace(strings.Join(parts, " "))
}

// childRatio scores how similar left's and right's immediate element/
// comment children are, via greedy best-pair matching. The second return
// value is false when neither side has any such children — meaning the
// caller should fall back to leaf ratio alone.
func (m *matcher) childRatio(left, right *html.Node) (float64, bool) {
	lc := directChildren(left)
	rc := directChildren(right)
	if len(lc) == 0 && len(rc) == 0 {
		return 0, false
	}

	used := make([]bool, len(rc))
	matched := 0
	for _, l := range lc {
		best := -1.0
		bestIdx := -1
		for j, r := range rc {
			if used[j] {
				continue
			}
			ratio := m.nodeRatio(l, r)
			if ratio > best {
				best, bestIdx = ratio, j
			}
		}
		if bestIdx >= 0 && best >= 0.5 {
			used[bestIdx] = true
			matched++
		}
	}

	total := len(lc) + len(rc)
	return float64(2*matched) / float64(total), true
}

func directChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode || c.Type == html.CommentNode {
			out = append(out, c)
		}
	}
	return out
}

// sequenceRatio is a difflib-style similarity ratio: 2*matches/total,
// where matches is the length of the longest common subsequence.
func sequenceRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	n, k := len(ra), len(rb)
	if n == 0 || k == 0 {
		return 0
	}

	prev := make([]int, k+1)
	curr := make([]int, k+1)
	for i := n - 1; i >= 0; i-- {
		for j := k - 1; j >= 0; j-- {
			if ra[i] == rb[j] {
				curr[j] = prev[j+1] + 1
			} else if prev[j] >= curr[j+1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j+1]
			}
		}
		prev, curr = curr, prev
	}
	lcsLen := prev[0]
	return float64(2*lcsLen) / float64(n+k)
}
