// Package seqdiff implements the word-level sequence diff (C6): the
// fallback used when two matched tree nodes carry the same tag and
// position but different text, and the unit the tree-diff matcher (C5)
// calls to highlight exactly the changed words inside such a node rather
// than marking the whole node changed.
//
// Tokenization follows the original system's WORD_RE
// word/whitespace/punctuation split; the LCS backbone is
// sergi/go-diff/diffmatchpatch's Myers-diff engine, run over tokens
// rather than characters.
package seqdiff

import (
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/moku-wst/internal/diffhtml"
	"golang.org/x/net/html"
)

// wordRE splits text into words, runs of whitespace, and single
// punctuation characters — the same three token classes the tree-diff
// matcher's word boundary uses.
var wordRE = regexp.MustCompile(`([^ \n\r\t,.&;/#=<>()-]+|(?:[ \n\r\t])+|[,.&;/#=<>()-])`)

// Tokenize splits s into its word/whitespace/punctuation units.
func Tokenize(s string) []string {
	return wordRE.FindAllString(s, -1)
}

// op is one LCS edit: Equal tokens appear on both sides, Delete only on
// the old side, Insert only on the new side.
type op struct {
	kind  byte // 'e', 'd', 'i'
	token string
}

// diffTokens runs an LCS-based diff over two token streams. It reuses
// diffmatchpatch's Myers-diff engine by mapping each distinct token to a
// single private-use-area rune (the same line-to-char trick
// diffmatchpatch itself uses for line diffing), so the LCS backbone is
// the library's, not a hand-rolled one, while the diff still operates at
// word granularity rather than character granularity.
func diffTokens(old, new []string) []op {
	oldChars, newChars, tokenOf := tokensToRunes(old, new)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldChars, newChars, false)

	var ops []op
	for _, d := range diffs {
		for _, r := range d.Text {
			tok := tokenOf[r]
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, op{'e', tok})
			case diffmatchpatch.DiffDelete:
				ops = append(ops, op{'d', tok})
			case diffmatchpatch.DiffInsert:
				ops = append(ops, op{'i', tok})
			}
		}
	}
	return ops
}

// tokensToRunes assigns each distinct token across old and new a private-
// use rune and encodes both streams as strings of those runes, returning
// the reverse mapping needed to decode diffmatchpatch's result back into
// tokens.
func tokensToRunes(old, new []string) (oldChars, newChars string, tokenOf map[rune]string) {
	index := make(map[string]rune, len(old)+len(new))
	tokenOf = make(map[rune]string, len(old)+len(new))
	next := rune(0xE000) // start of the Unicode Private Use Area

	encode := func(tokens []string) string {
		var b strings.Builder
		b.Grow(len(tokens))
		for _, t := range tokens {
			r, ok := index[t]
			if !ok {
				r = next
				next++
				index[t] = r
				tokenOf[r] = t
			}
			b.WriteRune(r)
		}
		return b.String()
	}

	oldChars = encode(old)
	newChars = encode(new)
	return oldChars, newChars, tokenOf
}

// isWhitespaceRun reports whether every token is whitespace-only — a
// whitespace-only run never gets a highlight span, or the diff would be
// dominated by formatting noise.
func isWhitespaceRun(tokens []string) bool {
	for _, t := range tokens {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}

// Render produces the old-side and new-side fragments for a matched
// node's text, with the changed runs wrapped in highlight spans. Unchanged
// text is emitted as a plain text node on both sides.
func Render(oldText, newText string) (oldNodes, newNodes []*html.Node) {
	ops := diffTokens(Tokenize(oldText), Tokenize(newText))

	flushPlain := func(nodes *[]*html.Node, buf *strings.Builder) {
		if buf.Len() > 0 {
			*nodes = append(*nodes, &html.Node{Type: html.TextNode, Data: buf.String()})
			buf.Reset()
		}
	}
	span := func(class, text string) *html.Node {
		n := &html.Node{Type: html.ElementNode, Data: "span", Attr: []html.Attribute{{Key: "class", Val: class}}}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		return n
	}

	var oldBuf, newBuf strings.Builder
	i := 0
	for i < len(ops) {
		switch ops[i].kind {
		case 'e':
			oldBuf.WriteString(ops[i].token)
			newBuf.WriteString(ops[i].token)
			i++
		case 'd':
			j := i
			var run []string
			for j < len(ops) && ops[j].kind == 'd' {
				run = append(run, ops[j].token)
				j++
			}
			text := strings.Join(run, "")
			if isWhitespaceRun(run) {
				oldBuf.WriteString(text)
			} else {
				flushPlain(&oldNodes, &oldBuf)
				oldNodes = append(oldNodes, span(diffhtml.ClassDelText, text))
			}
			i = j
		case 'i':
			j := i
			var run []string
			for j < len(ops) && ops[j].kind == 'i' {
				run = append(run, ops[j].token)
				j++
			}
			text := strings.Join(run, "")
			if isWhitespaceRun(run) {
				newBuf.WriteString(text)
			} else {
				flushPlain(&newNodes, &newBuf)
				newNodes = append(newNodes, span(diffhtml.ClassInsText, text))
			}
			i = j
		}
	}
	flushPlain(&oldNodes, &oldBuf)
	flushPlain(&newNodes, &newBuf)
	return oldNodes, newNodes
}

// Equal reports whether old and new tokenize identically — the check the
// tree-diff matcher uses to decide a matched node's text needs no further
// word-level work at all.
func Equal(old, new string) bool {
	a, b := Tokenize(old), Tokenize(new)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
