// Package normalize implements the HTML normalizer (C2): it produces a
// fingerprint string used as the sole equality test for "page unchanged".
package normalize

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// stripTags are removed, along with their descendants, before
// fingerprinting. This is the tree-diff engine's Ignore set (§4.5) minus
// "title" and "head", plus "area", which only this normalizer strips.
var stripTags = []string{
	"script", "noscript", "style", "link", "base", "meta",
	"svg", "defs", "polygon", "rect", "path", "area",
}

// attrSafelist is the only set of attributes preserved on surviving nodes;
// everything else is stripped.
var attrSafelist = map[string]bool{
	"href": true, "src": true, "alt": true, "title": true, "value": true,
	"type": true, "colspan": true, "rowspan": true,
	"role": true, "aria-label": true, "aria-hidden": true,
}

var (
	nbspRE   = regexp.MustCompile(`&nbsp;|\x{00a0}`)
	spacesRE = regexp.MustCompile(`\s+`)
)

// Fingerprint parses raw HTML leniently, strips invisible/tracking nodes
// and non-safelisted attributes, collapses whitespace, and returns the
// md5 hex digest of the resulting single-line serialization.
//
// Fingerprint is idempotent: Fingerprint(Canonicalize(h)) == Fingerprint(h)
// for any h, since the canonical form it hashes is itself stable under a
// second pass.
func Fingerprint(rawHTML string) (string, error) {
	canon, err := Canonicalize(rawHTML)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(canon))
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize produces the normalized single-line HTML string that
// Fingerprint hashes. It is exported so callers that need the normalized
// body itself (rather than just its digest) can reuse the same pass.
func Canonicalize(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	// Comments are not materialized by goquery/x-net's tokenizer into a
	// selectable node; nothing further to strip for them here.

	for _, tag := range stripTags {
		doc.Find(tag).Remove()
	}

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			kept := node.Attr[:0]
			for _, a := range node.Attr {
				if attrSafelist[strings.ToLower(a.Key)] {
					kept = append(kept, a)
				}
			}
			node.Attr = kept
		}
	})

	html, err := doc.Html()
	if err != nil {
		return "", err
	}

	html = nbspRE.ReplaceAllString(html, " ")
	html = spacesRE.ReplaceAllString(html, " ")
	return strings.TrimSpace(html), nil
}
