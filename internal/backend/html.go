package backend

import (
	"strings"

	"golang.org/x/net/html"
)

// HTML traversal helpers shared by the scraping adapters. Parsing uses
// golang.org/x/net/html rather than regular expressions: search engine
// markup is machine generated but not always well formed, and a real
// tokenizer survives the tag-soup cases that break regex scraping.

// walkElements calls fn for every element node in the tree. Returning
// false from fn skips the node's subtree.
func walkElements(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode && !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, fn)
	}
}

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// hasClass reports whether the node's class attribute contains the
// given class name as a whole token.
func hasClass(n *html.Node, class string) bool {
	for _, token := range strings.Fields(attr(n, "class")) {
		if token == class {
			return true
		}
	}
	return false
}

// textContent collects the concatenated text of a subtree with
// whitespace collapsed, the way a browser would render it for a
// single-line snippet.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
