package fetch

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// skippedElements are elements whose text content is never readable
// page text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
	"svg":      true,
}

// blockElements start a new line in the extracted text. Inline elements
// (a, span, em, ...) keep flowing into the current line.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"header": true, "footer": true, "main": true, "aside": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "td": true, "th": true,
	"blockquote": true, "pre": true, "br": true, "hr": true,
}

// ExtractText parses HTML and returns the page title and its readable
// text: script, style, and markup stripped, whitespace collapsed, block
// boundaries turned into newlines.
//
// html.Parse repairs malformed markup instead of failing, so the error
// only fires on unreadable input.
func ExtractText(body []byte) (title, text string, err error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}

	var (
		blocks []string
		line   strings.Builder
	)
	flush := func() {
		if s := collapseSpace(line.String()); s != "" {
			blocks = append(blocks, s)
		}
		line.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			// head holds the title but nothing else readable, so pull
			// the title out and skip the rest of it.
			if n.Data == "head" {
				if title == "" {
					title = headTitle(n)
				}
				return
			}
			if skippedElements[n.Data] {
				return
			}
			if blockElements[n.Data] {
				flush()
			}
		case html.TextNode:
			line.WriteString(n.Data)
			line.WriteString(" ")
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			flush()
		}
	}
	walk(doc)
	flush()

	return title, strings.Join(blocks, "\n"), nil
}

// headTitle returns the text of the first title element under head.
// html.Parse always reparents stray title elements into head, so this
// is the only place a title can appear.
func headTitle(head *html.Node) string {
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "title" {
			if c.FirstChild != nil && c.FirstChild.Type == html.TextNode {
				return collapseSpace(c.FirstChild.Data)
			}
		}
	}
	return ""
}

// collapseSpace reduces runs of whitespace to single spaces and trims
// the ends.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateText shortens extracted text to at most max runes, reporting
// whether truncation happened. Cutting mid-rune would corrupt UTF-8, so
// the cut is rune-aligned.
func TruncateText(text string, max int) (string, bool) {
	if max <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text, false
	}
	return string(runes[:max]), true
}
