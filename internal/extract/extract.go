package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var whitespace = regexp.MustCompile(`\s+`)

// Text converts raw HTML into a single normalized plain-text string.
// Script, style and noscript elements are dropped along with HTML
// comments; the remaining body text nodes are joined in document order and
// whitespace is collapsed. Malformed HTML degrades to whatever text can be
// recovered, never an error.
func Text(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	scope := doc.Find("body")
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	var parts []string
	scope.Each(func(i int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			collectText(node, &parts)
		}
	})

	text := strings.Join(parts, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	if n.Type == html.CommentNode {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
