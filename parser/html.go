package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	lineBreak  = regexp.MustCompile(`\r\n|\r|\n`)
	softBreak  = regexp.MustCompile(` {2,}`)
	skipInText = map[string]bool{"script": true, "style": true}
)

// ReduceHTML turns an HTML document into plain text: script and style
// elements are dropped, the body's text is split into trimmed lines, runs
// of two or more spaces start a new line and empty lines are removed.
func ReduceHTML(s string) (string, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return "", err
	}
	root := findElement(doc, "body")
	if root == nil {
		root = doc
	}

	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipInText[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return collapseLines(text.String()), nil
}

func collapseLines(s string) string {
	var chunks []string
	for _, line := range lineBreak.Split(s, -1) {
		for _, chunk := range softBreak.Split(strings.TrimSpace(line), -1) {
			if chunk = strings.TrimSpace(chunk); chunk != "" {
				chunks = append(chunks, chunk)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}
