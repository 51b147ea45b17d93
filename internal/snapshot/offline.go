// internal/snapshot/offline.go
package snapshot

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// FromHTML builds a snapshot from static HTML without a live browser. It
// applies the same labelling and hashing as the live extractor but cannot
// observe layout, so there is no visibility filtering and bounding boxes are
// zero. Used for dry runs and as a test harness for the planner.
func FromHTML(rawHTML, url string) (*schemas.Snapshot, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var (
		title    string
		raw      []rawElement
		textRuns []string
		tagCount = map[string]int{}
	)

	var walk func(n *html.Node, skipText bool)
	walk = func(n *html.Node, skipText bool) {
		if n.Type == html.ElementNode {
			tag := n.Data
			switch tag {
			case "script", "style", "noscript", "template":
				return
			case "title":
				title = textContent(n)
			}

			tagCount[tag]++
			attrs := attrMap(n)

			if kind, interactive, ok := classify(tag, attrs); ok {
				if !(tag == "input" && attrs["type"] == "hidden") {
					raw = append(raw, rawElement{
						Tag:         tag,
						Kind:        string(kind),
						Selector:    offlineSelector(tag, attrs, tagCount[tag]),
						Text:        elementText(n, attrs),
						Attributes:  attrs,
						Interactive: interactive,
					})
					skipText = true
				}
			}
		}
		if n.Type == html.TextNode && !skipText {
			if t := strings.TrimSpace(n.Data); t != "" {
				textRuns = append(textRuns, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skipText)
		}
	}
	walk(doc, false)

	visible := strings.Join(textRuns, " ")
	if len(visible) > 4000 {
		visible = visible[:4000]
	}
	return assemble(url, title, visible, raw), nil
}

func classify(tag string, attrs map[string]string) (schemas.ElementKind, bool, bool) {
	switch tag {
	case "input", "textarea", "select":
		return schemas.ElementTypable, true, true
	case "a", "button":
		return schemas.ElementClickable, true, true
	case "dialog":
		return schemas.ElementOverlay, false, true
	}
	switch {
	case attrs["role"] == "dialog" || attrs["role"] == "alertdialog" || attrs["aria-modal"] == "true":
		return schemas.ElementOverlay, false, true
	case attrs["role"] == "button" || attrs["onclick"] != "":
		return schemas.ElementClickable, true, true
	}
	return "", false, false
}

func attrMap(n *html.Node) map[string]string {
	if len(n.Attr) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		out[a.Key] = a.Val
	}
	return out
}

func offlineSelector(tag string, attrs map[string]string, nth int) string {
	if id := attrs["id"]; id != "" {
		return tag + "#" + id
	}
	if name := attrs["name"]; name != "" {
		return fmt.Sprintf("%s[name=%q]", tag, name)
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", tag, nth)
}

func elementText(n *html.Node, attrs map[string]string) string {
	text := strings.TrimSpace(textContent(n))
	if text == "" {
		text = attrs["aria-label"]
	}
	if text == "" {
		text = attrs["placeholder"]
	}
	if text == "" {
		text = attrs["value"]
	}
	if len(text) > 1000 {
		text = text[:1000] + "..."
	}
	return text
}

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
