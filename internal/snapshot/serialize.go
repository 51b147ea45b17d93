// internal/snapshot/serialize.go
package snapshot

import (
	"fmt"
	"strings"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// PromptText renders the snapshot into the textual form shown to the model,
// bounded by byteBudget. Low-priority content gives way first: visible body
// text is truncated before element lines, and the element list itself is cut
// (with an elision marker) only as a last resort. Exhausted element labels
// are omitted from the rendered list entirely.
func PromptText(snap *schemas.Snapshot, exhausted map[string]bool, byteBudget int) string {
	if byteBudget <= 0 {
		byteBudget = 16 * 1024
	}

	var header strings.Builder
	fmt.Fprintf(&header, "URL: %s\nTITLE: %s\n", snap.URL, snap.Title)

	if overlays := snap.Overlays(); len(overlays) > 0 {
		header.WriteString("OVERLAYS (a modal or banner may be blocking the page):\n")
		for _, el := range overlays {
			header.WriteString("  " + el.Describe() + "\n")
		}
	}

	lines := make([]string, 0, len(snap.Elements))
	for _, el := range snap.Interactive(exhausted) {
		lines = append(lines, "  "+el.Describe())
	}

	elementsBlock := "ELEMENTS:\n" + strings.Join(lines, "\n")
	if len(lines) == 0 {
		elementsBlock = "ELEMENTS: (none visible)"
	}

	used := header.Len() + len(elementsBlock)
	if used > byteBudget {
		elementsBlock = truncateElements(lines, byteBudget-header.Len())
		used = header.Len() + len(elementsBlock)
	}

	out := header.String() + elementsBlock
	if remaining := byteBudget - used - len("\nTEXT: "); remaining > 40 && snap.VisibleText != "" {
		out += "\nTEXT: " + schemas.TruncateText(snap.VisibleText, remaining)
	}
	return out
}

// truncateElements keeps as many whole element lines as fit in budget and
// appends an elision marker naming the count dropped.
func truncateElements(lines []string, budget int) string {
	const head = "ELEMENTS:\n"
	if budget <= len(head) {
		return fmt.Sprintf("ELEMENTS: (%d omitted)", len(lines))
	}
	budget -= len(head)

	kept := 0
	used := 0
	for _, line := range lines {
		cost := len(line) + 1
		if used+cost > budget {
			break
		}
		used += cost
		kept++
	}
	out := head + strings.Join(lines[:kept], "\n")
	if kept < len(lines) {
		out += fmt.Sprintf("\n  (+%d more elements omitted)", len(lines)-kept)
	}
	return out
}
