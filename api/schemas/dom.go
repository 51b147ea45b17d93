// api/schemas/dom.go
package schemas

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ElementKind classifies how an element can be interacted with. Overlays are a
// distinguished category so the agent can decide to dismiss them before
// continuing with the task.
type ElementKind string

const (
	ElementClickable ElementKind = "clickable" // Links, buttons, role=button, tabindex targets.
	ElementTypable   ElementKind = "typable"   // Inputs, textareas, selects, contenteditable.
	ElementOverlay   ElementKind = "overlay"   // Modal/dialog/cookie-banner containers.
	ElementText      ElementKind = "text"      // Non-interactive but visible text node.
)

// BoundingBox is the element's position in CSS pixels within the viewport at
// extraction time.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Element is one normalized DOM node captured by the snapshot extractor.
//
// Label is the element's identifier and is scoped to the snapshot that
// produced it: it is assigned deterministically within a single extraction
// ("A", "B", ... "Z", "AA", ...) but carries no meaning across snapshots.
// Cross-snapshot label reuse is coincidental, never identity proof.
type Element struct {
	Label       string            `json:"label"`
	Tag         string            `json:"tag"`
	Kind        ElementKind       `json:"kind"`
	Text        string            `json:"text,omitempty"`
	Selector    string            `json:"selector"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Box         BoundingBox       `json:"box"`
	Interactive bool              `json:"interactive"`
}

// TruncateText shortens s to at most max bytes plus an ellipsis, backing the
// cut up to a rune boundary so the result is always valid UTF-8.
func TruncateText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Describe renders a single prompt line for the element, the same shape the
// planner shows the model.
func (e Element) Describe() string {
	return fmt.Sprintf("[%s] <%s> kind=%s text=%q", e.Label, e.Tag, e.Kind, TruncateText(e.Text, 120))
}

// Snapshot is one immutable capture of page structure at a point in time. It
// is owned solely by the loop iteration that requested it and is never
// mutated, only superseded by the next capture.
type Snapshot struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Hash        string    `json:"hash"` // FNV-64a of the normalized element set, hex-encoded.
	TakenAt     time.Time `json:"taken_at"`
	Elements    []Element `json:"elements"`
	VisibleText string    `json:"visible_text,omitempty"`
}

// FindByLabel resolves a label against this snapshot. The second return is
// false when the label does not belong to this snapshot, which callers must
// treat as a stale identifier.
func (s *Snapshot) FindByLabel(label string) (Element, bool) {
	label = strings.TrimSpace(label)
	for _, el := range s.Elements {
		if el.Label == label {
			return el, true
		}
	}
	return Element{}, false
}

// Interactive returns the subset of elements the planner may target,
// excluding any label present in the exhausted set.
func (s *Snapshot) Interactive(exhausted map[string]bool) []Element {
	out := make([]Element, 0, len(s.Elements))
	for _, el := range s.Elements {
		if !el.Interactive {
			continue
		}
		if exhausted[el.Label] {
			continue
		}
		out = append(out, el)
	}
	return out
}

// Overlays returns the overlay/modal elements detected in this snapshot.
func (s *Snapshot) Overlays() []Element {
	var out []Element
	for _, el := range s.Elements {
		if el.Kind == ElementOverlay {
			out = append(out, el)
		}
	}
	return out
}
