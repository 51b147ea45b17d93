// internal/snapshot/extractor.go

// Package snapshot turns a live page into an immutable, normalized capture of
// its interactive structure. Each capture assigns short alphabetic labels to
// elements in document order; labels are deterministic within the capture
// that produced them and carry no identity across captures.
package snapshot

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// visibleTextScript harvests the page's visible body text, truncated at the
// source so large pages do not ship megabytes over the wire.
const visibleTextScript = `
(function() {
	const text = (document.body && document.body.innerText) || '';
	return text.slice(0, 4000);
})()
`

// rawElement mirrors the object shape produced by the extraction script.
type rawElement struct {
	Tag         string              `json:"tag"`
	Kind        string              `json:"kind"`
	Selector    string              `json:"selector"`
	Text        string              `json:"text"`
	Attributes  map[string]string   `json:"attributes"`
	Interactive bool                `json:"interactive"`
	Box         schemas.BoundingBox `json:"box"`
}

// Extractor captures snapshots from a live browser session.
type Extractor struct {
	logger    *zap.Logger
	highlight bool
}

// NewExtractor builds an extractor. highlight enables the visual label badges
// painted onto the page during extraction.
func NewExtractor(logger *zap.Logger, highlight bool) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger.Named("snapshot"), highlight: highlight}
}

// Capture evaluates the extraction routine in the session's page and returns
// a fully labelled snapshot. The returned snapshot is immutable by
// convention: the loop never mutates it, only supersedes it with the next
// capture.
func (e *Extractor) Capture(ctx context.Context, session schemas.SessionContext) (*schemas.Snapshot, error) {
	if e.highlight {
		// Previous badges would be harvested as elements of the new capture.
		if _, err := session.ExecuteScript(ctx, clearHighlightScript); err != nil {
			e.logger.Debug("clearing stale highlights failed", zap.Error(err))
		}
	}

	raw, err := session.ExecuteScript(ctx, buildExtractScript(e.highlight))
	if err != nil {
		return nil, fmt.Errorf("evaluating extraction script: %w", err)
	}

	var rawElems []rawElement
	if err := json.Unmarshal(raw, &rawElems); err != nil {
		return nil, fmt.Errorf("decoding extraction result: %w", err)
	}

	url, err := session.CurrentURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading page URL: %w", err)
	}
	title, err := session.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading page title: %w", err)
	}

	visibleText := ""
	if textRaw, err := session.ExecuteScript(ctx, visibleTextScript); err == nil {
		var text string
		if json.Unmarshal(textRaw, &text) == nil {
			visibleText = strings.TrimSpace(text)
		}
	} else {
		e.logger.Debug("visible text harvest failed", zap.Error(err))
	}

	snap := assemble(url, title, visibleText, rawElems)
	e.logger.Debug("snapshot captured",
		zap.String("url", snap.URL),
		zap.Int("elements", len(snap.Elements)),
		zap.String("hash", snap.Hash),
	)
	return snap, nil
}

// assemble normalizes raw extraction output into a labelled snapshot.
// Labels are assigned by document-order index, so two captures of an
// identical page produce identical labels.
func assemble(url, title, visibleText string, rawElems []rawElement) *schemas.Snapshot {
	elements := make([]schemas.Element, 0, len(rawElems))
	for i, re := range rawElems {
		kind := schemas.ElementKind(re.Kind)
		switch kind {
		case schemas.ElementClickable, schemas.ElementTypable, schemas.ElementOverlay, schemas.ElementText:
		default:
			kind = schemas.ElementText
		}
		elements = append(elements, schemas.Element{
			Label:       LabelFor(i),
			Tag:         re.Tag,
			Kind:        kind,
			Text:        re.Text,
			Selector:    re.Selector,
			Attributes:  re.Attributes,
			Box:         re.Box,
			Interactive: re.Interactive,
		})
	}

	return &schemas.Snapshot{
		URL:         url,
		Title:       title,
		Hash:        ContentHash(url, elements),
		TakenAt:     time.Now().UTC(),
		Elements:    elements,
		VisibleText: visibleText,
	}
}

// LabelFor converts a zero-based index to its alphabetic label:
// 0→A, 25→Z, 26→AA, 27→AB, and so on.
func LabelFor(index int) string {
	label := ""
	for index >= 0 {
		label = string(rune('A'+index%26)) + label
		index = index/26 - 1
	}
	return label
}

// ContentHash computes the FNV-64a digest of the normalized element set,
// hex-encoded. Two structurally identical pages hash equal regardless of
// capture time; element order is significant.
func ContentHash(url string, elements []schemas.Element) string {
	h := fnv.New64a()
	h.Write([]byte(url))
	for _, el := range elements {
		h.Write([]byte{0})
		h.Write([]byte(el.Tag))
		h.Write([]byte{'|'})
		h.Write([]byte(el.Kind))
		h.Write([]byte{'|'})
		h.Write([]byte(el.Selector))
		h.Write([]byte{'|'})
		h.Write([]byte(el.Text))
		// Attribute iteration order must not affect the digest.
		keys := make([]string, 0, len(el.Attributes))
		for k := range el.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte{'|'})
			h.Write([]byte(k))
			h.Write([]byte{'='})
			h.Write([]byte(el.Attributes[k]))
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
