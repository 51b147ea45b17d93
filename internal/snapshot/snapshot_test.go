// internal/snapshot/snapshot_test.go
package snapshot

import (
	"context"
	stdjson "encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

func TestLabelFor(t *testing.T) {
	cases := map[int]string{
		0:   "A",
		1:   "B",
		25:  "Z",
		26:  "AA",
		27:  "AB",
		51:  "AZ",
		52:  "BA",
		701: "ZZ",
		702: "AAA",
	}
	for index, want := range cases {
		assert.Equal(t, want, LabelFor(index), "index %d", index)
	}
}

func TestContentHashDeterministic(t *testing.T) {
	elems := []schemas.Element{
		{Tag: "a", Kind: schemas.ElementClickable, Selector: "a#home", Text: "Home"},
		{Tag: "input", Kind: schemas.ElementTypable, Selector: `input[name="q"]`, Attributes: map[string]string{"type": "text", "name": "q"}},
	}
	h1 := ContentHash("https://example.com", elems)
	h2 := ContentHash("https://example.com", elems)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
}

func TestContentHashOrderSensitive(t *testing.T) {
	a := schemas.Element{Tag: "a", Selector: "a#one"}
	b := schemas.Element{Tag: "a", Selector: "a#two"}
	h1 := ContentHash("https://example.com", []schemas.Element{a, b})
	h2 := ContentHash("https://example.com", []schemas.Element{b, a})
	assert.NotEqual(t, h1, h2)
}

func TestContentHashAttributeOrderIndependent(t *testing.T) {
	// Map iteration order varies; the digest must not.
	el := schemas.Element{
		Tag:      "input",
		Selector: `input[name="q"]`,
		Attributes: map[string]string{
			"type": "text", "name": "q", "placeholder": "Search", "autocomplete": "off",
		},
	}
	want := ContentHash("u", []schemas.Element{el})
	for i := 0; i < 20; i++ {
		assert.Equal(t, want, ContentHash("u", []schemas.Element{el}))
	}
}

func TestContentHashVariesWithURL(t *testing.T) {
	el := schemas.Element{Tag: "a", Selector: "a#one"}
	assert.NotEqual(t,
		ContentHash("https://a.example", []schemas.Element{el}),
		ContentHash("https://b.example", []schemas.Element{el}),
	)
}

const sampleHTML = `<!DOCTYPE html>
<html>
<head><title>Login Page</title><script>var hidden = "noise";</script></head>
<body>
  <div role="dialog" aria-modal="true" id="cookie-banner">We use cookies <button id="accept">Accept</button></div>
  <h1>Welcome back</h1>
  <form>
    <input type="text" name="username" placeholder="Username">
    <input type="password" name="password">
    <input type="hidden" name="csrf" value="tok">
    <button id="submit">Sign in</button>
  </form>
  <a href="/forgot">Forgot password?</a>
</body>
</html>`

func TestFromHTML(t *testing.T) {
	snap, err := FromHTML(sampleHTML, "https://example.com/login")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/login", snap.URL)
	assert.Equal(t, "Login Page", snap.Title)
	assert.NotEmpty(t, snap.Hash)
	assert.Contains(t, snap.VisibleText, "Welcome back")
	assert.NotContains(t, snap.VisibleText, "noise")

	// Labels follow document order starting at A.
	for i, el := range snap.Elements {
		assert.Equal(t, LabelFor(i), el.Label)
	}

	overlays := snap.Overlays()
	require.Len(t, overlays, 1)
	assert.Equal(t, "div#cookie-banner", overlays[0].Selector)

	var kinds []schemas.ElementKind
	var selectors []string
	for _, el := range snap.Elements {
		kinds = append(kinds, el.Kind)
		selectors = append(selectors, el.Selector)
	}
	assert.NotContains(t, selectors, `input[name="csrf"]`, "hidden inputs are excluded")
	assert.Contains(t, selectors, `input[name="username"]`)
	assert.Contains(t, selectors, "button#submit")
	assert.Contains(t, kinds, schemas.ElementTypable)
	assert.Contains(t, kinds, schemas.ElementClickable)

	username, ok := snap.FindByLabel(mustLabelOf(t, snap, `input[name="username"]`))
	require.True(t, ok)
	want := schemas.Element{
		Label:       username.Label,
		Tag:         "input",
		Kind:        schemas.ElementTypable,
		Selector:    `input[name="username"]`,
		Text:        "Username", // placeholder used when no text content
		Attributes:  map[string]string{"type": "text", "name": "username", "placeholder": "Username"},
		Interactive: true,
	}
	if diff := cmp.Diff(want, username); diff != "" {
		t.Errorf("username element mismatch (-want +got):\n%s", diff)
	}
}

func TestFromHTMLStableHashAcrossParses(t *testing.T) {
	s1, err := FromHTML(sampleHTML, "https://example.com/login")
	require.NoError(t, err)
	s2, err := FromHTML(sampleHTML, "https://example.com/login")
	require.NoError(t, err)
	assert.Equal(t, s1.Hash, s2.Hash)

	s3, err := FromHTML(strings.Replace(sampleHTML, "Sign in", "Log in", 1), "https://example.com/login")
	require.NoError(t, err)
	assert.NotEqual(t, s1.Hash, s3.Hash)
}

func TestFromHTMLMalformed(t *testing.T) {
	// html.Parse is lenient; even fragments produce a snapshot.
	snap, err := FromHTML("<p>hello <a href='/x'>link", "https://example.com")
	require.NoError(t, err)
	require.Len(t, snap.Elements, 1)
	assert.Equal(t, "link", snap.Elements[0].Text)
}

// fakeSession implements schemas.SessionContext over canned script results.
type fakeSession struct {
	scriptResults map[string]string // substring of script -> JSON result
	scriptCalls   []string
	url, title    string
}

func (f *fakeSession) ID() string                                 { return "fake" }
func (f *fakeSession) Navigate(context.Context, string) error     { return nil }
func (f *fakeSession) Click(context.Context, string) error        { return nil }
func (f *fakeSession) Type(context.Context, string, string) error { return nil }
func (f *fakeSession) ScrollTo(context.Context, string) error     { return nil }
func (f *fakeSession) ScrollBy(context.Context, float64) error    { return nil }
func (f *fakeSession) Close(context.Context) error                { return nil }
func (f *fakeSession) CurrentURL(context.Context) (string, error) { return f.url, nil }
func (f *fakeSession) Title(context.Context) (string, error)      { return f.title, nil }
func (f *fakeSession) WaitVisible(context.Context, string, time.Duration) error {
	return nil
}
func (f *fakeSession) Screenshot(context.Context, string) (*schemas.ScreenshotResult, error) {
	return &schemas.ScreenshotResult{Path: "/tmp/fake.png"}, nil
}

func (f *fakeSession) ExecuteScript(_ context.Context, script string) (stdjson.RawMessage, error) {
	f.scriptCalls = append(f.scriptCalls, script)
	for marker, result := range f.scriptResults {
		if strings.Contains(script, marker) {
			return stdjson.RawMessage(result), nil
		}
	}
	return stdjson.RawMessage(`null`), nil
}

func TestCapture(t *testing.T) {
	session := &fakeSession{
		url:   "https://example.com/search",
		title: "Search",
		scriptResults: map[string]string{
			"getLabel": `[
				{"tag":"input","kind":"typable","selector":"input[name=\"q\"]","text":"","attributes":{"name":"q"},"interactive":true,"box":{"x":10,"y":20,"width":300,"height":40}},
				{"tag":"button","kind":"clickable","selector":"button#go","text":"Go","interactive":true,"box":{"x":320,"y":20,"width":60,"height":40}},
				{"tag":"div","kind":"bogus-kind","selector":"div#note","text":"note","interactive":false,"box":{}}
			]`,
			"innerText": `"Search the web"`,
		},
	}

	ext := NewExtractor(zaptest.NewLogger(t), false)
	snap, err := ext.Capture(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/search", snap.URL)
	assert.Equal(t, "Search", snap.Title)
	assert.Equal(t, "Search the web", snap.VisibleText)
	assert.False(t, snap.TakenAt.IsZero())
	require.Len(t, snap.Elements, 3)

	assert.Equal(t, "A", snap.Elements[0].Label)
	assert.Equal(t, "B", snap.Elements[1].Label)
	assert.Equal(t, schemas.ElementText, snap.Elements[2].Kind, "unknown kinds degrade to text")
	assert.Equal(t, 300.0, snap.Elements[0].Box.Width)

	interactive := snap.Interactive(nil)
	assert.Len(t, interactive, 2)
}

func TestCaptureHighlightClearsPreviousBadges(t *testing.T) {
	session := &fakeSession{
		url: "https://example.com", title: "t",
		scriptResults: map[string]string{"getLabel": `[]`, "innerText": `""`},
	}
	ext := NewExtractor(zaptest.NewLogger(t), true)
	_, err := ext.Capture(context.Background(), session)
	require.NoError(t, err)

	require.NotEmpty(t, session.scriptCalls)
	assert.Contains(t, session.scriptCalls[0], "data-wp-badge", "clear script runs before extraction")
	assert.Contains(t, session.scriptCalls[1], "(true)", "highlight flag baked into the script")
}

func TestCaptureDecodeError(t *testing.T) {
	session := &fakeSession{
		url: "https://example.com", title: "t",
		scriptResults: map[string]string{"getLabel": `{"error":"boom"}`},
	}
	ext := NewExtractor(zaptest.NewLogger(t), false)
	_, err := ext.Capture(context.Background(), session)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding extraction result")
}

func TestPromptText(t *testing.T) {
	snap, err := FromHTML(sampleHTML, "https://example.com/login")
	require.NoError(t, err)

	out := PromptText(snap, nil, 8*1024)
	assert.Contains(t, out, "URL: https://example.com/login")
	assert.Contains(t, out, "TITLE: Login Page")
	assert.Contains(t, out, "OVERLAYS")
	assert.Contains(t, out, "Sign in")
	assert.Contains(t, out, "TEXT: ")
}

func TestPromptTextOmitsExhausted(t *testing.T) {
	snap, err := FromHTML(sampleHTML, "https://example.com/login")
	require.NoError(t, err)

	label := mustLabelOf(t, snap, "button#submit")
	out := PromptText(snap, map[string]bool{label: true}, 8*1024)
	assert.NotContains(t, out, "["+label+"] <button>")
}

func TestPromptTextTruncatesVisibleTextFirst(t *testing.T) {
	snap, err := FromHTML(sampleHTML, "https://example.com/login")
	require.NoError(t, err)
	snap.VisibleText = strings.Repeat("lorem ipsum ", 500)

	out := PromptText(snap, nil, 1024)
	assert.LessOrEqual(t, len(out), 1024+len("..."))
	// Element lines survive truncation.
	assert.Contains(t, out, "Sign in")
}

func TestPromptTextElidesElementsUnderTinyBudget(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<body>")
	for i := 0; i < 50; i++ {
		sb.WriteString(`<button id="b` + strings.Repeat("x", i%7) + LabelFor(i) + `">Button with a reasonably long caption</button>`)
	}
	sb.WriteString("</body>")
	snap, err := FromHTML(sb.String(), "https://example.com")
	require.NoError(t, err)

	out := PromptText(snap, nil, 600)
	assert.Contains(t, out, "more elements omitted")
	assert.LessOrEqual(t, len(out), 700)
}

func mustLabelOf(t *testing.T, snap *schemas.Snapshot, selector string) string {
	t.Helper()
	for _, el := range snap.Elements {
		if el.Selector == selector {
			return el.Label
		}
	}
	t.Fatalf("no element with selector %q", selector)
	return ""
}
