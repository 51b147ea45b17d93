// internal/agent/planner_test.go
package agent

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

func TestParseActionResponse(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     schemas.Action
		wantErr  string
	}{
		{
			name:     "plain json",
			response: `{"thought":"the search box is [B]","rationale":"type the query","action":"TYPE","target":"B","value":"weather берлин"}`,
			want:     schemas.Action{Kind: schemas.ActionType, Target: "B", Value: "weather берлин"},
		},
		{
			name: "fenced json",
			response: "Here is my decision:\n```json\n" +
				`{"action":"CLICK","target":"A","rationale":"open the first result"}` +
				"\n```",
			want: schemas.Action{Kind: schemas.ActionClick, Target: "A"},
		},
		{
			name:     "json embedded in prose",
			response: `Sure! I'll click it. {"action":"CLICK","target":"AC"} Hope that helps.`,
			want:     schemas.Action{Kind: schemas.ActionClick, Target: "AC"},
		},
		{
			name:     "lowercase kind is normalized",
			response: `{"action":"finish","value":"booked the flight"}`,
			want:     schemas.Action{Kind: schemas.ActionFinish, Value: "booked the flight"},
		},
		{
			name:     "target with stray whitespace",
			response: `{"action":"CLICK","target":" B "}`,
			want:     schemas.Action{Kind: schemas.ActionClick, Target: "B"},
		},
		{
			name:     "wait with duration",
			response: `{"action":"WAIT","duration_ms":1500}`,
			want:     schemas.Action{Kind: schemas.ActionWait, DurationMs: 1500},
		},
		{
			name:     "no json at all",
			response: "I think you should click the login button.",
			wantErr:  "failed to unmarshal",
		},
		{
			name:     "missing action field",
			response: `{"target":"A","value":"x"}`,
			wantErr:  "missing required 'action' field",
		},
		{
			name:     "unknown kind",
			response: `{"action":"DANCE","target":"A"}`,
			wantErr:  "unknown action kind",
		},
		{
			name:     "click without target",
			response: `{"action":"CLICK"}`,
			wantErr:  "requires a target",
		},
		{
			name:     "type without value",
			response: `{"action":"TYPE","target":"A"}`,
			wantErr:  "requires a value",
		},
		{
			name:     "wait without duration",
			response: `{"action":"WAIT"}`,
			wantErr:  "positive duration_ms",
		},
		{
			name:     "empty response",
			response: "",
			wantErr:  "could not find any JSON",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseActionResponse(tc.response)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want.Kind, got.Kind)
			assert.Equal(t, tc.want.Target, got.Target)
			assert.Equal(t, tc.want.Value, got.Value)
			assert.Equal(t, tc.want.DurationMs, got.DurationMs)
		})
	}
}

func TestResolveTarget(t *testing.T) {
	snap := &schemas.Snapshot{
		URL:  "https://example.com",
		Hash: "h1",
		Elements: []schemas.Element{
			{Label: "A", Tag: "button", Kind: schemas.ElementClickable, Selector: "button#go", Interactive: true},
		},
	}

	sel, err := resolveTarget(schemas.Action{Kind: schemas.ActionClick, Target: "A"}, snap, nil)
	require.NoError(t, err)
	assert.Equal(t, "button#go", sel)

	// Untargeted actions resolve to an empty selector.
	sel, err = resolveTarget(schemas.Action{Kind: schemas.ActionScroll}, snap, nil)
	require.NoError(t, err)
	assert.Empty(t, sel)

	// A label from an older snapshot must fail before dispatch.
	_, err = resolveTarget(schemas.Action{Kind: schemas.ActionClick, Target: "ZZ"}, snap, nil)
	require.Error(t, err)
	planErr, ok := err.(*PlanningError)
	require.True(t, ok)
	assert.Equal(t, CodeStaleLabel, planErr.Code)

	// A label whose element hit its retry ceiling must fail even though it
	// still exists in the snapshot.
	_, err = resolveTarget(schemas.Action{Kind: schemas.ActionClick, Target: "A"}, snap, map[string]bool{"A": true})
	require.Error(t, err)
	planErr, ok = err.(*PlanningError)
	require.True(t, ok)
	assert.Equal(t, CodeExhaustedElement, planErr.Code)
}

func TestParseVerdict(t *testing.T) {
	v, err := parseVerdict(`{"status":"complete","reason":"the receipt page is shown"}`)
	require.NoError(t, err)
	assert.Equal(t, verdictComplete, v.Status)

	v, err = parseVerdict("```json\n{\"status\":\"Stuck\",\"reason\":\"login wall\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, verdictStuck, v.Status)

	_, err = parseVerdict(`{"status":"maybe"}`)
	assert.Error(t, err)

	_, err = parseVerdict("not json")
	assert.Error(t, err)
}

func FuzzParseActionResponse(f *testing.F) {
	f.Add([]byte(`{"action":"CLICK","target":"A"}`))
	f.Add([]byte("```json\n{\"action\":\"WAIT\",\"duration_ms\":100}\n```"))
	f.Add([]byte(`prose {"action":"TYPE","target":"B","value":"x"} trailer`))
	f.Add([]byte(`{{{}}}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		response, err := fuzzConsumer.GetString()
		if err != nil {
			return
		}
		// Must be panic-free; a parsed action must satisfy the schema.
		action, err := parseActionResponse(response)
		if err == nil {
			assert.NoError(t, action.ValidateShape())
		}
	})
}
