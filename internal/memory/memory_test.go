// internal/memory/memory_test.go
package memory

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

func execFailure(label string) schemas.AttemptRecord {
	return schemas.AttemptRecord{
		ID:           uuid.NewString(),
		Phase:        schemas.PhaseActing,
		ElementLabel: label,
		ActionKind:   schemas.ActionClick,
		Outcome:      schemas.OutcomeFailure,
		Error:        "element not interactable",
		Timestamp:    time.Now().UTC(),
	}
}

func execSuccess(label string) schemas.AttemptRecord {
	return schemas.AttemptRecord{
		ID:           uuid.NewString(),
		Phase:        schemas.PhaseActing,
		ElementLabel: label,
		ActionKind:   schemas.ActionClick,
		Outcome:      schemas.OutcomeSuccess,
		Timestamp:    time.Now().UTC(),
	}
}

func TestRecordStampsSessionID(t *testing.T) {
	log := NewLog("sess-1", 3)
	log.Record(execSuccess("A"))

	all := log.All()
	require.Len(t, all, 1)
	assert.Equal(t, "sess-1", all[0].SessionID)
}

func TestHistoryFiltersByElement(t *testing.T) {
	log := NewLog("sess-1", 3)
	log.Record(execFailure("A"))
	log.Record(execSuccess("B"))
	log.Record(execFailure("A"))

	hist := log.History("A")
	require.Len(t, hist, 2)
	for _, rec := range hist {
		assert.Equal(t, "A", rec.ElementLabel)
	}
	assert.Empty(t, log.History("Z"))
}

func TestExhaustionAtCeiling(t *testing.T) {
	log := NewLog("sess-1", 3)

	log.Record(execFailure("A"))
	assert.False(t, log.IsExhausted("A"))
	log.Record(execFailure("A"))
	assert.False(t, log.IsExhausted("A"))
	log.Record(execFailure("A"))
	assert.True(t, log.IsExhausted("A"))
	assert.Equal(t, 3, log.FailureCount("A"))

	// Other elements are unaffected.
	assert.False(t, log.IsExhausted("B"))
	assert.Equal(t, map[string]bool{"A": true}, log.Exhausted())
}

func TestSuccessDoesNotAdvanceRetryCounter(t *testing.T) {
	log := NewLog("sess-1", 2)
	log.Record(execSuccess("A"))
	log.Record(execSuccess("A"))
	log.Record(execSuccess("A"))
	assert.False(t, log.IsExhausted("A"))
	assert.Zero(t, log.FailureCount("A"))
}

func TestNonActingFailuresDoNotExhaustElements(t *testing.T) {
	log := NewLog("sess-1", 1)
	log.Record(schemas.AttemptRecord{
		Phase:        schemas.PhasePlanning,
		ElementLabel: "A",
		Outcome:      schemas.OutcomeFailure,
		Error:        "malformed response",
	})
	assert.False(t, log.IsExhausted("A"))
}

func TestLastN(t *testing.T) {
	log := NewLog("sess-1", 3)
	for i := 0; i < 5; i++ {
		rec := execSuccess("A")
		rec.Iteration = i
		log.Record(rec)
	}

	last := log.LastN(2)
	require.Len(t, last, 2)
	assert.Equal(t, 3, last[0].Iteration)
	assert.Equal(t, 4, last[1].Iteration)

	assert.Len(t, log.LastN(100), 5)
	assert.Nil(t, log.LastN(0))
	assert.Nil(t, log.LastN(-1))
}

func TestAllReturnsCopy(t *testing.T) {
	log := NewLog("sess-1", 3)
	log.Record(execSuccess("A"))

	all := log.All()
	all[0].ElementLabel = "mutated"
	assert.Equal(t, "A", log.All()[0].ElementLabel)
}

func TestConcurrentRecordAndRead(t *testing.T) {
	log := NewLog("sess-1", 50)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				log.Record(execFailure("A"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = log.LastN(5)
				_ = log.IsExhausted("A")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, log.Len())
	assert.True(t, log.IsExhausted("A"))
}

func TestPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log := NewLog("sess-persist", 3)
	log.Record(execFailure("A"))
	log.Record(execSuccess("B"))

	require.NoError(t, Persist(log, dir))

	path := filepath.Join(dir, "sess-persist.json")
	sessionID, records, err := LoadRecords(path)
	require.NoError(t, err)
	assert.Equal(t, "sess-persist", sessionID)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].ElementLabel)
	assert.Equal(t, schemas.OutcomeSuccess, records[1].Outcome)
}

func TestPersistCreatesNestedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	log := NewLog("sess-nested", 3)
	log.Record(execSuccess("A"))
	require.NoError(t, Persist(log, dir))

	_, records, err := LoadRecords(filepath.Join(dir, "sess-nested.json"))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLoadRecordsErrors(t *testing.T) {
	_, _, err := LoadRecords(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, _, err = LoadRecords(bad)
	assert.Error(t, err)
}
