package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/decision"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
)

func newTestAuditLog(t *testing.T) (*AuditLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	return NewAuditLog(path, nil), path
}

func TestAuditLog_AppendAndReadRoundTrip(t *testing.T) {
	log, _ := newTestAuditLog(t)

	first := decision.NewRecord("run-1", task.CategoryBuild, 0.91, true, decision.VerdictApproved, "confidence above threshold")
	second := decision.NewRecord("run-1", task.CategoryBuild, 0.40, true, decision.VerdictRejected, "low confidence on a destructive stage")

	require.NoError(t, log.Append(first))
	require.NoError(t, log.Append(second))

	records, err := log.Read()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, decision.VerdictApproved, records[0].Verdict)
	assert.Equal(t, 0.91, records[0].Confidence)
	assert.True(t, records[0].Destructive)
	assert.Equal(t, second.ID, records[1].ID)
	assert.Equal(t, decision.VerdictRejected, records[1].Verdict)
	assert.Equal(t, "low confidence on a destructive stage", records[1].Reason)
}

func TestAuditLog_ReadMissingFileIsEmpty(t *testing.T) {
	log, _ := newTestAuditLog(t)

	records, err := log.Read()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAuditLog_CorruptLineIsSkipped(t *testing.T) {
	log, path := newTestAuditLog(t)

	first := decision.NewRecord("run-1", task.CategoryReview, 0.85, false, decision.VerdictApproved, "non-destructive stage")
	require.NoError(t, log.Append(first))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{truncated garbage\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	second := decision.NewRecord("run-1", task.CategoryReview, 0.85, false, decision.VerdictApproved, "after the bad line")
	require.NoError(t, log.Append(second))

	records, err := log.Read()
	require.NoError(t, err)
	require.Len(t, records, 2, "one unreadable line must not hide the rest of the trail")
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, second.ID, records[1].ID)
}

func TestAuditLog_ConcurrentAppendsAllLand(t *testing.T) {
	log, _ := newTestAuditLog(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := decision.NewRecord("run-1", task.CategoryFix, 0.6, false, decision.VerdictApproved, "concurrent append")
			errs[i] = log.Append(rec)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	records, err := log.Read()
	require.NoError(t, err)
	assert.Len(t, records, n)

	seen := make(map[string]bool, n)
	for _, rec := range records {
		assert.False(t, seen[rec.ID], "duplicate record id %s", rec.ID)
		seen[rec.ID] = true
	}
}
