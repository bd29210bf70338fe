package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "")

	l.LogStep("thread-1", 2, "catalog_info", "12 albums")
	l.LogError("thread-1", "executor", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var evt Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &evt))
	assert.Equal(t, EventTypeStep, evt.Type)
	assert.Equal(t, "thread-1", evt.ChatID)
	assert.Equal(t, "executor", evt.TaskID)
	assert.False(t, evt.Timestamp.IsZero())

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &evt))
	assert.Equal(t, EventTypeError, evt.Type)
}

func TestLoggerWritesLLMTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "llm.jsonl")
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, path)

	l.LogLLM("thread-1", "supervisor", "prompt", "", nil)
	l.LogPlan("thread-1", "supervisor", []string{"a"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), `"type":"llm"`)
}

func TestNilLoggerIsSilent(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.LogResponse("t", "done")
	})
}

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	assert.Equal(t, RoleIdle, tr.GetStatus("a").Role)

	tr.SetStatus("b", RoleExecutor, "catalog_info")
	tr.SetStatus("a", RoleReview, "")
	tr.SetStatus("c", RoleDone, "")

	got := tr.GetStatus("b")
	assert.Equal(t, RoleExecutor, got.Role)
	assert.Equal(t, fixed, got.UpdatedAt)

	active := tr.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ThreadID)
	assert.Equal(t, "b", active[1].ThreadID)

	tr.Forget("b")
	assert.Equal(t, RoleIdle, tr.GetStatus("b").Role)

	tr.Heartbeat()
	assert.Equal(t, fixed, tr.LastHeartbeat())
}
