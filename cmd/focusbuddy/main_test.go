package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/session"
	"github.com/code-100-precent/FocusBuddy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_TYPE", "file")
	t.Setenv("STORE_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("REALTIME_ENABLED", "false")

	st, err := store.NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	old := time.Now().AddDate(0, 0, -60)
	recent := time.Now().Add(-time.Hour)
	for id, start := range map[string]time.Time{"old_session": old, "recent_session": recent} {
		end := start.Add(25 * time.Minute)
		s := session.Session{
			ID:              id,
			StartedAt:       start,
			EndedAt:         &end,
			EndReason:       session.ReasonUserStop,
			PlannedDuration: 25 * time.Minute,
			Tags:            []string{"writing"},
			Summary:         "Drafting the report in a text editor.",
		}
		require.NoError(t, st.Save(context.Background(), store.NewRecord(s, end, session.MetricsOptions{})))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSessionsList(t *testing.T) {
	seedStore(t)

	out, err := execute(t, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "recent_session")
	assert.Contains(t, out, "old_session")
	assert.Contains(t, out, "writing")
}

func TestSessionsShow(t *testing.T) {
	seedStore(t)

	out, err := execute(t, "sessions", "show", "recent_session")
	require.NoError(t, err)
	assert.Contains(t, out, "Session recent_session")
	assert.Contains(t, out, "Drafting the report")

	out, err = execute(t, "sessions", "show", "recent_session", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "recent_session"`)

	_, err = execute(t, "sessions", "show", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionsDeleteAndPrune(t *testing.T) {
	seedStore(t)

	out, err := execute(t, "sessions", "prune", "--days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 1 sessions")

	out, err = execute(t, "sessions", "rm", "recent_session")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted recent_session")

	out, err = execute(t, "sessions", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "no sessions")

	_, err = execute(t, "sessions", "prune", "--days", "0")
	assert.Error(t, err)
}

func TestUnknownStoreType(t *testing.T) {
	t.Setenv("STORE_TYPE", "nosql")
	t.Setenv("LOG_LEVEL", "error")

	_, err := execute(t, "sessions", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store type "nosql"`)
}
