package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupFocusDB(t testing.TB) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))
	return db
}

func endedSession(id string, start time.Time) *FocusSession {
	end := start.Add(30 * time.Minute)
	return &FocusSession{
		SessionID: id,
		Status:    FocusSessionStatusEnded,
		StartTime: start,
		EndTime:   &end,
		EndReason: "user_stop",
		Tags:      "writing,deep-work",
		Summary:   "Editing code.",
		Metrics:   `{"checkIns":1}`,
	}
}

func TestFocusSession_TableNames(t *testing.T) {
	assert.Equal(t, "focus_sessions", FocusSession{}.TableName())
	assert.Equal(t, "session_events", SessionEvent{}.TableName())
}

func TestSaveFocusSession_Upsert(t *testing.T) {
	db := setupFocusDB(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s := &FocusSession{SessionID: "20260302_090000", Status: FocusSessionStatusActive, StartTime: start}
	require.NoError(t, SaveFocusSession(db, s))

	ended := endedSession("20260302_090000", start)
	ended.EventCount = 2
	require.NoError(t, SaveFocusSession(db, ended))

	var count int64
	require.NoError(t, db.Model(&FocusSession{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	got, err := GetFocusSession(db, "20260302_090000")
	require.NoError(t, err)
	assert.Equal(t, FocusSessionStatusEnded, got.Status)
	assert.Equal(t, "Editing code.", got.Summary)
	assert.Equal(t, 2, got.EventCount)
	require.NotNil(t, got.EndTime)

	assert.Error(t, SaveFocusSession(db, nil))
}

func TestAppendSessionEvent_IgnoresDuplicates(t *testing.T) {
	db := setupFocusDB(t)
	require.NoError(t, SaveFocusSession(db, endedSession("s1", time.Now())))

	productive := true
	ev := &SessionEvent{EventID: "e1", SessionID: "s1", Seq: 1, Kind: "analysis", Text: "Editing code.", Productive: &productive}
	require.NoError(t, AppendSessionEvent(db, ev))
	dup := *ev
	dup.ID = 0
	require.NoError(t, AppendSessionEvent(db, &dup))
	require.NoError(t, SaveSessionEvents(db, []SessionEvent{
		{EventID: "e0", SessionID: "s1", Seq: 0, Kind: "capture"},
		{EventID: "e2", SessionID: "s1", Seq: 2, Kind: "check_in", Text: "How's it going?"},
	}))

	events, err := GetSessionEvents(db, "s1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{events[0].Seq, events[1].Seq, events[2].Seq})
	require.NotNil(t, events[1].Productive)
	assert.True(t, *events[1].Productive)

	got, err := GetFocusSession(db, "s1")
	require.NoError(t, err)
	assert.Len(t, got.Events, 3)
}

func TestListFocusSessions_NewestFirst(t *testing.T) {
	db := setupFocusDB(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, SaveFocusSession(db, endedSession(id, base.Add(time.Duration(i)*time.Hour))))
	}

	list, err := ListFocusSessions(db, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].SessionID)
	assert.Equal(t, "b", list[1].SessionID)
}

func TestDeleteFocusSession(t *testing.T) {
	db := setupFocusDB(t)
	require.NoError(t, SaveFocusSession(db, endedSession("s1", time.Now())))
	require.NoError(t, AppendSessionEvent(db, &SessionEvent{EventID: "e1", SessionID: "s1", Seq: 1, Kind: "capture"}))

	require.NoError(t, DeleteFocusSession(db, "s1"))
	_, err := GetFocusSession(db, "s1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	events, err := GetSessionEvents(db, "s1")
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.ErrorIs(t, DeleteFocusSession(db, "s1"), gorm.ErrRecordNotFound)
}

func TestPruneFocusSessions(t *testing.T) {
	db := setupFocusDB(t)
	now := time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, SaveFocusSession(db, endedSession("old", now.AddDate(0, 0, -40))))
	require.NoError(t, SaveFocusSession(db, endedSession("recent", now.AddDate(0, 0, -2))))
	require.NoError(t, SaveFocusSession(db, &FocusSession{SessionID: "running", Status: FocusSessionStatusActive, StartTime: now.AddDate(0, 0, -60)}))
	require.NoError(t, AppendSessionEvent(db, &SessionEvent{EventID: "e1", SessionID: "old", Seq: 1, Kind: "capture"}))

	n, err := PruneFocusSessions(db, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := ListFocusSessions(db, 0)
	require.NoError(t, err)
	ids := []string{}
	for _, s := range list {
		ids = append(ids, s.SessionID)
	}
	assert.ElementsMatch(t, []string{"recent", "running"}, ids)

	n, err = PruneFocusSessions(db, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, n)
}
