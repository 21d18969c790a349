package session

import (
	"errors"
	"testing"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	testingclock "k8s.io/utils/clock/testing"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestTracker() (*Tracker, *testingclock.FakeClock) {
	fc := testingclock.NewFakeClock(t0)
	return NewTracker(WithClock(fc), WithLogger(zap.NewNop())), fc
}

func TestTracker_StartTwiceFailsWithAlreadyActive(t *testing.T) {
	tr, _ := newTestTracker()

	s, err := tr.StartSession(StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, "20260302_090000", s.ID)
	assert.True(t, s.IsActive())

	_, err = tr.StartSession(StartOptions{})
	assert.True(t, errors.Is(err, errs.ErrAlreadyActive))
}

func TestTracker_SameSecondIDsGetNumericSuffix(t *testing.T) {
	tr, fc := newTestTracker()

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := tr.StartSession(StartOptions{})
		require.NoError(t, err)
		ids = append(ids, s.ID)
		_, err = tr.EndSession(ReasonUserStop)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"20260302_090000", "20260302_090000_2", "20260302_090000_3"}, ids)

	fc.Step(time.Second)
	s, err := tr.StartSession(StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, "20260302_090001", s.ID)
}

func TestTracker_EndWithoutSessionFailsWithNotActive(t *testing.T) {
	tr, _ := newTestTracker()

	_, err := tr.EndSession(ReasonUserStop)
	assert.True(t, errors.Is(err, errs.ErrNotActive))

	_, err = tr.StartSession(StartOptions{})
	require.NoError(t, err)
	_, err = tr.EndSession(ReasonUserStop)
	require.NoError(t, err)

	_, err = tr.EndSession(ReasonUserStop)
	assert.True(t, errors.Is(err, errs.ErrNotActive))
}

func TestTracker_RecordWithoutSessionFails(t *testing.T) {
	tr, _ := newTestTracker()

	_, err := tr.RecordEvent(NewAnalysis("Editing code", t0))
	assert.True(t, errors.Is(err, errs.ErrNoActiveSession))

	_, err = tr.Metrics()
	assert.True(t, errors.Is(err, errs.ErrNoActiveSession))
}

func TestTracker_RejectsEventForAnotherSession(t *testing.T) {
	tr, _ := newTestTracker()
	_, err := tr.StartSession(StartOptions{})
	require.NoError(t, err)

	ev := NewAnalysis("late result", t0)
	ev.SessionID = "19990101_000000"
	_, err = tr.RecordEvent(ev)
	assert.True(t, errors.Is(err, errs.ErrNoActiveSession))
}

func TestTracker_EventsAreOrderedAndImmutable(t *testing.T) {
	tr, fc := newTestTracker()
	_, err := tr.StartSession(StartOptions{})
	require.NoError(t, err)

	fc.Step(10 * time.Second)
	first, err := tr.RecordEvent(NewAnalysis("Editing code", fc.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Seq)

	fc.Step(10 * time.Second)
	_, err = tr.RecordEvent(NewCheckIn("How is it going?", fc.Now()))
	require.NoError(t, err)

	_, err = tr.RecordEvent(NewUserResponse("fine", t0))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	// same timestamp as the last event is fine
	_, err = tr.RecordEvent(NewUserResponse("fine", fc.Now()))
	require.NoError(t, err)

	snap, ok := tr.Active()
	require.True(t, ok)
	require.Len(t, snap.Events, 3)
	snap.Events[0].Text = "mutated"
	snap.Events = snap.Events[:1]

	again, _ := tr.Active()
	require.Len(t, again.Events, 3)
	assert.Equal(t, "Editing code", again.Events[0].Text)
	for i := 1; i < len(again.Events); i++ {
		assert.False(t, again.Events[i].Timestamp.Before(again.Events[i-1].Timestamp))
		assert.Equal(t, i+1, again.Events[i].Seq)
	}
}

func TestTracker_ZeroTimestampUsesClock(t *testing.T) {
	tr, fc := newTestTracker()
	_, err := tr.StartSession(StartOptions{})
	require.NoError(t, err)

	fc.Step(5 * time.Second)
	ev, err := tr.RecordEvent(Event{Kind: KindUserResponse, Text: "ok"})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(5*time.Second), ev.Timestamp)
	assert.NotEmpty(t, ev.ID)
}

func TestTracker_Metrics(t *testing.T) {
	tr, fc := newTestTracker()
	_, err := tr.StartSession(StartOptions{})
	require.NoError(t, err)

	record := func(ev Event) {
		_, err := tr.RecordEvent(ev)
		require.NoError(t, err)
	}

	fc.SetTime(t0.Add(60 * time.Second))
	record(NewAnalysis("Editing code", fc.Now()))
	fc.SetTime(t0.Add(120 * time.Second))
	record(NewCheckIn("Still on track?", fc.Now()))
	fc.SetTime(t0.Add(125 * time.Second))
	record(NewUserResponse("yes", fc.Now()))
	fc.SetTime(t0.Add(300 * time.Second))
	record(NewAnalysis("Reading docs", fc.Now()))

	fc.SetTime(t0.Add(310 * time.Second))
	m, err := tr.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 310*time.Second, m.Elapsed)
	assert.Equal(t, 1, m.CheckIns)
	assert.Equal(t, 1, m.UserResponses)
	assert.Equal(t, 2, m.Analyses)
	assert.Equal(t, 175*time.Second, m.LongestGap)
}

func TestTracker_MetricsSurviveRepeatedFailures(t *testing.T) {
	tr, fc := newTestTracker()
	_, err := tr.StartSession(StartOptions{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		fc.Step(time.Minute)
		_, err := tr.RecordEvent(NewFailedAnalysis(errs.ErrAnalysisFailure, fc.Now()))
		require.NoError(t, err)
	}

	m, err := tr.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 5, m.FailedAnalyses)
	assert.Equal(t, 5*time.Minute, m.Elapsed)
	assert.Zero(t, m.FocusPercent)
	assert.Zero(t, m.ProductivityScore)

	_, active := tr.Active()
	assert.True(t, active)
}

func TestTracker_EndedSessionKeepsFinalState(t *testing.T) {
	tr, fc := newTestTracker()
	_, err := tr.StartSession(StartOptions{Tags: []string{"deep work", "deep work", " "}})
	require.NoError(t, err)
	require.NoError(t, tr.SetSummary(tr.ActiveID(), "Editing code."))
	require.NoError(t, tr.SetNotes("release prep"))

	fc.Step(90 * time.Second)
	ended, err := tr.EndSession(ReasonInactivity)
	require.NoError(t, err)

	require.NotNil(t, ended.EndedAt)
	assert.Equal(t, t0.Add(90*time.Second), *ended.EndedAt)
	assert.Equal(t, ReasonInactivity, ended.EndReason)
	assert.Equal(t, []string{"deep work"}, ended.Tags)
	assert.Equal(t, "Editing code.", ended.Summary)
	assert.Equal(t, "release prep", ended.Notes)

	fc.Step(time.Hour)
	assert.Equal(t, 90*time.Second, ended.Metrics(fc.Now(), MetricsOptions{}).Elapsed)

	assert.Error(t, tr.SetSummary(ended.ID, "late"))
	assert.Empty(t, tr.Summary())
}

func TestTracker_SessionIDsDoNotCollide(t *testing.T) {
	tr, _ := newTestTracker()

	first, err := tr.StartSession(StartOptions{})
	require.NoError(t, err)
	_, err = tr.EndSession(ReasonUserStop)
	require.NoError(t, err)

	second, err := tr.StartSession(StartOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestTracker_ListenersSeeEventsInOrder(t *testing.T) {
	tr, fc := newTestTracker()
	var seen []int
	tr.OnEvent(func(ev Event) { seen = append(seen, ev.Seq) })

	_, err := tr.StartSession(StartOptions{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		fc.Step(time.Second)
		_, err := tr.RecordEvent(NewCapture("frame.jpg", fc.Now()))
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 2, 3}, seen)
}
