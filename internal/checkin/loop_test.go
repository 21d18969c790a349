package checkin

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/session"
	"github.com/code-100-precent/FocusBuddy/internal/summary"
	"github.com/code-100-precent/FocusBuddy/pkg/capture"
	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/code-100-precent/FocusBuddy/pkg/vision"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	testingclock "k8s.io/utils/clock/testing"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const waitFor = 2 * time.Second

type captureFunc func(ctx context.Context) (capture.Frame, error)

func (f captureFunc) Capture(ctx context.Context) (capture.Frame, error) { return f(ctx) }

type analyzeFunc func(ctx context.Context, frame []byte, instruction string) (vision.Result, error)

func (f analyzeFunc) Analyze(ctx context.Context, frame []byte, instruction string) (vision.Result, error) {
	return f(ctx, frame, instruction)
}

type notifyFunc func(ctx context.Context, sessionID, prompt string) error

func (f notifyFunc) Notify(ctx context.Context, sessionID, prompt string) error {
	return f(ctx, sessionID, prompt)
}

func okCapturer() Capturer {
	return captureFunc(func(context.Context) (capture.Frame, error) {
		return capture.Frame{Data: []byte{0xff, 0xd8, 0xff}, Ref: "captures/frame.jpg"}, nil
	})
}

func textAnalyzer(text string) Analyzer {
	return analyzeFunc(func(context.Context, []byte, string) (vision.Result, error) {
		return vision.Result{
			Text:       text,
			Productive: vision.IsProductive(text),
			Apps:       vision.DetectApps(text),
			Activities: vision.DetectActivities(text),
		}, nil
	})
}

func testSettings() Settings {
	s := DefaultSettings()
	s.TickInterval = 60 * time.Second
	s.CheckInInterval = 120 * time.Second
	return s
}

type harness struct {
	t       *testing.T
	clock   *testingclock.FakeClock
	tracker *session.Tracker
	loop    *Loop
}

func newHarness(t *testing.T, s Settings, c Capturer, a Analyzer, mutate func(*Config)) *harness {
	t.Helper()
	fc := testingclock.NewFakeClock(t0)
	tr := session.NewTracker(session.WithClock(fc), session.WithLogger(zap.NewNop()))
	sess, err := tr.StartSession(session.StartOptions{})
	require.NoError(t, err)

	cfg := Config{
		SessionID:  sess.ID,
		StartedAt:  sess.StartedAt,
		Settings:   s,
		Recorder:   tr,
		Capturer:   c,
		Analyzer:   a,
		Summarizer: summary.NewPolicy(summary.Budget{Limit: 2, Unit: summary.UnitSentences}, nil, zap.NewNop()),
		Clock:      fc,
		Logger:     zap.NewNop(),
		Metrics:    NewMetrics(prometheus.NewRegistry()),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(l.Stop)

	return &harness{t: t, clock: fc, tracker: tr, loop: l}
}

func (h *harness) events() []session.Event {
	s, ok := h.tracker.Active()
	if !ok {
		return nil
	}
	return s.Events
}

func (h *harness) count(kind session.EventKind, failed bool) int {
	n := 0
	for _, ev := range h.events() {
		if ev.Kind == kind && ev.Failed == failed {
			n++
		}
	}
	return n
}

func (h *harness) analyses() int { return h.count(session.KindAnalysis, false) }
func (h *harness) failed() int   { return h.count(session.KindAnalysis, true) }
func (h *harness) checkIns() int { return h.count(session.KindCheckIn, false) }

func (h *harness) stepUntil(d time.Duration, cond func() bool) {
	h.t.Helper()
	h.clock.Step(d)
	require.Eventually(h.t, cond, waitFor, 5*time.Millisecond)
}

func TestLoop_TickAndCheckInCadence(t *testing.T) {
	prompts := make(chan string, 4)
	h := newHarness(t, testSettings(), okCapturer(), textAnalyzer("Editing code in VS Code."), func(c *Config) {
		c.Notifier = notifyFunc(func(_ context.Context, _ string, prompt string) error {
			prompts <- prompt
			return nil
		})
	})

	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 1 })
	assert.Zero(t, h.checkIns())

	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 2 && h.checkIns() == 1 })

	h.clock.Step(10 * time.Second)
	m, err := h.tracker.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 130*time.Second, m.Elapsed)
	assert.Equal(t, 1, m.CheckIns)

	var analysisAt, checkInAt []time.Time
	events := h.events()
	for i, ev := range events {
		if i > 0 {
			assert.False(t, ev.Timestamp.Before(events[i-1].Timestamp), "event %d out of order", i)
		}
		switch ev.Kind {
		case session.KindAnalysis:
			analysisAt = append(analysisAt, ev.Timestamp)
		case session.KindCheckIn:
			checkInAt = append(checkInAt, ev.Timestamp)
		}
	}
	assert.Equal(t, []time.Time{t0.Add(60 * time.Second), t0.Add(120 * time.Second)}, analysisAt)
	assert.Equal(t, []time.Time{t0.Add(120 * time.Second)}, checkInAt)

	select {
	case p := <-prompts:
		assert.NotEmpty(t, p)
	case <-time.After(waitFor):
		t.Fatal("check-in was not delivered")
	}

	require.Eventually(t, func() bool {
		return h.tracker.Summary() == "Editing code in VS Code. Editing code in VS Code."
	}, waitFor, 5*time.Millisecond)
}

func TestLoop_StopDiscardsInFlightCapture(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	c := captureFunc(func(context.Context) (capture.Frame, error) {
		entered <- struct{}{}
		<-release
		return capture.Frame{Data: []byte{1}, Ref: "late.jpg"}, nil
	})
	h := newHarness(t, testSettings(), c, textAnalyzer("Editing code."), nil)

	h.clock.Step(60 * time.Second)
	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("capture never started")
	}

	h.loop.Stop()
	close(release)

	assert.Never(t, func() bool { return len(h.events()) > 0 }, 200*time.Millisecond, 10*time.Millisecond)
	_, active := h.tracker.Active()
	assert.True(t, active, "stopping the loop does not end the session")
	assert.Equal(t, StatusStopped, h.loop.Status())
}

func TestLoop_StopDiscardsInFlightAnalysis(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	a := analyzeFunc(func(context.Context, []byte, string) (vision.Result, error) {
		entered <- struct{}{}
		<-release
		return vision.Result{Text: "Too late."}, nil
	})
	h := newHarness(t, testSettings(), okCapturer(), a, nil)

	h.clock.Step(60 * time.Second)
	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("analysis never started")
	}
	require.Equal(t, 1, h.count(session.KindCapture, false))

	h.loop.Stop()
	close(release)

	assert.Never(t, func() bool { return len(h.events()) > 1 }, 200*time.Millisecond, 10*time.Millisecond)

	_, err := h.loop.RecordResponse("still here")
	assert.ErrorIs(t, err, errs.ErrNoActiveSession)
	assert.ErrorIs(t, h.loop.CaptureNow(), errs.ErrNoActiveSession)
}

func TestLoop_RepeatedFailuresDegradeAndRecover(t *testing.T) {
	var healthy atomic.Bool
	a := analyzeFunc(func(context.Context, []byte, string) (vision.Result, error) {
		if healthy.Load() {
			return vision.Result{Text: "Writing the report.", Productive: true}, nil
		}
		return vision.Result{}, errs.AnalysisFailure(errs.SeverityRecoverable, errors.New("bad request"))
	})
	statuses := make(chan Status, 8)
	h := newHarness(t, testSettings(), okCapturer(), a, func(c *Config) {
		c.Hooks.OnStatus = func(_ string, s Status) { statuses <- s }
	})

	for i := 1; i <= 3; i++ {
		h.stepUntil(60*time.Second, func() bool { return h.failed() == i })
		if i < 3 {
			assert.Equal(t, StatusOK, h.loop.Status())
		}
	}
	require.Eventually(t, func() bool { return h.loop.Status() == StatusDegraded }, waitFor, 5*time.Millisecond)
	assert.Equal(t, StatusDegraded, <-statuses)

	_, active := h.tracker.Active()
	assert.True(t, active)
	m, err := h.tracker.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 3, m.FailedAnalyses)
	assert.Zero(t, m.Analyses)

	for _, ev := range h.events() {
		if ev.Kind == session.KindAnalysis {
			assert.Empty(t, ev.Text)
			assert.Contains(t, ev.Error, "bad request")
		}
	}

	healthy.Store(true)
	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 1 })
	require.Eventually(t, func() bool { return h.loop.Status() == StatusOK }, waitFor, 5*time.Millisecond)
	assert.Equal(t, StatusOK, <-statuses)
}

func TestLoop_TransientFailureRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	a := analyzeFunc(func(context.Context, []byte, string) (vision.Result, error) {
		if calls.Add(1) == 1 {
			return vision.Result{}, errs.AnalysisFailure(errs.SeverityTransient, errors.New("status code: 429"))
		}
		return vision.Result{Text: "Reading documentation."}, nil
	})
	h := newHarness(t, testSettings(), okCapturer(), a, nil)

	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 1 })
	assert.EqualValues(t, 2, calls.Load())
	assert.Zero(t, h.failed())
}

func TestLoop_PersistentTransientFailureRetriedOnlyOnce(t *testing.T) {
	var calls atomic.Int32
	a := analyzeFunc(func(context.Context, []byte, string) (vision.Result, error) {
		calls.Add(1)
		return vision.Result{}, errs.AnalysisFailure(errs.SeverityTransient, errors.New("service unavailable"))
	})
	h := newHarness(t, testSettings(), okCapturer(), a, nil)

	h.stepUntil(60*time.Second, func() bool { return h.failed() == 1 })
	assert.EqualValues(t, 2, calls.Load())
}

func TestLoop_CaptureFailureRecordsDegradedAnalysis(t *testing.T) {
	c := captureFunc(func(context.Context) (capture.Frame, error) {
		return capture.Frame{}, errors.New("screenshot tool missing")
	})
	h := newHarness(t, testSettings(), c, textAnalyzer("unused"), nil)

	h.stepUntil(60*time.Second, func() bool { return h.failed() == 1 })
	assert.Zero(t, h.count(session.KindCapture, false))

	ev := h.events()[0]
	assert.True(t, ev.Failed)
	assert.Contains(t, ev.Error, "screenshot tool missing")
}

func TestLoop_SettingsApplyAtNextTick(t *testing.T) {
	h := newHarness(t, testSettings(), okCapturer(), textAnalyzer("Editing code."), nil)

	faster := testSettings()
	faster.TickInterval = 30 * time.Second
	faster.Style = StyleDirect
	require.NoError(t, h.loop.UpdateSettings(faster))
	assert.Equal(t, faster, h.loop.Settings())

	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 1 })
	h.stepUntil(30*time.Second, func() bool { return h.analyses() == 2 })

	bad := faster
	bad.CheckInInterval = time.Second
	assert.Error(t, h.loop.UpdateSettings(bad))
}

func TestLoop_InactivityEndsSession(t *testing.T) {
	s := testSettings()
	s.InactivityTimeout = 90 * time.Second
	ends := make(chan session.EndReason, 1)
	h := newHarness(t, s, okCapturer(), textAnalyzer("Reading the same page."), func(c *Config) {
		c.Hooks.OnEnd = func(_ string, r session.EndReason) { ends <- r }
	})

	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 1 })
	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 2 })
	h.clock.Step(60 * time.Second)

	select {
	case r := <-ends:
		assert.Equal(t, session.ReasonInactivity, r)
	case <-time.After(waitFor):
		t.Fatal("inactivity did not end the session")
	}
}

func TestLoop_UserResponseCountsAsActivity(t *testing.T) {
	s := testSettings()
	s.InactivityTimeout = 90 * time.Second
	ends := make(chan session.EndReason, 1)
	h := newHarness(t, s, okCapturer(), textAnalyzer("Reading the same page."), func(c *Config) {
		c.Hooks.OnEnd = func(_ string, r session.EndReason) { ends <- r }
	})

	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 1 })
	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 2 })
	ev, err := h.loop.RecordResponse("  thinking about the design  ")
	require.NoError(t, err)
	assert.Equal(t, "thinking about the design", ev.Text)

	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 3 })
	select {
	case r := <-ends:
		t.Fatalf("unexpected end: %s", r)
	default:
	}
}

func TestLoop_AutoEndAfterPlannedDuration(t *testing.T) {
	s := testSettings()
	s.AutoEnd = true
	ends := make(chan session.EndReason, 1)
	h := newHarness(t, s, okCapturer(), textAnalyzer("Editing code."), func(c *Config) {
		c.PlannedDuration = 2 * time.Minute
		c.Hooks.OnEnd = func(_ string, r session.EndReason) { ends <- r }
	})

	h.stepUntil(60*time.Second, func() bool { return h.analyses() == 1 })
	h.clock.Step(60 * time.Second)

	select {
	case r := <-ends:
		assert.Equal(t, session.ReasonDurationElapsed, r)
	case <-time.After(waitFor):
		t.Fatal("planned duration did not end the session")
	}
}

func TestLoop_CaptureNow(t *testing.T) {
	h := newHarness(t, testSettings(), okCapturer(), textAnalyzer("Editing code."), nil)

	require.NoError(t, h.loop.CaptureNow())
	require.Eventually(t, func() bool { return h.analyses() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, t0, h.events()[0].Timestamp)
}

func TestNew_RejectsIncompleteConfig(t *testing.T) {
	_, err := New(Config{SessionID: "s", Settings: testSettings()})
	assert.Error(t, err)

	_, err = New(Config{
		SessionID: "s",
		Settings:  Settings{TickInterval: time.Minute, CheckInInterval: time.Second, FailureThreshold: 1},
		Recorder:  session.NewTracker(),
		Capturer:  okCapturer(),
		Analyzer:  textAnalyzer("x"),
	})
	assert.Error(t, err)
}
