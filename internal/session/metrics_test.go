package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func judged(text string, productive bool, at time.Duration) Event {
	return NewAnalysis(text, t0.Add(at)).WithVerdict(productive, nil, nil)
}

func TestComputeMetrics_Empty(t *testing.T) {
	m := ComputeMetrics(t0, t0.Add(130*time.Second), nil, MetricsOptions{})

	assert.Equal(t, 130*time.Second, m.Elapsed)
	assert.Zero(t, m.LongestGap)
	assert.Zero(t, m.CheckIns)
	assert.Zero(t, m.FocusPercent)
}

func TestComputeMetrics_FocusPeriods(t *testing.T) {
	events := []Event{
		judged("Editing code", true, 0),
		judged("Running tests", true, 10*time.Minute),
		judged("Browsing video", false, 20*time.Minute),
		judged("Editing code", true, 30*time.Minute),
	}

	m := ComputeMetrics(t0, t0.Add(40*time.Minute), events, MetricsOptions{ScoreHorizon: 40 * time.Minute})

	assert.Equal(t, 30*time.Minute, m.FocusTime)
	assert.Equal(t, 10*time.Minute, m.DistractionTime)
	assert.Equal(t, 1, m.FocusBreaks)
	assert.Equal(t, 20*time.Minute, m.LongestFocus)
	assert.InDelta(t, 75.0, m.FocusPercent, 0.001)
	assert.Equal(t, 75, m.ProductivityScore)
}

func TestComputeMetrics_ShortSessionIsDiscounted(t *testing.T) {
	events := []Event{judged("Editing code", true, 0)}

	m := ComputeMetrics(t0, t0.Add(30*time.Minute), events, MetricsOptions{ScoreHorizon: time.Hour})

	assert.InDelta(t, 100.0, m.FocusPercent, 0.001)
	assert.Equal(t, 50, m.ProductivityScore)
	assert.Equal(t, 30*time.Minute, m.LongestFocus)
}

func TestComputeMetrics_FailedAnalysesCarryNoVerdict(t *testing.T) {
	events := []Event{
		judged("Editing code", true, 0),
		NewFailedAnalysis(nil, t0.Add(time.Minute)),
		judged("Editing code", true, 2*time.Minute),
	}

	m := ComputeMetrics(t0, t0.Add(3*time.Minute), events, MetricsOptions{})

	assert.Equal(t, 0, m.FocusBreaks)
	assert.Equal(t, 3*time.Minute, m.FocusTime)
	assert.Equal(t, 1, m.FailedAnalyses)
}

func TestComputeMetrics_CheckInCompliance(t *testing.T) {
	events := []Event{
		NewCheckIn("one", t0.Add(time.Minute)),
	}

	m := ComputeMetrics(t0, t0.Add(4*time.Minute), events, MetricsOptions{CheckInInterval: 2 * time.Minute})

	assert.InDelta(t, 50.0, m.CheckInCompliance, 0.001)
}
