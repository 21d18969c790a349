package session

import (
	"math"
	"time"
)

// DefaultScoreHorizon is the session length at which the productivity score
// stops being discounted for short sessions.
const DefaultScoreHorizon = 120 * time.Minute

// Metrics is derived from a Session's Event sequence.
type Metrics struct {
	Elapsed        time.Duration `json:"elapsed"`
	Captures       int           `json:"captures"`
	Analyses       int           `json:"analyses"`
	FailedAnalyses int           `json:"failedAnalyses"`
	CheckIns       int           `json:"checkIns"`
	UserResponses  int           `json:"userResponses"`
	// LongestGap is the widest spacing between two consecutive events.
	LongestGap time.Duration `json:"longestGap"`

	FocusTime         time.Duration `json:"focusTime"`
	DistractionTime   time.Duration `json:"distractionTime"`
	FocusBreaks       int           `json:"focusBreaks"`
	LongestFocus      time.Duration `json:"longestFocus"`
	FocusPercent      float64       `json:"focusPercent"`
	ProductivityScore int           `json:"productivityScore"`
	CheckInCompliance float64       `json:"checkInCompliance"`
}

// MetricsOptions tunes the derived scores. Zero values fall back to defaults.
type MetricsOptions struct {
	ScoreHorizon    time.Duration
	CheckInInterval time.Duration
}

// ComputeMetrics derives Metrics from events between start and end. It never
// fails: an empty or fully degraded event list yields zero counters.
func ComputeMetrics(start, end time.Time, events []Event, opts MetricsOptions) Metrics {
	m := Metrics{}
	if end.After(start) {
		m.Elapsed = end.Sub(start)
	}

	var (
		prev        *Event
		judgedPrev  *Event
		focusStart  time.Time
		inFocusRun  bool
		wasFocused  bool
		haveVerdict bool
	)

	closeVerdict := func(until time.Time) {
		if judgedPrev == nil {
			return
		}
		span := until.Sub(judgedPrev.Timestamp)
		if span < 0 {
			span = 0
		}
		if judgedPrev.IsProductive() {
			m.FocusTime += span
		} else {
			m.DistractionTime += span
		}
	}

	for i := range events {
		ev := &events[i]
		switch ev.Kind {
		case KindCapture:
			m.Captures++
		case KindAnalysis:
			m.Analyses++
			if ev.Failed {
				m.FailedAnalyses++
			}
		case KindCheckIn:
			m.CheckIns++
		case KindUserResponse:
			m.UserResponses++
		}

		if prev != nil {
			if gap := ev.Timestamp.Sub(prev.Timestamp); gap > m.LongestGap {
				m.LongestGap = gap
			}
		}
		prev = ev

		if !ev.IsProductive() && !ev.IsDistracted() {
			continue
		}
		closeVerdict(ev.Timestamp)
		judgedPrev = ev

		productive := ev.IsProductive()
		if haveVerdict && wasFocused && !productive {
			m.FocusBreaks++
		}
		switch {
		case productive && !inFocusRun:
			inFocusRun = true
			focusStart = ev.Timestamp
		case !productive && inFocusRun:
			inFocusRun = false
			if run := ev.Timestamp.Sub(focusStart); run > m.LongestFocus {
				m.LongestFocus = run
			}
		}
		wasFocused = productive
		haveVerdict = true
	}

	if judgedPrev != nil && end.After(judgedPrev.Timestamp) {
		closeVerdict(end)
	}
	if inFocusRun && end.After(focusStart) {
		if run := end.Sub(focusStart); run > m.LongestFocus {
			m.LongestFocus = run
		}
	}

	if total := m.FocusTime + m.DistractionTime; total > 0 {
		m.FocusPercent = float64(m.FocusTime) / float64(total) * 100
	}

	horizon := opts.ScoreHorizon
	if horizon <= 0 {
		horizon = DefaultScoreHorizon
	}
	factor := math.Min(1, float64(m.Elapsed)/float64(horizon))
	m.ProductivityScore = int(math.Round(m.FocusPercent * factor))

	if opts.CheckInInterval > 0 {
		expected := int(m.Elapsed / opts.CheckInInterval)
		if expected < 1 {
			expected = 1
		}
		m.CheckInCompliance = math.Min(100, float64(m.CheckIns)/float64(expected)*100)
	}
	return m
}
