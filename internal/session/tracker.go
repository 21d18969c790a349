package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// IDLayout formats session ids from the start time.
const IDLayout = "20060102_150405"

// ErrOutOfOrder is returned when an event is older than the last one recorded.
var ErrOutOfOrder = errors.New("event timestamp is older than the last recorded event")

// EndReason records why a Session was closed.
type EndReason string

const (
	ReasonUserStop           EndReason = "user_stop"
	ReasonInactivity         EndReason = "inactivity"
	ReasonDurationElapsed    EndReason = "duration_elapsed"
	ReasonPersistenceFailure EndReason = "persistence_failure"
	// ReasonInterrupted marks a session recovered after the process died
	ReasonInterrupted EndReason = "interrupted"
)

// Session is one bounded focus-tracking interval.
type Session struct {
	ID              string        `json:"id"`
	StartedAt       time.Time     `json:"startedAt"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
	PlannedDuration time.Duration `json:"plannedDuration"`
	Tags            []string      `json:"tags,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	Summary         string        `json:"summary,omitempty"`
	EndReason       EndReason     `json:"endReason,omitempty"`
	Events          []Event       `json:"events"`
}

// IsActive reports whether the session has not been ended.
func (s *Session) IsActive() bool {
	return s.EndedAt == nil
}

// Metrics derives metrics up to now, or up to EndedAt for a closed session.
func (s *Session) Metrics(now time.Time, opts MetricsOptions) Metrics {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if opts.ScoreHorizon <= 0 {
		opts.ScoreHorizon = s.PlannedDuration
	}
	return ComputeMetrics(s.StartedAt, end, s.Events, opts)
}

func (s *Session) clone() Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	c.Tags = append([]string(nil), s.Tags...)
	c.Events = make([]Event, len(s.Events))
	for i, ev := range s.Events {
		c.Events[i] = ev.clone()
	}
	return c
}

// StartOptions are the user supplied attributes of a new Session.
type StartOptions struct {
	PlannedDuration time.Duration
	Tags            []string
	Notes           string
}

// Listener is notified after each append, in append order, while the
// tracker lock is held. It must not call back into the Tracker.
type Listener func(ev Event)

// Tracker owns the single active Session and its append-only Event log.
type Tracker struct {
	mu        sync.Mutex
	clock     clock.PassiveClock
	logger    *zap.Logger
	metrics   MetricsOptions
	active    *Session
	lastBase  string
	collision int
	listeners []Listener
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source.
func WithClock(c clock.PassiveClock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithMetricsOptions sets the options used by Metrics.
func WithMetricsOptions(o MetricsOptions) Option {
	return func(t *Tracker) { t.metrics = o }
}

// NewTracker creates a tracker with no active session.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		clock:  clock.RealClock{},
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnEvent registers a listener for appended events.
func (t *Tracker) OnEvent(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// StartSession opens a new Session. It fails with AlreadyActive when one is
// already running.
func (t *Tracker) StartSession(opts StartOptions) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		return Session{}, fmt.Errorf("start session: %w", errs.ErrAlreadyActive)
	}

	now := t.clock.Now()
	base := now.UTC().Format(IDLayout)
	id := base
	if base == t.lastBase {
		// same second as the previous session: _2, _3, ...
		t.collision++
		id = fmt.Sprintf("%s_%d", base, t.collision+1)
	} else {
		t.lastBase, t.collision = base, 0
	}

	t.active = &Session{
		ID:              id,
		StartedAt:       now,
		PlannedDuration: opts.PlannedDuration,
		Tags:            dedupeTags(opts.Tags),
		Notes:           opts.Notes,
		Events:          make([]Event, 0, 64),
	}
	t.logger.Info("session started", zap.String("session", id), zap.Duration("planned", opts.PlannedDuration))
	return t.active.clone(), nil
}

// EndSession closes the active Session and returns its final state. It fails
// with NotActive when nothing is running.
func (t *Tracker) EndSession(reason EndReason) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return Session{}, fmt.Errorf("end session: %w", errs.ErrNotActive)
	}
	if reason == "" {
		reason = ReasonUserStop
	}
	now := t.clock.Now()
	if n := len(t.active.Events); n > 0 && now.Before(t.active.Events[n-1].Timestamp) {
		now = t.active.Events[n-1].Timestamp
	}
	t.active.EndedAt = &now
	t.active.EndReason = reason

	ended := t.active.clone()
	t.active = nil
	t.logger.Info("session ended",
		zap.String("session", ended.ID),
		zap.String("reason", string(reason)),
		zap.Int("events", len(ended.Events)),
	)
	return ended, nil
}

// RecordEvent appends ev to the active Session. It fails with NoActiveSession
// when nothing is running or when ev targets another session, and with
// ErrOutOfOrder when ev is older than the last event.
func (t *Tracker) RecordEvent(ev Event) (Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return Event{}, fmt.Errorf("record %s: %w", ev.Kind, errs.ErrNoActiveSession)
	}
	if ev.SessionID != "" && ev.SessionID != t.active.ID {
		return Event{}, fmt.Errorf("record %s for session %s: %w", ev.Kind, ev.SessionID, errs.ErrNoActiveSession)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.clock.Now()
	}
	if n := len(t.active.Events); n > 0 && ev.Timestamp.Before(t.active.Events[n-1].Timestamp) {
		return Event{}, ErrOutOfOrder
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.SessionID = t.active.ID
	ev.Seq = len(t.active.Events) + 1
	ev = ev.clone()
	t.active.Events = append(t.active.Events, ev)

	out := ev.clone()
	for _, l := range t.listeners {
		l(ev.clone())
	}
	return out, nil
}

// Metrics derives metrics of the active Session up to now.
func (t *Tracker) Metrics() (Metrics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return Metrics{}, fmt.Errorf("metrics: %w", errs.ErrNoActiveSession)
	}
	return t.active.Metrics(t.clock.Now(), t.metrics), nil
}

// Active returns a copy of the active Session.
func (t *Tracker) Active() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return Session{}, false
	}
	return t.active.clone(), true
}

// ActiveID returns the id of the active Session, or "".
func (t *Tracker) ActiveID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return ""
	}
	return t.active.ID
}

// SetSummary replaces the ContextSummary of the given session. Updates for
// a session that is no longer active are rejected.
func (t *Tracker) SetSummary(sessionID, summary string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil || t.active.ID != sessionID {
		return fmt.Errorf("set summary: %w", errs.ErrNoActiveSession)
	}
	t.active.Summary = summary
	return nil
}

// Summary returns the ContextSummary of the active Session.
func (t *Tracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return ""
	}
	return t.active.Summary
}

// AddTags attaches tags to the active Session.
func (t *Tracker) AddTags(tags ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return fmt.Errorf("add tags: %w", errs.ErrNoActiveSession)
	}
	t.active.Tags = dedupeTags(append(t.active.Tags, tags...))
	return nil
}

// SetNotes replaces the notes of the active Session.
func (t *Tracker) SetNotes(notes string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return fmt.Errorf("set notes: %w", errs.ErrNoActiveSession)
	}
	t.active.Notes = notes
	return nil
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
