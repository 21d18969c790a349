package focus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/checkin"
	"github.com/code-100-precent/FocusBuddy/internal/session"
	"github.com/code-100-precent/FocusBuddy/internal/store"
	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/code-100-precent/FocusBuddy/pkg/events"
	"github.com/code-100-precent/FocusBuddy/pkg/utils"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const (
	maxNotesRunes    = 2000
	maxResponseRunes = 1000
	saveTimeout      = 15 * time.Second
)

// ErrInvalidRequest marks user input the service refuses.
var ErrInvalidRequest = errors.New("invalid request")

// Voice speaks check-ins and turns the user's speech into responses.
type Voice interface {
	checkin.Notifier
	Start(ctx context.Context)
	Stop()
}

// Options are the service defaults.
type Options struct {
	Settings        checkin.Settings
	DefaultDuration time.Duration
	MinDuration     time.Duration
	// PersistFailureLimit consecutive journal failures end the session.
	PersistFailureLimit int
}

// Deps are the collaborators of the service. Store, Analyzer and
// NewCapturer are required.
type Deps struct {
	Store      store.Store
	Bus        *events.Bus
	Analyzer   checkin.Analyzer
	Summarizer checkin.Summarizer
	// NewCapturer builds the screen capturer of one session.
	NewCapturer func(sessionID string) (checkin.Capturer, error)
	// NewVoice builds the speech bridge of one session; nil disables speech.
	NewVoice func(respond func(text string)) Voice
	Clock    clock.WithTicker
	Logger   *zap.Logger
	Metrics  *checkin.Metrics
}

// StartRequest describes a new session.
type StartRequest struct {
	Duration time.Duration `json:"duration"`
	Tags     []string      `json:"tags,omitempty"`
	Notes    string        `json:"notes,omitempty"`
}

// Snapshot is the live view of the active session.
type Snapshot struct {
	Session  session.Session  `json:"session"`
	Metrics  session.Metrics  `json:"metrics"`
	Status   checkin.Status   `json:"status"`
	Settings checkin.Settings `json:"settings"`
}

type run struct {
	id      string
	loop    *checkin.Loop
	journal *journal
	voice   Voice
}

// Service runs at most one focus session at a time: it owns the tracker,
// starts a check-in loop per session, journals events and saves the final
// record when the session ends.
type Service struct {
	opts    Options
	deps    Deps
	tracker *session.Tracker
	logger  *zap.Logger

	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	settings checkin.Settings
	run      *run

	// read from the tracker listener, which must not take mu
	journal atomic.Pointer[journal]
}

// NewService validates the options and builds an idle service.
func NewService(opts Options, deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Analyzer == nil || deps.NewCapturer == nil {
		return nil, errors.New("focus: store, analyzer and capturer factory are required")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("focus: %w", err)
	}
	if opts.MinDuration > 0 && opts.DefaultDuration > 0 && opts.MinDuration > opts.DefaultDuration {
		return nil, errors.New("focus: minimum duration exceeds the default duration")
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.L()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus(deps.Logger, 0)
	}

	s := &Service{
		opts:     opts,
		deps:     deps,
		logger:   deps.Logger.Named("focus"),
		settings: opts.Settings,
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	s.tracker = session.NewTracker(
		session.WithClock(deps.Clock),
		session.WithLogger(deps.Logger.Named("session")),
		session.WithMetricsOptions(session.MetricsOptions{CheckInInterval: opts.Settings.CheckInInterval}),
	)
	s.tracker.OnEvent(s.onEvent)
	return s, nil
}

// Bus returns the event bus the service publishes on.
func (s *Service) Bus() *events.Bus {
	return s.deps.Bus
}

func (s *Service) onEvent(ev session.Event) {
	if j := s.journal.Load(); j != nil {
		j.Enqueue(ev)
	}
	s.deps.Bus.PublishEvent(events.TopicSessionEvent, ev.SessionID, ev, "tracker")
}

// Start opens a session and its check-in loop. It fails with AlreadyActive
// when a session is running.
func (s *Service) Start(ctx context.Context, req StartRequest) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		return session.Session{}, fmt.Errorf("start: %w", errs.ErrAlreadyActive)
	}
	duration := req.Duration
	if duration == 0 {
		duration = s.opts.DefaultDuration
	}
	if duration < 0 || (s.opts.MinDuration > 0 && duration < s.opts.MinDuration) {
		return session.Session{}, fmt.Errorf("%w: duration must be at least %s", ErrInvalidRequest, s.opts.MinDuration)
	}
	notes, err := utils.SanitizeText(req.Notes, maxNotesRunes)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	sess, err := s.tracker.StartSession(session.StartOptions{
		PlannedDuration: duration,
		Tags:            utils.SanitizeTags(req.Tags),
		Notes:           notes,
	})
	if err != nil {
		return session.Session{}, err
	}

	capturer, err := s.deps.NewCapturer(sess.ID)
	if err != nil {
		s.abort()
		return session.Session{}, errs.CaptureFailure(fmt.Errorf("prepare capture: %w", err))
	}

	if err := s.deps.Store.Save(ctx, s.record(sess)); err != nil {
		s.logger.Warn("initial checkpoint failed", zap.String("session", sess.ID), zap.Error(err))
	}

	r := &run{id: sess.ID}
	r.journal = newJournal(sess.ID, s.deps.Store, s.opts.PersistFailureLimit,
		s.activeRecord,
		func(err error) {
			s.logger.Error("persistence failed, ending session", zap.String("session", sess.ID), zap.Error(err))
			s.endAsync(sess.ID, session.ReasonPersistenceFailure)
		},
		s.logger.With(zap.String("session", sess.ID)),
	)
	s.journal.Store(r.journal)

	notifiers := Notifiers{BusNotifier{Bus: s.deps.Bus}}
	if s.deps.NewVoice != nil {
		// r.loop is set before the voice starts; going through s.Respond
		// would wait on mu while end holds it and stops the voice
		r.voice = s.deps.NewVoice(func(text string) {
			if _, err := recordResponse(r.loop, text); err != nil {
				s.logger.Debug("spoken response dropped", zap.Error(err))
			}
		})
		notifiers = append(notifiers, r.voice)
	}

	r.loop, err = checkin.New(checkin.Config{
		SessionID:       sess.ID,
		StartedAt:       sess.StartedAt,
		PlannedDuration: duration,
		Settings:        s.settings,
		Recorder:        s.tracker,
		Capturer:        capturer,
		Analyzer:        s.deps.Analyzer,
		Summarizer:      s.deps.Summarizer,
		Notifier:        notifiers,
		Clock:           s.deps.Clock,
		Logger:          s.deps.Logger.Named("checkin"),
		Metrics:         s.deps.Metrics,
		Hooks: checkin.Hooks{
			OnStatus: func(id string, st checkin.Status) {
				s.deps.Bus.PublishEvent(events.TopicSessionStatus, id, map[string]string{"status": string(st)}, "checkin")
			},
			OnEnd: s.endAsync,
		},
	})
	if err == nil {
		err = r.loop.Start(s.base)
	}
	if err != nil {
		s.journal.Store(nil)
		r.journal.Close()
		s.abort()
		return session.Session{}, err
	}
	if r.voice != nil {
		r.voice.Start(s.base)
	}
	s.run = r

	s.deps.Bus.PublishEvent(events.TopicSessionStarted, sess.ID, sess, "focus")
	return sess, nil
}

// abort ends a session whose start failed half way.
func (s *Service) abort() {
	if _, err := s.tracker.EndSession(session.ReasonUserStop); err != nil {
		s.logger.Warn("abort session", zap.Error(err))
	}
}

// Stop ends the active session on user request and returns the saved record.
func (s *Service) Stop(ctx context.Context) (store.Record, error) {
	return s.end(ctx, "", session.ReasonUserStop)
}

func (s *Service) endAsync(sessionID string, reason session.EndReason) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if _, err := s.end(ctx, sessionID, reason); err != nil && !errors.Is(err, errs.ErrNotActive) {
			s.logger.Error("end session", zap.String("session", sessionID), zap.Error(err))
		}
	}()
}

// end stops the loop, closes the session and saves it. A non-empty
// sessionID must match the active one.
func (s *Service) end(ctx context.Context, sessionID string, reason session.EndReason) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.run
	if r == nil || (sessionID != "" && r.id != sessionID) {
		return store.Record{}, fmt.Errorf("stop: %w", errs.ErrNotActive)
	}
	if r.voice != nil {
		r.voice.Stop()
	}
	r.loop.Stop()

	sess, err := s.tracker.EndSession(reason)
	s.run = nil
	s.journal.Store(nil)
	r.journal.Close()
	if err != nil {
		return store.Record{}, err
	}

	rec := s.record(sess)
	if err := s.deps.Store.Save(ctx, rec); err != nil {
		err = errs.PersistenceFailure(errs.SeverityFatal, err)
		s.logger.Error("final save failed", zap.String("session", sess.ID), zap.Error(err))
		s.deps.Bus.PublishEvent(events.TopicSessionEnded, sess.ID, rec, "focus")
		return rec, err
	}
	s.deps.Bus.PublishEvent(events.TopicSessionEnded, sess.ID, rec, "focus")
	s.logger.Info("session saved",
		zap.String("session", sess.ID),
		zap.String("reason", string(reason)),
		zap.Duration("elapsed", rec.Metrics.Elapsed),
		zap.Int("checkIns", rec.Metrics.CheckIns),
	)
	return rec, nil
}

func (s *Service) record(sess session.Session) store.Record {
	return store.NewRecord(sess, s.deps.Clock.Now(), s.metricsOptions())
}

func (s *Service) activeRecord() (store.Record, bool) {
	sess, ok := s.tracker.Active()
	if !ok {
		return store.Record{}, false
	}
	return s.record(sess), true
}

func (s *Service) metricsOptions() session.MetricsOptions {
	return session.MetricsOptions{CheckInInterval: s.opts.Settings.CheckInInterval}
}

// Snapshot returns the active session with live metrics.
func (s *Service) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", errs.ErrNoActiveSession)
	}
	sess, ok := s.tracker.Active()
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshot: %w", errs.ErrNoActiveSession)
	}
	return Snapshot{
		Session:  sess,
		Metrics:  sess.Metrics(s.deps.Clock.Now(), s.metricsOptions()),
		Status:   r.loop.Status(),
		Settings: r.loop.Settings(),
	}, nil
}

func (s *Service) active() (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return nil, errs.ErrNoActiveSession
	}
	return s.run, nil
}

// Respond records the user's reply to a check-in.
func (s *Service) Respond(text string) (session.Event, error) {
	r, err := s.active()
	if err != nil {
		return session.Event{}, fmt.Errorf("respond: %w", err)
	}
	return recordResponse(r.loop, text)
}

func recordResponse(loop *checkin.Loop, text string) (session.Event, error) {
	text, err := utils.SanitizeText(text, maxResponseRunes)
	if err != nil {
		return session.Event{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if text == "" {
		return session.Event{}, fmt.Errorf("%w: response text is required", ErrInvalidRequest)
	}
	return loop.RecordResponse(text)
}

// CaptureNow triggers an immediate capture and analysis.
func (s *Service) CaptureNow() error {
	r, err := s.active()
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return r.loop.CaptureNow()
}

// SetNotes replaces the notes of the active session.
func (s *Service) SetNotes(notes string) error {
	notes, err := utils.SanitizeText(notes, maxNotesRunes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.tracker.SetNotes(notes)
}

// AddTags tags the active session.
func (s *Service) AddTags(tags []string) error {
	return s.tracker.AddTags(utils.SanitizeTags(tags)...)
}

// Settings returns the settings new sessions start with, or the pending
// settings of the running loop.
func (s *Service) Settings() checkin.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return s.run.loop.Settings()
	}
	return s.settings
}

// UpdateSettings validates st and applies it to future sessions and, at its
// next tick, to the running loop.
func (s *Service) UpdateSettings(st checkin.Settings) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
	if s.run != nil {
		return s.run.loop.UpdateSettings(st)
	}
	return nil
}

// Sessions lists stored sessions, newest first. The active one is served
// live, since its checkpoint lags behind.
func (s *Service) Sessions(ctx context.Context, limit int) ([]store.Record, error) {
	recs, err := s.deps.Store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	if sess, ok := s.tracker.Active(); ok {
		for i := range recs {
			if recs[i].ID == sess.ID {
				live := s.record(sess)
				live.Events = nil
				recs[i] = live
			}
		}
	}
	return recs, nil
}

// RecoverInterrupted ends stored sessions that were left open by a previous
// process and saves them. Call it before the first Start. The file store
// already closes such sessions on read, so it reports none.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	recs, err := s.deps.Store.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	active := s.tracker.ActiveID()
	n := 0
	for _, hdr := range recs {
		if hdr.EndedAt != nil || hdr.ID == active {
			continue
		}
		rec, err := s.deps.Store.Get(ctx, hdr.ID)
		if err != nil {
			return n, err
		}
		rec = store.CloseInterrupted(rec, nil)
		if err := s.deps.Store.Save(ctx, rec); err != nil {
			return n, err
		}
		s.logger.Info("recovered interrupted session",
			zap.String("session", rec.ID), zap.Int("events", len(rec.Events)))
		n++
	}
	return n, nil
}

// Session returns one session; the active one is served live.
func (s *Service) Session(ctx context.Context, id string) (store.Record, error) {
	if sess, ok := s.tracker.Active(); ok && sess.ID == id {
		return s.record(sess), nil
	}
	return s.deps.Store.Get(ctx, id)
}

// DeleteSession removes a stored session. The active one cannot be deleted.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if s.tracker.ActiveID() == id {
		return fmt.Errorf("delete %s: %w", id, errs.ErrAlreadyActive)
	}
	return s.deps.Store.Delete(ctx, id)
}

// Close ends a running session and releases the service.
func (s *Service) Close(ctx context.Context) error {
	_, err := s.end(ctx, "", session.ReasonUserStop)
	if errors.Is(err, errs.ErrNotActive) {
		err = nil
	}
	s.cancel()
	return err
}
