package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/session"
	"github.com/code-100-precent/FocusBuddy/internal/summary"
	"github.com/code-100-precent/FocusBuddy/pkg/capture"
	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/code-100-precent/FocusBuddy/pkg/vision"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const summaryBacklog = 64

// Capturer grabs one screen frame.
type Capturer interface {
	Capture(ctx context.Context) (capture.Frame, error)
}

// Analyzer describes a frame.
type Analyzer interface {
	Analyze(ctx context.Context, frame []byte, instruction string) (vision.Result, error)
}

// Summarizer folds new text into the ContextSummary.
type Summarizer interface {
	Update(ctx context.Context, current, incoming string) (summary.Result, error)
}

// Notifier delivers a check-in prompt to the user.
type Notifier interface {
	Notify(ctx context.Context, sessionID, prompt string) error
}

// Recorder is the event log the loop appends to.
type Recorder interface {
	RecordEvent(ev session.Event) (session.Event, error)
	SetSummary(sessionID, summary string) error
}

// Status is the visible health of the loop.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusStopped  Status = "stopped"
)

// Hooks let the owner react to loop decisions.
type Hooks struct {
	// OnStatus runs on the loop goroutine and must not call Stop.
	OnStatus func(sessionID string, status Status)
	// OnEnd runs on its own goroutine, at most once per loop.
	OnEnd func(sessionID string, reason session.EndReason)
}

// Config wires a Loop to its collaborators.
type Config struct {
	SessionID       string
	StartedAt       time.Time
	PlannedDuration time.Duration
	Settings        Settings

	Recorder   Recorder
	Capturer   Capturer
	Analyzer   Analyzer
	Summarizer Summarizer
	Notifier   Notifier

	Clock   clock.WithTicker
	Logger  *zap.Logger
	Metrics *Metrics
	Hooks   Hooks
}

type result interface {
	stage() string
}

type captureDone struct {
	frame capture.Frame
	err   error
}

type analysisDone struct {
	res vision.Result
	err error
}

type summaryDone struct {
	text string
}

func (captureDone) stage() string  { return "capture" }
func (analysisDone) stage() string { return "analysis" }
func (summaryDone) stage() string  { return "summary" }

// Loop drives one Session: periodic capture and analysis, summary upkeep and
// check-in prompts. All loop state is owned by a single goroutine; async
// tasks report back through the results channel.
type Loop struct {
	sessionID  string
	startedAt  time.Time
	planned    time.Duration
	recorder   Recorder
	capturer   Capturer
	analyzer   Analyzer
	summarizer Summarizer
	notifier   Notifier
	clock      clock.WithTicker
	logger     *zap.Logger
	errh       *errs.ErrHandler
	metrics    *Metrics
	hooks      Hooks

	results   chan result
	manual    chan struct{}
	summaries chan string
	done      chan struct{}

	mu           sync.Mutex
	settings     Settings
	pending      *Settings
	status       Status
	started      bool
	stopped      bool
	cancel       context.CancelFunc
	lastActivity time.Time

	// owned by the run goroutine
	captureBusy  bool
	analysisBusy bool
	failures     int
	checkIns     int
	changed      bool
	lastText     string
	latest       *session.Event
	focusSince   time.Time
	summary      string
	ending       bool
}

// New validates cfg and builds a stopped loop.
func New(cfg Config) (*Loop, error) {
	if cfg.SessionID == "" {
		return nil, errors.New("checkin: session id is required")
	}
	if cfg.Recorder == nil || cfg.Capturer == nil || cfg.Analyzer == nil {
		return nil, errors.New("checkin: recorder, capturer and analyzer are required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("checkin: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.L()
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = cfg.Clock.Now()
	}
	logger := cfg.Logger.With(zap.String("session", cfg.SessionID))

	return &Loop{
		sessionID:    cfg.SessionID,
		startedAt:    cfg.StartedAt,
		planned:      cfg.PlannedDuration,
		recorder:     cfg.Recorder,
		capturer:     cfg.Capturer,
		analyzer:     cfg.Analyzer,
		summarizer:   cfg.Summarizer,
		notifier:     cfg.Notifier,
		clock:        cfg.Clock,
		logger:       logger,
		errh:         errs.NewErrHandler(logger),
		metrics:      cfg.Metrics,
		hooks:        cfg.Hooks,
		results:      make(chan result, 8),
		manual:       make(chan struct{}, 1),
		summaries:    make(chan string, summaryBacklog),
		done:         make(chan struct{}),
		settings:     cfg.Settings,
		status:       StatusOK,
		lastActivity: cfg.StartedAt,
	}, nil
}

// Start launches the loop goroutine. Tickers are armed before Start returns.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return errors.New("checkin: loop already started")
	}
	l.started = true
	ctx, l.cancel = context.WithCancel(ctx)
	s := l.settings
	tick := l.clock.NewTicker(s.TickInterval)
	check := l.clock.NewTicker(s.CheckInInterval)
	l.mu.Unlock()

	l.metrics.setStatus(StatusOK)
	l.logger.Info("check-in loop started",
		zap.Duration("tick", s.TickInterval),
		zap.Duration("checkIn", s.CheckInInterval),
		zap.String("style", string(s.Style)),
	)

	if l.summarizer != nil {
		go l.summarize(ctx)
	}
	go l.run(ctx, tick, check)
	return nil
}

// Stop halts the loop and waits for its goroutine to exit. Results that
// arrive afterwards are discarded. Safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		started := l.started
		l.mu.Unlock()
		if started {
			<-l.done
		}
		return
	}
	l.stopped = true
	started, cancel := l.started, l.cancel
	l.status = StatusStopped
	l.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-l.done
	l.metrics.setStatus(StatusStopped)
	l.logger.Info("check-in loop stopped")
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Status returns the current loop status.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Settings returns the most recently requested settings.
func (l *Loop) Settings() Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		return *l.pending
	}
	return l.settings
}

// UpdateSettings queues s to take effect at the next tick boundary.
func (l *Loop) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = &s
	return nil
}

// CaptureNow requests a capture outside the tick cadence. It is a no-op when
// a manual capture is already queued.
func (l *Loop) CaptureNow() error {
	l.mu.Lock()
	active := l.started && !l.stopped
	l.mu.Unlock()
	if !active {
		return fmt.Errorf("capture now: %w", errs.ErrNoActiveSession)
	}
	select {
	case l.manual <- struct{}{}:
	default:
	}
	return nil
}

// RecordResponse appends a UserResponse. It may be called from any
// goroutine and never waits for the loop.
func (l *Loop) RecordResponse(text string) (session.Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return session.Event{}, errors.New("empty response")
	}
	return l.append(session.NewUserResponse(text, time.Time{}), true)
}

func (l *Loop) run(ctx context.Context, tick, check clock.Ticker) {
	defer close(l.done)
	defer func() {
		tick.Stop()
		check.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C():
			if s, ok := l.applyPending(); ok {
				tick.Stop()
				check.Stop()
				tick = l.clock.NewTicker(s.TickInterval)
				check = l.clock.NewTicker(s.CheckInInterval)
				l.logger.Info("loop settings applied",
					zap.Duration("tick", s.TickInterval),
					zap.Duration("checkIn", s.CheckInInterval),
					zap.String("style", string(s.Style)),
				)
			}
			l.onTick(ctx)
		case <-check.C():
			l.onCheckIn(ctx)
		case <-l.manual:
			if l.captureBusy {
				l.metrics.drop("capture_busy")
				continue
			}
			l.startCapture(ctx)
		case r := <-l.results:
			l.handle(ctx, r)
		}
	}
}

func (l *Loop) applyPending() (Settings, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return Settings{}, false
	}
	old := l.settings
	l.settings = *l.pending
	l.pending = nil
	timing := old.TickInterval != l.settings.TickInterval || old.CheckInInterval != l.settings.CheckInInterval
	return l.settings, timing
}

func (l *Loop) current() Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settings
}

func (l *Loop) onTick(ctx context.Context) {
	l.metrics.tick()
	now := l.clock.Now()
	s := l.current()

	if s.AutoEnd && l.planned > 0 && now.Sub(l.startedAt) >= l.planned {
		l.requestEnd(session.ReasonDurationElapsed)
		return
	}
	if s.InactivityTimeout > 0 {
		l.mu.Lock()
		idle := now.Sub(l.lastActivity)
		l.mu.Unlock()
		if idle >= s.InactivityTimeout {
			l.logger.Info("no activity", zap.Duration("idle", idle))
			l.requestEnd(session.ReasonInactivity)
			return
		}
	}

	if l.captureBusy {
		l.logger.Debug("capture still in flight, skipping tick")
		l.metrics.drop("capture_busy")
		return
	}
	l.startCapture(ctx)
}

func (l *Loop) requestEnd(reason session.EndReason) {
	if l.ending {
		return
	}
	l.ending = true
	if l.hooks.OnEnd != nil {
		go l.hooks.OnEnd(l.sessionID, reason)
	}
}

func (l *Loop) startCapture(ctx context.Context) {
	l.captureBusy = true
	s := l.current()
	go func() {
		frame, err := withRetry(ctx, l, "capture", s, l.capturer.Capture)
		l.post(ctx, captureDone{frame: frame, err: err})
	}()
}

func (l *Loop) startAnalysis(ctx context.Context, frame []byte) {
	l.analysisBusy = true
	s := l.current()
	go func() {
		res, err := withRetry(ctx, l, "analysis", s, func(ctx context.Context) (vision.Result, error) {
			return l.analyzer.Analyze(ctx, frame, s.Instruction)
		})
		l.post(ctx, analysisDone{res: res, err: err})
	}()
}

// withRetry runs fn and retries a transient failure immediately, at most
// s.retries() times.
func withRetry[T any](ctx context.Context, l *Loop, stage string, s Settings, fn func(context.Context) (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.StageTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, s.StageTimeout)
		}
		start := time.Now()
		out, err := fn(callCtx)
		cancel()
		l.metrics.observe(stage, time.Since(start).Seconds())

		if err == nil || attempt >= s.retries() || ctx.Err() != nil || !l.errh.IsTransient(err) {
			return out, err
		}
		l.metrics.retry(stage)
		l.logger.Debug("retrying transient failure", zap.String("stage", stage), zap.Error(err))
	}
}

func (l *Loop) post(ctx context.Context, r result) {
	select {
	case l.results <- r:
	case <-ctx.Done():
		l.metrics.drop("stopped")
		l.logger.Debug("discarding late result", zap.String("stage", r.stage()))
	}
}

func (l *Loop) handle(ctx context.Context, r result) {
	switch r := r.(type) {
	case captureDone:
		l.onCapture(ctx, r)
	case analysisDone:
		l.onAnalysis(r)
	case summaryDone:
		l.onSummary(r)
	}
}

func (l *Loop) onCapture(ctx context.Context, r captureDone) {
	l.captureBusy = false
	if r.err != nil {
		l.metrics.capture("failure")
		err := r.err
		if errs.KindOf(err) == errs.KindUnknown {
			err = errs.CaptureFailure(err)
		}
		l.fail(err, errs.KindCaptureFailure, "capture")
		return
	}
	l.metrics.capture("success")

	if _, err := l.append(session.NewCapture(r.frame.Ref, time.Time{}), false); err != nil {
		l.appendFailed(err)
		return
	}
	if l.analysisBusy {
		l.logger.Debug("analysis still in flight, frame not analysed", zap.String("frame", r.frame.Ref))
		l.metrics.drop("analysis_busy")
		return
	}
	l.startAnalysis(ctx, r.frame.Data)
}

func (l *Loop) onAnalysis(r analysisDone) {
	l.analysisBusy = false
	if r.err != nil {
		l.metrics.analysis("failure")
		l.fail(r.err, errs.KindAnalysisFailure, "vision")
		return
	}

	ev := session.NewAnalysis(r.res.Text, time.Time{}).WithVerdict(r.res.Productive, r.res.Apps, r.res.Activities)
	recorded, err := l.append(ev, true)
	if err != nil {
		l.appendFailed(err)
		return
	}
	l.metrics.analysis("success")
	l.succeeded()

	if recorded.Text != l.lastText {
		l.lastText = recorded.Text
		l.changed = true
		l.touch(recorded.Timestamp)
	}
	switch {
	case !recorded.IsProductive():
		l.focusSince = time.Time{}
	case l.focusSince.IsZero():
		l.focusSince = recorded.Timestamp
	}
	l.latest = &recorded
}

func (l *Loop) onSummary(r summaryDone) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		l.metrics.drop("stopped")
		return
	}
	if err := l.recorder.SetSummary(l.sessionID, r.text); err != nil {
		l.logger.Debug("summary not stored", zap.Error(err))
		return
	}
	l.summary = r.text
}

func (l *Loop) onCheckIn(ctx context.Context) {
	s := l.current()
	now := l.clock.Now()

	in := PromptInput{
		Style:   s.Style,
		Count:   l.checkIns,
		Summary: l.summary,
	}
	var productive *bool
	if l.latest != nil {
		productive = l.latest.Productive
		in.Task = first(l.latest.Activities, l.latest.Apps)
		in.Distraction = first(l.latest.Apps, l.latest.Activities)
	}
	if !l.focusSince.IsZero() {
		in.FocusMinutes = int(now.Sub(l.focusSince).Minutes())
	}
	in.Family = ChooseFamily(l.checkIns, l.changed, productive)
	prompt := ComposePrompt(in)

	ev, err := l.append(session.NewCheckIn(prompt, time.Time{}), false)
	if err != nil {
		l.appendFailed(err)
		return
	}
	l.checkIns++
	l.changed = false
	l.metrics.checkIn()
	l.logger.Info("check-in", zap.String("family", string(in.Family)), zap.Int("count", l.checkIns))

	if l.notifier != nil {
		go func() {
			if err := l.notifier.Notify(ctx, l.sessionID, ev.Text); err != nil && ctx.Err() == nil {
				l.logger.Warn("check-in delivery failed", zap.Error(err))
			}
		}()
	}
}

// summarize applies summary updates one at a time, in append order.
func (l *Loop) summarize(ctx context.Context) {
	current := ""
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-l.summaries:
			res, err := l.summarizer.Update(ctx, current, text)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Warn("summary update failed", zap.Error(err))
				continue
			}
			current = res.Text
			l.post(ctx, summaryDone{text: current})
		}
	}
}

// append records ev with the current time unless the loop has been stopped.
// Text that feeds the ContextSummary is queued in the same critical section
// so summary updates follow append order.
func (l *Loop) append(ev session.Event, summarize bool) (session.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		l.metrics.drop("stopped")
		return session.Event{}, fmt.Errorf("loop stopped: %w", errs.ErrNoActiveSession)
	}
	ev.SessionID = l.sessionID
	ev.Timestamp = l.clock.Now()
	recorded, err := l.recorder.RecordEvent(ev)
	if err != nil {
		return session.Event{}, err
	}
	if recorded.Kind == session.KindUserResponse {
		l.lastActivity = recorded.Timestamp
	}
	if summarize && l.summarizer != nil && recorded.Text != "" {
		select {
		case l.summaries <- recorded.Text:
		default:
			l.metrics.drop("summary_backlog")
			l.logger.Warn("summary backlog full, dropping update")
		}
	}
	return recorded, nil
}

func (l *Loop) appendFailed(err error) {
	if errors.Is(err, errs.ErrNoActiveSession) {
		l.logger.Debug("event discarded", zap.Error(err))
		return
	}
	l.logger.Warn("append event failed", zap.Error(err))
}

func (l *Loop) touch(ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts.After(l.lastActivity) {
		l.lastActivity = ts
	}
}

// fail records the degraded Analysis marker and counts the failed tick.
func (l *Loop) fail(err error, kind errs.Kind, service string) {
	err = l.errh.HandleError(err, kind, service)
	if _, aerr := l.append(session.NewFailedAnalysis(err, time.Time{}), false); aerr != nil {
		l.appendFailed(aerr)
		return
	}
	l.failures++
	if l.failures >= l.current().FailureThreshold {
		l.setStatus(StatusDegraded)
	}
}

func (l *Loop) succeeded() {
	l.failures = 0
	l.setStatus(StatusOK)
}

func (l *Loop) setStatus(s Status) {
	l.mu.Lock()
	if l.stopped || l.status == s {
		l.mu.Unlock()
		return
	}
	l.status = s
	l.mu.Unlock()

	l.metrics.setStatus(s)
	if s == StatusDegraded {
		l.logger.Warn("loop degraded", zap.Int("consecutiveFailures", l.failures))
	} else {
		l.logger.Info("loop recovered")
	}
	if l.hooks.OnStatus != nil {
		l.hooks.OnStatus(l.sessionID, s)
	}
}

func first(lists ...[]string) string {
	for _, list := range lists {
		if len(list) > 0 {
			return list[0]
		}
	}
	return ""
}
