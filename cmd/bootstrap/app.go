package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/checkin"
	"github.com/code-100-precent/FocusBuddy/internal/focus"
	handlers "github.com/code-100-precent/FocusBuddy/internal/handler"
	"github.com/code-100-precent/FocusBuddy/internal/store"
	"github.com/code-100-precent/FocusBuddy/internal/summary"
	"github.com/code-100-precent/FocusBuddy/pkg/cache"
	"github.com/code-100-precent/FocusBuddy/pkg/capture"
	"github.com/code-100-precent/FocusBuddy/pkg/config"
	"github.com/code-100-precent/FocusBuddy/pkg/events"
	"github.com/code-100-precent/FocusBuddy/pkg/llm"
	"github.com/code-100-precent/FocusBuddy/pkg/vision"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// App is the wired application: one focus service with its collaborators.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     store.Store
	Cache     cache.Cache
	Bus       *events.Bus
	Registry  *prometheus.Registry
	Service   *focus.Service
	Retention *focus.Retention
	Handlers  *handlers.Handlers
}

// NewApp builds every collaborator from cfg. Nothing runs until Serve or
// Service.Start is called.
func NewApp(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*App, error) {
	if lg == nil {
		lg = zap.L()
	}
	st, err := store.Open(store.Config{
		Type:     cfg.Store.Type,
		Dir:      cfg.Store.Dir,
		InMemory: cfg.Store.InMemory,
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
	}, lg.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app := &App{Config: cfg, Logger: lg, Store: st, Registry: prometheus.NewRegistry()}
	if err := app.wire(ctx); err != nil {
		_ = st.Close()
		if app.Cache != nil {
			_ = app.Cache.Close()
		}
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, lg := a.Config, a.Logger

	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		// vision results are only memoized, run without
		lg.Warn("cache unavailable, vision results will not be reused", zap.Error(err))
	} else {
		a.Cache = c
	}

	provider, err := llm.NewProvider(ctx, cfg.Vision)
	if err != nil {
		return fmt.Errorf("vision provider: %w", err)
	}
	analyzer := vision.NewAnalyzer(provider, a.Cache, vision.Options{
		MaxTokens: cfg.Vision.MaxTokens,
		Detail:    cfg.Vision.ImageDetail,
		CacheTTL:  cfg.Loop.VisionCacheTTL,
	}, lg.Named("vision"))

	policy, err := a.summaryPolicy(ctx)
	if err != nil {
		return err
	}

	settings, err := loopSettings(cfg.Loop)
	if err != nil {
		return err
	}

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Bus = events.NewBus(lg.Named("events"), events.DefaultBuffer)

	deps := focus.Deps{
		Store:       a.Store,
		Bus:         a.Bus,
		Analyzer:    analyzer,
		Summarizer:  policy,
		NewCapturer: a.capturerFactory(),
		Logger:      lg,
		Metrics:     checkin.NewMetrics(a.Registry),
	}
	if cfg.Realtime.Enabled {
		deps.NewVoice = a.voiceFactory()
	}
	a.Service, err = focus.NewService(focus.Options{
		Settings:            settings,
		DefaultDuration:     cfg.Loop.DefaultDuration,
		MinDuration:         cfg.Loop.MinDuration,
		PersistFailureLimit: cfg.Loop.PersistFailureLimit,
	}, deps)
	if err != nil {
		a.Bus.Close()
		return err
	}

	if cfg.Store.RetentionDays > 0 {
		maxAge := time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour
		a.Retention, err = focus.NewRetention(a.Store, maxAge, cfg.Store.RetentionSchedule, nil, lg)
		if err != nil {
			a.Bus.Close()
			return err
		}
	}

	if n, err := a.Service.RecoverInterrupted(ctx); err != nil {
		lg.Warn("recovering interrupted sessions failed", zap.Error(err))
	} else if n > 0 {
		lg.Info("interrupted sessions closed", zap.Int("count", n))
	}

	a.Handlers = handlers.NewHandlers(a.Service, lg)
	return nil
}

func (a *App) summaryPolicy(ctx context.Context) (*summary.Policy, error) {
	cfg := a.Config.Summary
	unit, err := summary.ParseUnit(cfg.BudgetUnit)
	if err != nil {
		return nil, err
	}
	var compressor summary.Compressor
	if cfg.Compress {
		provider, err := llm.NewProvider(ctx, cfg.LLM)
		if err != nil {
			a.Logger.Warn("summary compression disabled", zap.Error(err))
		} else {
			compressor = summary.NewLLMCompressor(provider)
		}
	}
	return summary.NewPolicy(summary.Budget{Limit: cfg.BudgetLimit, Unit: unit}, compressor, a.Logger.Named("summary")), nil
}

func loopSettings(cfg config.LoopConfig) (checkin.Settings, error) {
	style, err := checkin.ParseStyle(cfg.Style)
	if err != nil {
		return checkin.Settings{}, err
	}
	s := checkin.Settings{
		TickInterval:      cfg.TickInterval,
		CheckInInterval:   cfg.CheckInInterval,
		Style:             style,
		Instruction:       cfg.Instruction,
		MaxRetries:        cfg.MaxRetries,
		FailureThreshold:  cfg.FailureThreshold,
		StageTimeout:      cfg.StageTimeout,
		InactivityTimeout: cfg.InactivityTimeout,
		AutoEnd:           cfg.AutoEnd,
	}
	return s, s.Validate()
}

// capturerFactory keeps frames next to the session log for the file store
// and under <dir>/captures/<id> otherwise.
func (a *App) capturerFactory() func(sessionID string) (checkin.Capturer, error) {
	cfg := a.Config.Capture
	return func(sessionID string) (checkin.Capturer, error) {
		dir := filepath.Join(a.Config.Store.Dir, "captures", sessionID)
		if fs, ok := a.Store.(*store.FileStore); ok {
			dir = filepath.Join(fs.Dir(sessionID), "captures")
		}
		return capture.NewCommandCapturer(capture.ScreenConfig{
			Dir:         dir,
			Command:     cfg.Command,
			MaxWidth:    cfg.MaxWidth,
			Quality:     cfg.Quality,
			MaxCaptures: cfg.MaxCaptures,
			Timeout:     cfg.Timeout,
		}, a.Logger.Named("capture"))
	}
}

func (a *App) voiceFactory() func(respond func(string)) focus.Voice {
	cfg := a.Config.Realtime
	return func(respond func(string)) focus.Voice {
		audio := capture.NewAudioCapturer(capture.AudioConfig{
			DeviceName: cfg.AudioDevice,
			SampleRate: cfg.SampleRate,
		}, a.Logger.Named("audio"))
		return focus.NewSpeech(focus.RealtimeDialer(cfg.Client), audio, respond,
			focus.SpeechOptions{MaxReconnect: cfg.MaxReconnect}, a.Logger)
	}
}

// Engine builds the HTTP router.
func (a *App) Engine() (*gin.Engine, error) {
	if strings.EqualFold(a.Config.Server.Mode, "production") {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	opts := handlers.Options{
		APIPrefix:      a.Config.Server.APIPrefix,
		MonitorPrefix:  a.Config.Server.MonitorPrefix,
		RequestTimeout: requestTimeout,
		CORSOrigins:    a.Config.Middleware.CORSOrigins,
		Gatherer:       a.Registry,
	}
	if a.Config.Middleware.EnableRateLimit {
		opts.RateLimit = a.Config.Middleware.RateLimit
	}
	if err := a.Handlers.Register(engine, opts); err != nil {
		return nil, err
	}
	return engine, nil
}

// Serve runs the HTTP API and the retention schedule until ctx is done, then
// shuts down within the configured grace period.
func (a *App) Serve(ctx context.Context) error {
	engine, err := a.Engine()
	if err != nil {
		return err
	}
	if a.Retention != nil {
		a.Retention.Start()
	}

	srv := &http.Server{Addr: a.Config.Server.Addr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = a.Close(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	grace := a.Config.Server.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	a.Logger.Info("shutting down")
	err = srv.Shutdown(shutdownCtx)
	return errors.Join(err, a.Close(shutdownCtx))
}

// Close ends a running session, saving it, and releases every resource.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Retention != nil {
		a.Retention.Stop()
	}
	if a.Service != nil {
		errs = append(errs, a.Service.Close(ctx))
	}
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}
