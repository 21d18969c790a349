package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/focus"
	"github.com/code-100-precent/FocusBuddy/internal/store"
	"github.com/code-100-precent/FocusBuddy/pkg/middleware"
	"github.com/code-100-precent/FocusBuddy/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options configure routing and the HTTP middlewares.
type Options struct {
	APIPrefix     string
	MonitorPrefix string
	// RequestTimeout bounds every API request except the event stream.
	RequestTimeout time.Duration
	// RateLimit in limiter format such as "120-M"; empty disables it.
	RateLimit   string
	CORSOrigins []string
	// Gatherer serves MonitorPrefix; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

type Handlers struct {
	svc      *focus.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
	started  time.Time
}

func NewHandlers(svc *focus.Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.L()
	}
	return &Handlers{
		svc:     svc,
		logger:  logger.Named("http"),
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the UI is served from another local origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the API and the metrics endpoint on engine.
func (h *Handlers) Register(engine *gin.Engine, opts Options) error {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	engine.Use(middleware.LoggerMiddleware(h.logger), middleware.CorsMiddleware(opts.CORSOrigins))

	if opts.MonitorPrefix != "" {
		gatherer := opts.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		engine.GET(opts.MonitorPrefix, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r := engine.Group(opts.APIPrefix)
	if opts.RateLimit != "" {
		limit, err := middleware.RateLimitMiddleware(opts.RateLimit, h.logger)
		if err != nil {
			return err
		}
		r.Use(limit)
	}
	if opts.RequestTimeout > 0 {
		r.Use(middleware.TimeoutMiddleware(opts.RequestTimeout, opts.APIPrefix+"/stream"))
	}

	h.registerSessionRoutes(r)
	h.registerHistoryRoutes(r)
	h.registerSettingsRoutes(r)
	h.registerSystemRoutes(r)
	r.GET("/stream", h.handleStream)
	return nil
}

// registerSessionRoutes Active session
func (h *Handlers) registerSessionRoutes(r *gin.RouterGroup) {
	s := r.Group("session")
	{
		s.GET("", h.handleSnapshot)
		s.POST("/start", h.handleStart)
		s.POST("/stop", h.handleStop)
		s.POST("/respond", h.handleRespond)
		s.POST("/capture", h.handleCapture)
		s.PUT("/notes", h.handleNotes)
		s.POST("/tags", h.handleTags)
	}
}

// registerHistoryRoutes Stored sessions
func (h *Handlers) registerHistoryRoutes(r *gin.RouterGroup) {
	s := r.Group("sessions")
	{
		s.GET("", h.handleListSessions)
		s.GET("/:id", h.handleGetSession)
		s.DELETE("/:id", h.handleDeleteSession)
	}
}

func (h *Handlers) registerSettingsRoutes(r *gin.RouterGroup) {
	r.GET("/settings", h.handleGetSettings)
	r.PUT("/settings", h.handleUpdateSettings)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
}

// fail writes err, mapping request and lookup errors before the kinds.
func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, focus.ErrInvalidRequest):
		response.Fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, store.ErrInvalidID):
		response.Fail(c, http.StatusBadRequest, "INVALID_ID", err.Error())
	case errors.Is(err, store.ErrNotFound):
		response.Fail(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		status := response.StatusOf(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		}
		response.Error(c, err)
	}
}
