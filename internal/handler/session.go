package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/checkin"
	"github.com/code-100-precent/FocusBuddy/internal/focus"
	"github.com/code-100-precent/FocusBuddy/pkg/response"
	"github.com/gin-gonic/gin"
)

const defaultListLimit = 20

type startRequest struct {
	DurationMinutes int      `json:"durationMinutes"`
	Tags            []string `json:"tags"`
	Notes           string   `json:"notes"`
}

type textRequest struct {
	Text string `json:"text"`
}

type tagsRequest struct {
	Tags []string `json:"tags" binding:"required"`
}

// settingsView exposes durations in seconds. Every field is optional on update.
type settingsView struct {
	TickSeconds       *int    `json:"tickSeconds,omitempty"`
	CheckInSeconds    *int    `json:"checkInSeconds,omitempty"`
	Style             *string `json:"style,omitempty"`
	Instruction       *string `json:"instruction,omitempty"`
	InactivitySeconds *int    `json:"inactivitySeconds,omitempty"`
	AutoEnd           *bool   `json:"autoEnd,omitempty"`
}

func viewOf(s checkin.Settings) settingsView {
	seconds := func(d time.Duration) *int { n := int(d / time.Second); return &n }
	style := string(s.Style)
	return settingsView{
		TickSeconds:       seconds(s.TickInterval),
		CheckInSeconds:    seconds(s.CheckInInterval),
		Style:             &style,
		Instruction:       &s.Instruction,
		InactivitySeconds: seconds(s.InactivityTimeout),
		AutoEnd:           &s.AutoEnd,
	}
}

func (v settingsView) apply(s checkin.Settings) checkin.Settings {
	if v.TickSeconds != nil {
		s.TickInterval = time.Duration(*v.TickSeconds) * time.Second
	}
	if v.CheckInSeconds != nil {
		s.CheckInInterval = time.Duration(*v.CheckInSeconds) * time.Second
	}
	if v.Style != nil {
		s.Style = checkin.Style(*v.Style)
	}
	if v.Instruction != nil {
		s.Instruction = *v.Instruction
	}
	if v.InactivitySeconds != nil {
		s.InactivityTimeout = time.Duration(*v.InactivitySeconds) * time.Second
	}
	if v.AutoEnd != nil {
		s.AutoEnd = *v.AutoEnd
	}
	return s
}

// bind decodes the JSON body, reporting a malformed body as a bad request.
func (h *Handlers) bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", focus.ErrInvalidRequest, err))
		return false
	}
	return true
}

func (h *Handlers) handleStart(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	if req.DurationMinutes < 0 {
		h.fail(c, fmt.Errorf("%w: duration must not be negative", focus.ErrInvalidRequest))
		return
	}
	sess, err := h.svc.Start(c.Request.Context(), focus.StartRequest{
		Duration: time.Duration(req.DurationMinutes) * time.Minute,
		Tags:     req.Tags,
		Notes:    req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "session started", sess)
}

func (h *Handlers) handleStop(c *gin.Context) {
	rec, err := h.svc.Stop(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "session ended", rec)
}

func (h *Handlers) handleSnapshot(c *gin.Context) {
	snap, err := h.svc.Snapshot()
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", snap)
}

func (h *Handlers) handleRespond(c *gin.Context) {
	var req textRequest
	if !h.bind(c, &req) {
		return
	}
	ev, err := h.svc.Respond(req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "response recorded", ev)
}

func (h *Handlers) handleCapture(c *gin.Context) {
	if err := h.svc.CaptureNow(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Response{Code: http.StatusAccepted, Message: "capture scheduled"})
}

func (h *Handlers) handleNotes(c *gin.Context) {
	var req textRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.SetNotes(req.Text); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "notes updated", nil)
}

func (h *Handlers) handleTags(c *gin.Context) {
	var req tagsRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.AddTags(req.Tags); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "tags added", nil)
}

func (h *Handlers) handleListSessions(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(c, fmt.Errorf("%w: limit must be a non-negative integer", focus.ErrInvalidRequest))
			return
		}
		limit = n
	}
	recs, err := h.svc.Sessions(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", recs)
}

func (h *Handlers) handleGetSession(c *gin.Context) {
	rec, err := h.svc.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", rec)
}

func (h *Handlers) handleDeleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "session deleted", nil)
}

func (h *Handlers) handleGetSettings(c *gin.Context) {
	response.Success(c, "ok", viewOf(h.svc.Settings()))
}

func (h *Handlers) handleUpdateSettings(c *gin.Context) {
	var req settingsView
	if !h.bind(c, &req) {
		return
	}
	next := req.apply(h.svc.Settings())
	if err := h.svc.UpdateSettings(next); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "settings updated", viewOf(next))
}
