package session

import (
	"time"

	"github.com/google/uuid"
)

// EventKind discriminates the Event variants.
type EventKind string

const (
	KindCapture      EventKind = "capture"
	KindAnalysis     EventKind = "analysis"
	KindCheckIn      EventKind = "check_in"
	KindUserResponse EventKind = "user_response"
)

// Event is one timestamped occurrence within a Session. Values are copied on
// the way in and out of the tracker, so an appended Event cannot be mutated.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Seq       int       `json:"seq"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// Capture
	FrameRef string `json:"frameRef,omitempty"`

	// Analysis text, CheckIn prompt or UserResponse text
	Text string `json:"text,omitempty"`

	// Analysis only
	Failed     bool     `json:"failed,omitempty"`
	Error      string   `json:"error,omitempty"`
	Productive *bool    `json:"productive,omitempty"`
	Apps       []string `json:"apps,omitempty"`
	Activities []string `json:"activities,omitempty"`
}

// NewCapture builds a Capture event.
func NewCapture(frameRef string, ts time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindCapture, FrameRef: frameRef, Timestamp: ts}
}

// NewAnalysis builds a successful Analysis event.
func NewAnalysis(text string, ts time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindAnalysis, Text: text, Timestamp: ts}
}

// NewFailedAnalysis builds the degraded Analysis marker recorded when a
// capture or a vision call fails.
func NewFailedAnalysis(cause error, ts time.Time) Event {
	ev := Event{ID: uuid.NewString(), Kind: KindAnalysis, Failed: true, Timestamp: ts}
	if cause != nil {
		ev.Error = cause.Error()
	}
	return ev
}

// NewCheckIn builds a CheckIn event.
func NewCheckIn(prompt string, ts time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindCheckIn, Text: prompt, Timestamp: ts}
}

// NewUserResponse builds a UserResponse event.
func NewUserResponse(text string, ts time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: KindUserResponse, Text: text, Timestamp: ts}
}

// WithVerdict attaches the productivity heuristics to an Analysis event.
func (e Event) WithVerdict(productive bool, apps, activities []string) Event {
	p := productive
	e.Productive = &p
	e.Apps = append([]string(nil), apps...)
	e.Activities = append([]string(nil), activities...)
	return e
}

// IsProductive reports a successful Analysis judged productive.
func (e Event) IsProductive() bool {
	return e.Kind == KindAnalysis && !e.Failed && e.Productive != nil && *e.Productive
}

// IsDistracted reports a successful Analysis judged unproductive.
func (e Event) IsDistracted() bool {
	return e.Kind == KindAnalysis && !e.Failed && e.Productive != nil && !*e.Productive
}

func (e Event) clone() Event {
	if e.Productive != nil {
		p := *e.Productive
		e.Productive = &p
	}
	e.Apps = append([]string(nil), e.Apps...)
	e.Activities = append([]string(nil), e.Activities...)
	return e
}
