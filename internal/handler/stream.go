package handlers

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/FocusBuddy/pkg/events"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// streamCommand is a message sent by the UI over the event stream.
type streamCommand struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// handleStream upgrades to a websocket and forwards every bus event as JSON.
// The UI may send {"type":"respond","text":...} and {"type":"capture"}.
func (h *Handlers) handleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	out := make(chan events.Event, streamBuffer)
	unsubscribe := h.svc.Bus().Subscribe(events.TopicAll, func(ev events.Event) {
		select {
		case out <- ev:
		default:
			h.logger.Debug("stream client is slow, event dropped", zap.String("type", ev.Type))
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	go h.readCommands(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.closeLog(err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.closeLog(err)
				return
			}
		}
	}
}

func (h *Handlers) readCommands(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.closeLog(err)
			return
		}
		var cmd streamCommand
		if err := sonic.Unmarshal(data, &cmd); err != nil {
			h.logger.Debug("ignoring malformed stream command", zap.Error(err))
			continue
		}
		switch cmd.Type {
		case "respond":
			_, err = h.svc.Respond(cmd.Text)
		case "capture":
			err = h.svc.CaptureNow()
		default:
			h.logger.Debug("unknown stream command", zap.String("type", cmd.Type))
			continue
		}
		if err != nil {
			h.logger.Info("stream command rejected", zap.String("type", cmd.Type), zap.Error(err))
		}
	}
}

func (h *Handlers) closeLog(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		h.logger.Debug("stream closed", zap.Error(err))
		return
	}
	h.logger.Warn("stream ended", zap.Error(err))
}
