package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var ErrClientClosed = errors.New("realtime client closed")

// Role of a transcript
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Config configures a realtime speech session.
type Config struct {
	URL                string
	APIKey             string
	Model              string
	Voice              string
	Instructions       string
	TranscriptionModel string
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

// Transcript is one finished utterance.
type Transcript struct {
	ItemID string
	Role   string
	Text   string
	At     time.Time
}

// Client is a bidirectional realtime speech stream.
type Client struct {
	config *Config

	conn     *websocket.Conn
	mu       sync.Mutex
	isClosed bool

	sendChan       chan []byte
	transcriptChan chan Transcript
	closeChan      chan struct{}
	done           chan struct{}

	errMu sync.Mutex
	err   error

	errorCallback func(error)
}

func NewClient(config *Config) *Client {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.TranscriptionModel == "" {
		config.TranscriptionModel = "whisper-1"
	}
	return &Client{
		config:         config,
		sendChan:       make(chan []byte, 256),
		transcriptChan: make(chan Transcript, 32),
		closeChan:      make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// SetErrorCallback sets the error callback function
func (c *Client) SetErrorCallback(callback func(error)) {
	c.errorCallback = callback
}

// isNormalCloseError checks if the error is a normal WebSocket close error
func isNormalCloseError(err error) bool {
	var closeError *websocket.CloseError
	if errors.As(err, &closeError) {
		switch closeError.Code {
		case websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived:
			return true
		}
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}

func (c *Client) endpoint() string {
	url := c.config.URL
	if url == "" {
		url = "wss://api.openai.com/v1/realtime"
	}
	if c.config.Model != "" && !strings.Contains(url, "model=") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "model=" + c.config.Model
	}
	return url
}

// Connect dials the stream and configures the session.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return ErrClientClosed
	}

	header := http.Header{}
	if c.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint(), header)
	if err != nil {
		return errs.StreamFailure(fmt.Errorf("dial websocket: %w", err))
	}
	c.conn = conn

	update := sessionUpdate{
		Type: EventSessionUpdate,
		Session: sessionConfig{
			Modalities:              []string{"text", "audio"},
			Instructions:            c.config.Instructions,
			Voice:                   c.config.Voice,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: &transcriptionConfig{Model: c.config.TranscriptionModel},
			TurnDetection:           &turnDetection{Type: "server_vad"},
		},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(update); err != nil {
		_ = conn.Close()
		return errs.StreamFailure(fmt.Errorf("send session.update: %w", err))
	}

	go c.readLoop()
	go c.writeLoop()

	logrus.WithField("url", c.endpoint()).Info("realtime client: connected")
	return nil
}

// SendAudio queues one PCM16 buffer. It drops the buffer instead of
// blocking when the send queue is full.
func (c *Client) SendAudio(pcm []byte) error {
	msg, err := json.Marshal(audioAppend{Type: EventInputAudioAppend, Audio: base64.StdEncoding.EncodeToString(pcm)})
	if err != nil {
		return err
	}
	select {
	case <-c.closeChan:
		return ErrClientClosed
	case <-c.done:
		return ErrClientClosed
	case c.sendChan <- msg:
		return nil
	default:
		logrus.Warn("realtime client: send queue full, dropping audio")
		return nil
	}
}

// Say asks the model to speak text to the user.
func (c *Client) Say(text string) error {
	msg, err := json.Marshal(responseCreate{
		Type: EventResponseCreate,
		Response: responseOptions{
			Modalities:   []string{"audio", "text"},
			Instructions: "Say the following to the user, warmly and briefly: " + text,
		},
	})
	if err != nil {
		return err
	}
	select {
	case <-c.closeChan:
		return ErrClientClosed
	case <-c.done:
		return ErrClientClosed
	case c.sendChan <- msg:
		return nil
	}
}

// Transcripts delivers finished utterances until the stream ends.
func (c *Client) Transcripts() <-chan Transcript {
	return c.transcriptChan
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the stream, nil after a normal close.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) fail(err error, operation string) {
	if isNormalCloseError(err) {
		return
	}
	err = errs.StreamFailure(err)
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"error":     err.Error(),
		"operation": operation,
	}).Error("realtime client: connection error")
	if c.errorCallback != nil {
		c.errorCallback(err)
	}
}

func (c *Client) writeLoop() {
	defer logrus.Debug("realtime client: writeLoop exited")
	for {
		select {
		case <-c.closeChan:
			return
		case <-c.done:
			return
		case msg := <-c.sendChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.fail(err, "writeLoop")
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		logrus.Debug("realtime client: readLoop exited")
	}()

	for {
		if c.config.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeChan:
			default:
				c.fail(err, "readLoop")
			}
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			logrus.WithError(err).Warn("realtime client: undecodable event")
			continue
		}
		c.handle(ev)
	}
}

func (c *Client) handle(ev serverEvent) {
	var tr *Transcript
	switch ev.Type {
	case EventInputTranscribed:
		tr = &Transcript{ItemID: ev.ItemID, Role: RoleUser, Text: strings.TrimSpace(ev.Transcript)}
	case EventAudioTranscript:
		tr = &Transcript{ItemID: ev.ItemID, Role: RoleAssistant, Text: strings.TrimSpace(ev.Transcript)}
	case EventTextDone:
		tr = &Transcript{ItemID: ev.ItemID, Role: RoleAssistant, Text: strings.TrimSpace(ev.Text)}
	case EventError:
		if ev.Error != nil && c.errorCallback != nil {
			c.errorCallback(errs.StreamFailure(fmt.Errorf("%s: %s", ev.Error.Code, ev.Error.Message)))
		}
		return
	default:
		logrus.WithField("type", ev.Type).Debug("realtime client: event")
		return
	}
	if tr.Text == "" {
		return
	}
	tr.At = time.Now()
	select {
	case <-c.closeChan:
	case c.transcriptChan <- *tr:
	default:
		logrus.Warn("realtime client: transcript channel full, dropping transcript")
	}
}

// IsClosed returns true if the client is closed
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosed
}

// Close closes the connection and waits briefly for the read loop.
func (c *Client) Close() {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return
	}
	c.isClosed = true
	close(c.closeChan)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.Close()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
}
