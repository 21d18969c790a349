package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	received []map[string]any
	header   http.Header
	conns    chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	fs := &fakeServer{conns: make(chan *websocket.Conn, 1)}
	upgrader := websocket.Upgrader{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.header = r.Header.Clone()
		fs.mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		fs.conns <- conn
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			fs.mu.Lock()
			fs.received = append(fs.received, msg)
			fs.mu.Unlock()
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

func (fs *fakeServer) types() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, 0, len(fs.received))
	for _, m := range fs.received {
		out = append(out, m["type"].(string))
	}
	return out
}

func TestClient_ConnectSendsSessionUpdate(t *testing.T) {
	fs := newFakeServer(t)
	c := NewClient(&Config{URL: fs.wsURL(), APIKey: "secret", Model: "gpt-4o-realtime-preview"})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.Eventually(t, func() bool { return len(fs.types()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{EventSessionUpdate}, fs.types())

	fs.mu.Lock()
	assert.Equal(t, "Bearer secret", fs.header.Get("Authorization"))
	assert.Equal(t, "realtime=v1", fs.header.Get("OpenAI-Beta"))
	session := fs.received[0]["session"].(map[string]any)
	fs.mu.Unlock()
	assert.Equal(t, "pcm16", session["input_audio_format"])
}

func TestClient_SendAudioAndSay(t *testing.T) {
	fs := newFakeServer(t)
	c := NewClient(&Config{URL: fs.wsURL()})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.NoError(t, c.SendAudio([]byte{1, 2, 3, 4}))
	require.NoError(t, c.Say("Time to refocus?"))

	require.Eventually(t, func() bool { return len(fs.types()) == 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{EventSessionUpdate, EventInputAudioAppend, EventResponseCreate}, fs.types())

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}), fs.received[1]["audio"])
	resp := fs.received[2]["response"].(map[string]any)
	assert.Contains(t, resp["instructions"], "Time to refocus?")
}

func TestClient_DeliversUserTranscripts(t *testing.T) {
	fs := newFakeServer(t)
	c := NewClient(&Config{URL: fs.wsURL()})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	server := <-fs.conns
	require.NoError(t, server.WriteJSON(map[string]any{"type": "session.created"}))
	require.NoError(t, server.WriteJSON(map[string]any{
		"type":       EventInputTranscribed,
		"item_id":    "item_1",
		"transcript": " I'm back on the report. ",
	}))

	select {
	case tr := <-c.Transcripts():
		assert.Equal(t, RoleUser, tr.Role)
		assert.Equal(t, "I'm back on the report.", tr.Text)
		assert.Equal(t, "item_1", tr.ItemID)
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript received")
	}
}

func TestClient_ServerErrorEventReachesCallback(t *testing.T) {
	fs := newFakeServer(t)
	c := NewClient(&Config{URL: fs.wsURL()})
	got := make(chan error, 1)
	c.SetErrorCallback(func(err error) { got <- err })
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	server := <-fs.conns
	require.NoError(t, server.WriteJSON(map[string]any{
		"type":  EventError,
		"error": map[string]any{"code": "invalid_value", "message": "bad audio"},
	}))

	select {
	case err := <-got:
		assert.True(t, errors.Is(err, errs.ErrStreamFailure))
		assert.Contains(t, err.Error(), "bad audio")
	case <-time.After(2 * time.Second):
		t.Fatal("no error callback")
	}
}

func TestClient_DroppedStreamIsStreamFailure(t *testing.T) {
	fs := newFakeServer(t)
	c := NewClient(&Config{URL: fs.wsURL()})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	server := <-fs.conns
	_ = server.UnderlyingConn().Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit")
	}
	assert.True(t, errors.Is(c.Err(), errs.ErrStreamFailure))
	assert.ErrorIs(t, c.SendAudio([]byte{0}), ErrClientClosed)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	fs := newFakeServer(t)
	c := NewClient(&Config{URL: fs.wsURL()})
	require.NoError(t, c.Connect(context.Background()))

	c.Close()
	c.Close()
	assert.True(t, c.IsClosed())
	assert.NoError(t, c.Err())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
}

func TestClient_DialFailureIsStreamFailure(t *testing.T) {
	c := NewClient(&Config{URL: "ws://127.0.0.1:1/realtime"})
	err := c.Connect(context.Background())
	assert.True(t, errors.Is(err, errs.ErrStreamFailure))
}
