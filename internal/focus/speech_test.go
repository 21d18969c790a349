package focus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/code-100-precent/FocusBuddy/pkg/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStream struct {
	transcripts chan realtime.Transcript
	done        chan struct{}
	closeOnce   sync.Once

	mu     sync.Mutex
	said   []string
	audio  int
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{transcripts: make(chan realtime.Transcript, 8), done: make(chan struct{})}
}

func (f *fakeStream) SendAudio([]byte) error {
	f.mu.Lock()
	f.audio++
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Say(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return realtime.ErrClientClosed
	}
	f.said = append(f.said, text)
	return nil
}

func (f *fakeStream) Transcripts() <-chan realtime.Transcript { return f.transcripts }
func (f *fakeStream) Done() <-chan struct{}                  { return f.done }
func (f *fakeStream) Err() error                             { return errors.New("connection reset") }

func (f *fakeStream) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.drop()
}

func (f *fakeStream) drop() { f.closeOnce.Do(func() { close(f.done) }) }

func (f *fakeStream) saidTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// dialRecorder hands out a fresh fakeStream per dial, failing the first
// failFirst attempts.
type dialRecorder struct {
	failFirst int32
	attempts  atomic.Int32
	streams   chan *fakeStream
}

func newDialRecorder(failFirst int32) *dialRecorder {
	return &dialRecorder{failFirst: failFirst, streams: make(chan *fakeStream, 8)}
}

func (d *dialRecorder) dial(context.Context) (Stream, error) {
	if d.attempts.Add(1) <= d.failFirst {
		return nil, errors.New("dial tcp: connection refused")
	}
	s := newFakeStream()
	d.streams <- s
	return s, nil
}

func (d *dialRecorder) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-d.streams:
		return s
	case <-time.After(waitFor):
		t.Fatal("no stream dialed")
		return nil
	}
}

type fakeMic struct {
	mu      sync.Mutex
	onFrame func([]byte)
	stopped bool
	err     error
}

func (m *fakeMic) Start(onFrame func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.onFrame = onFrame
	return nil
}

func (m *fakeMic) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *fakeMic) push(pcm []byte) {
	m.mu.Lock()
	fn := m.onFrame
	m.mu.Unlock()
	if fn != nil {
		fn(pcm)
	}
}

type replies struct {
	mu   sync.Mutex
	list []string
}

func (r *replies) add(s string) {
	r.mu.Lock()
	r.list = append(r.list, s)
	r.mu.Unlock()
}

func (r *replies) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.list...)
}

var fastBackoff = SpeechOptions{MaxReconnect: time.Second, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func TestSpeech_ForwardsUserTranscripts(t *testing.T) {
	d := newDialRecorder(0)
	mic := &fakeMic{}
	var got replies
	sp := NewSpeech(d.dial, mic, got.add, fastBackoff, zap.NewNop())
	sp.Start(context.Background())
	defer sp.Stop()

	stream := d.next(t)
	stream.transcripts <- realtime.Transcript{ItemID: "i1", Role: realtime.RoleAssistant, Text: "How is it going?"}
	stream.transcripts <- realtime.Transcript{ItemID: "i2", Role: realtime.RoleUser, Text: ""}
	stream.transcripts <- realtime.Transcript{ItemID: "i3", Role: realtime.RoleUser, Text: "Still on the parser."}

	require.Eventually(t, func() bool { return len(got.get()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"Still on the parser."}, got.get())

	mic.push([]byte{1, 2, 3, 4})
	stream.mu.Lock()
	assert.Equal(t, 1, stream.audio)
	stream.mu.Unlock()
}

func TestSpeech_NotifySpeaksPrompt(t *testing.T) {
	d := newDialRecorder(0)
	sp := NewSpeech(d.dial, nil, func(string) {}, fastBackoff, zap.NewNop())

	err := sp.Notify(context.Background(), "s1", "Still focused?")
	assert.ErrorIs(t, err, errs.ErrStreamFailure)

	sp.Start(context.Background())
	stream := d.next(t)
	require.Eventually(t, func() bool {
		return sp.Notify(context.Background(), "s1", "Still focused?") == nil
	}, waitFor, time.Millisecond)
	assert.Equal(t, []string{"Still focused?"}, stream.saidTexts())

	sp.Stop()
	assert.True(t, stream.isClosed())
	assert.ErrorIs(t, sp.Notify(context.Background(), "s1", "again"), errs.ErrStreamFailure)
}

func TestSpeech_ReconnectsAfterDrop(t *testing.T) {
	d := newDialRecorder(2)
	var got replies
	sp := NewSpeech(d.dial, nil, got.add, fastBackoff, zap.NewNop())
	sp.Start(context.Background())
	defer sp.Stop()

	first := d.next(t)
	assert.EqualValues(t, 3, sp.Dials())

	first.drop()
	second := d.next(t)
	assert.True(t, first.isClosed())

	second.transcripts <- realtime.Transcript{Role: realtime.RoleUser, Text: "back"}
	require.Eventually(t, func() bool { return len(got.get()) == 1 }, waitFor, time.Millisecond)
	assert.GreaterOrEqual(t, sp.Dials(), int64(4))
}

func TestSpeech_MicFailureKeepsSpeaking(t *testing.T) {
	d := newDialRecorder(0)
	mic := &fakeMic{err: errors.New("no input device")}
	sp := NewSpeech(d.dial, mic, func(string) {}, fastBackoff, zap.NewNop())
	sp.Start(context.Background())

	stream := d.next(t)
	require.Eventually(t, func() bool {
		return sp.Notify(context.Background(), "s1", "hi") == nil
	}, waitFor, time.Millisecond)
	sp.Stop()
	assert.Equal(t, []string{"hi"}, stream.saidTexts())
}

func TestSpeech_StopWithoutStart(t *testing.T) {
	sp := NewSpeech(newDialRecorder(0).dial, nil, func(string) {}, fastBackoff, zap.NewNop())
	sp.Stop()
}
