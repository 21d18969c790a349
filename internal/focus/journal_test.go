package focus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/session"
	"github.com/code-100-precent/FocusBuddy/internal/store"
	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// opStore records the order of Append and Save calls.
type opStore struct {
	store.Store
	mu   sync.Mutex
	ops   []string
	fail  bool
	calls int
}

func (s *opStore) Append(_ context.Context, _ string, ev session.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return errors.New("read-only file system")
	}
	s.ops = append(s.ops, "append:"+ev.Text)
	return nil
}

func (s *opStore) Save(_ context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "save:"+rec.ID)
	return nil
}

func (s *opStore) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *opStore) appendCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *opStore) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func ev(id, text string, kind session.EventKind) session.Event {
	return session.Event{SessionID: id, Kind: kind, Text: text, Timestamp: t0}
}

func TestJournal_WritesInOrderAndCheckpoints(t *testing.T) {
	st := &opStore{}
	snap := func() (store.Record, bool) {
		return store.Record{Session: session.Session{ID: "s1"}}, true
	}
	j := newJournal("s1", st, 3, snap, nil, zap.NewNop())

	j.Enqueue(ev("s1", "a", session.KindAnalysis))
	j.Enqueue(ev("other", "x", session.KindAnalysis))
	j.Enqueue(ev("s1", "check", session.KindCheckIn))
	j.Enqueue(ev("s1", "b", session.KindUserResponse))
	j.Close()

	assert.Equal(t, []string{"append:a", "append:check", "save:s1", "append:b"}, st.snapshot())
	assert.Equal(t, 3, j.Written())

	// Enqueue after Close is dropped.
	j.Enqueue(ev("s1", "late", session.KindAnalysis))
	assert.Equal(t, 3, j.Written())
}

func TestJournal_FatalAfterConsecutiveFailures(t *testing.T) {
	st := &opStore{fail: true}
	var fatal atomic.Int32
	got := make(chan error, 4)
	j := newJournal("s1", st, 2, nil, func(err error) {
		fatal.Add(1)
		got <- err
	}, zap.NewNop())

	for i := 0; i < 4; i++ {
		j.Enqueue(ev("s1", "e", session.KindAnalysis))
	}
	j.Close()

	select {
	case err := <-got:
		assert.ErrorIs(t, err, errs.ErrPersistenceFailure)
		assert.Equal(t, errs.SeverityFatal, errs.NewErrHandler(zap.NewNop()).Severity(err))
	case <-time.After(waitFor):
		t.Fatal("onFatal was not called")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fatal.Load())
	assert.Zero(t, j.Written())
}

func TestJournal_SuccessResetsFailureCount(t *testing.T) {
	st := &opStore{}
	var fatal atomic.Int32
	j := newJournal("s1", st, 2, nil, func(error) { fatal.Add(1) }, zap.NewNop())

	st.setFail(true)
	j.Enqueue(ev("s1", "a", session.KindAnalysis))
	require.Eventually(t, func() bool { return st.appendCalls() == 1 }, waitFor, time.Millisecond)

	st.setFail(false)
	j.Enqueue(ev("s1", "b", session.KindAnalysis))
	require.Eventually(t, func() bool { return j.Written() == 1 }, waitFor, time.Millisecond)

	st.setFail(true)
	j.Enqueue(ev("s1", "c", session.KindAnalysis))
	j.Close()

	assert.Equal(t, []string{"append:b"}, st.snapshot())
	assert.Zero(t, fatal.Load())
}
