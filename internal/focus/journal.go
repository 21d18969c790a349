package focus

import (
	"context"
	"sync"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/session"
	"github.com/code-100-precent/FocusBuddy/internal/store"
	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"go.uber.org/zap"
)

// journalTimeout bounds one store call made by the journal.
const journalTimeout = 10 * time.Second

type journalItem struct {
	ev         session.Event
	checkpoint bool
}

// journal persists appended events of one session in append order. Enqueue
// never blocks, so it is safe to call from a tracker listener. A checkpoint
// item saves the full record through snapshot after its event is written.
type journal struct {
	sessionID string
	store     store.Store
	snapshot  func() (store.Record, bool)
	limit     int
	onFatal   func(err error)
	logger    *zap.Logger
	errh      *errs.ErrHandler

	mu      sync.Mutex
	queue   []journalItem
	closed  bool
	signal  chan struct{}
	done    chan struct{}
	fatal   sync.Once
	failed  int
	written int
}

func newJournal(sessionID string, st store.Store, limit int, snapshot func() (store.Record, bool), onFatal func(error), logger *zap.Logger) *journal {
	if limit < 1 {
		limit = 1
	}
	j := &journal{
		sessionID: sessionID,
		store:     st,
		snapshot:  snapshot,
		limit:     limit,
		onFatal:   onFatal,
		logger:    logger,
		errh:      errs.NewErrHandler(logger),
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go j.run()
	return j
}

// Enqueue queues ev; events of other sessions are ignored.
func (j *journal) Enqueue(ev session.Event) {
	if ev.SessionID != j.sessionID {
		return
	}
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.queue = append(j.queue, journalItem{ev: ev, checkpoint: ev.Kind == session.KindCheckIn})
	j.mu.Unlock()

	select {
	case j.signal <- struct{}{}:
	default:
	}
}

// Close stops accepting events, writes what is queued and waits.
func (j *journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.signal)
	}
	j.mu.Unlock()
	<-j.done
}

// Written reports how many events reached the store.
func (j *journal) Written() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

func (j *journal) run() {
	defer close(j.done)
	for {
		_, open := <-j.signal
		for {
			j.mu.Lock()
			batch := j.queue
			j.queue = nil
			j.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, it := range batch {
				j.write(it)
			}
		}
		if !open {
			return
		}
	}
}

func (j *journal) write(it journalItem) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := j.store.Append(ctx, j.sessionID, it.ev); err != nil {
		j.failure(err, "append")
		return
	}
	j.mu.Lock()
	j.written++
	j.mu.Unlock()

	if it.checkpoint && j.snapshot != nil {
		rec, ok := j.snapshot()
		if !ok {
			return
		}
		if err := j.store.Save(ctx, rec); err != nil {
			j.failure(err, "checkpoint")
			return
		}
		j.logger.Debug("checkpoint saved", zap.Int("events", len(rec.Events)))
	}
	j.failed = 0
}

func (j *journal) failure(err error, op string) {
	j.failed++
	perr := errs.PersistenceFailure(errs.SeverityRecoverable, err)
	j.errh.HandleError(perr, errs.KindPersistenceFailure, "journal")
	j.logger.Warn("journal write failed",
		zap.String("op", op),
		zap.Int("consecutive", j.failed),
		zap.Int("limit", j.limit),
	)
	if j.failed >= j.limit && j.onFatal != nil {
		j.fatal.Do(func() {
			go j.onFatal(errs.PersistenceFailure(errs.SeverityFatal, err))
		})
	}
}
