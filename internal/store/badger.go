package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/FocusBuddy/internal/session"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerStore keeps records under "s/<id>" and events under
// "e/<id>/<seq>" so a session's events iterate in order.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerStore opens a badger database in dir, or in memory.
func NewBadgerStore(dir string, inMemory bool, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.L()
	}
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	} else if dir == "" {
		return nil, errors.New("badger store needs a directory")
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func recordKey(id string) []byte { return []byte("s/" + id) }

func eventPrefix(id string) []byte { return []byte("e/" + id + "/") }

func eventKey(id string, seq int) []byte {
	return []byte(fmt.Sprintf("e/%s/%010d", id, seq))
}

func (s *BadgerStore) Append(_ context.Context, sessionID string, ev session.Event) error {
	if err := validateID(sessionID); err != nil {
		return err
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(sessionID, ev.Seq), data)
	})
}

func (s *BadgerStore) Save(_ context.Context, rec Record) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	data, err := sonic.Marshal(header(rec))
	if err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	if err := wb.Set(recordKey(rec.ID), data); err != nil {
		return err
	}
	for _, ev := range rec.Events {
		b, err := sonic.Marshal(ev)
		if err != nil {
			return err
		}
		if err := wb.Set(eventKey(rec.ID, ev.Seq), b); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) Get(_ context.Context, id string) (Record, error) {
	if err := validateID(id); err != nil {
		return Record{}, err
	}
	var (
		rec    Record
		found  bool
		events []session.Event
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		switch {
		case err == nil:
			found = true
			if err := item.Value(func(val []byte) error { return sonic.Unmarshal(val, &rec) }); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := eventPrefix(id)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ev session.Event
			if err := it.Item().Value(func(val []byte) error { return sonic.Unmarshal(val, &ev) }); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	switch {
	case found:
		rec.Events = events
		return rec, nil
	case len(events) > 0:
		return fromJournal(id, events), nil
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *BadgerStore) List(_ context.Context, limit int) ([]Record, error) {
	recs, err := s.headers()
	if err != nil {
		return nil, err
	}
	sortNewest(recs)
	return limitRecords(recs, limit), nil
}

func (s *BadgerStore) headers() ([]Record, error) {
	var recs []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("s/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error { return sonic.Unmarshal(val, &rec) }); err != nil {
				s.logger.Warn("skipping unreadable session", zap.ByteString("key", it.Item().Key()), zap.Error(err))
				continue
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

func (s *BadgerStore) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		found := false
		if _, err := txn.Get(recordKey(id)); err == nil {
			found = true
			if err := txn.Delete(recordKey(id)); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := eventPrefix(id)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			found = true
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

func (s *BadgerStore) Prune(ctx context.Context, before time.Time) (int, error) {
	recs, err := s.headers()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		if !endedBefore(rec, before) {
			continue
		}
		if err := s.Delete(ctx, rec.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
