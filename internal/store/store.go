package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/session"
	"github.com/code-100-precent/FocusBuddy/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when no session with the given id is stored.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidID is returned for ids that are not safe to use as keys or
	// directory names.
	ErrInvalidID = errors.New("invalid session id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Record is a persisted Session together with its derived metrics.
type Record struct {
	session.Session
	Metrics session.Metrics `json:"metrics"`
}

// NewRecord snapshots s with metrics computed at now.
func NewRecord(s session.Session, now time.Time, opts session.MetricsOptions) Record {
	return Record{Session: s, Metrics: s.Metrics(now, opts)}
}

// Store persists session logs.
type Store interface {
	// Append journals one event of a running session.
	Append(ctx context.Context, sessionID string, ev session.Event) error
	// Save writes the full record, replacing any earlier checkpoint.
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns records without events, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)
	Delete(ctx context.Context, id string) error
	// Prune removes ended sessions that ended before the cutoff.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}

const (
	TypeFile   = "file"
	TypeDB     = "db"
	TypeBadger = "badger"
)

// Config selects and configures a backend.
type Config struct {
	Type string `env:"STORE_TYPE"`
	// Dir is the session_logs directory for file, the data directory for badger.
	Dir string `env:"STORE_DIR"`
	// InMemory keeps badger data in memory.
	InMemory bool `env:"STORE_IN_MEMORY"`
	// Driver and DSN configure the db backend.
	Driver string `env:"DB_DRIVER"`
	DSN    string `env:"DSN"`
}

// Open creates the configured store.
func Open(cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.L()
	}
	switch strings.ToLower(cfg.Type) {
	case "", TypeFile:
		dir := cfg.Dir
		if dir == "" {
			dir = "data/session_logs"
		}
		return NewFileStore(dir, logger)
	case TypeDB:
		db, err := utils.InitDatabase(nil, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return NewDBStore(db, logger)
	case TypeBadger:
		return NewBadgerStore(cfg.Dir, cfg.InMemory, logger)
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Type)
}

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// header drops the event list.
func header(rec Record) Record {
	rec.Events = nil
	return rec
}

// fromJournal rebuilds a record for a session that was never saved, e.g.
// after a crash.
func fromJournal(id string, events []session.Event) Record {
	return CloseInterrupted(Record{Session: session.Session{ID: id}}, events)
}

// CloseInterrupted ends a session that was left open, typically because the
// process died between checkpoints. Journal events missing from the
// checkpoint are merged in by Seq and the session ends at its last event.
// Ended records are returned unchanged.
func CloseInterrupted(rec Record, journal []session.Event) Record {
	if rec.EndedAt != nil {
		return rec
	}
	s := rec.Session
	s.Events = mergeEvents(s.Events, journal)
	if s.StartedAt.IsZero() && len(s.Events) > 0 {
		s.StartedAt = s.Events[0].Timestamp
	}
	end := s.StartedAt
	if n := len(s.Events); n > 0 && s.Events[n-1].Timestamp.After(end) {
		end = s.Events[n-1].Timestamp
	}
	s.EndedAt = &end
	s.EndReason = session.ReasonInterrupted
	return NewRecord(s, end, session.MetricsOptions{})
}

func mergeEvents(saved, journal []session.Event) []session.Event {
	seen := make(map[int]struct{}, len(saved)+len(journal))
	out := make([]session.Event, 0, len(saved)+len(journal))
	for _, list := range [][]session.Event{saved, journal} {
		for _, ev := range list {
			if _, dup := seen[ev.Seq]; dup {
				continue
			}
			seen[ev.Seq] = struct{}{}
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// endedBefore reports whether rec is a finished session that ended before t.
func endedBefore(rec Record, t time.Time) bool {
	return rec.EndedAt != nil && rec.EndedAt.Before(t)
}

func sortNewest(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].StartedAt.After(recs[j].StartedAt) })
}

func limitRecords(recs []Record, limit int) []Record {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}
