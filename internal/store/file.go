package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/FocusBuddy/internal/session"
	"go.uber.org/zap"
)

const (
	sessionFile = "session.json"
	journalFile = "events.jsonl"
)

// FileStore keeps one directory per session under dir:
// session.json holds the last saved record, events.jsonl the append journal.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore creates dir when missing.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session log dir: %w", err)
	}
	if logger == nil {
		logger = zap.L()
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the directory of session id.
func (s *FileStore) Dir(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *FileStore) Append(_ context.Context, sessionID string, ev session.Event) error {
	if err := validateID(sessionID); err != nil {
		return err
	}
	line, err := sonic.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.Dir(sessionID), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.Dir(sessionID), journalFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *FileStore) Save(_ context.Context, rec Record) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	data, err := sonic.ConfigStd.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.Dir(rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, sessionFile+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, sessionFile))
}

func (s *FileStore) Get(_ context.Context, id string) (Record, error) {
	if err := validateID(id); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *FileStore) read(id string) (Record, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(id), sessionFile))
	if err == nil {
		var rec Record
		if err := sonic.Unmarshal(data, &rec); err != nil {
			return Record{}, fmt.Errorf("decode %s: %w", id, err)
		}
		if rec.EndedAt != nil {
			return rec, nil
		}
		// a checkpoint of an unfinished session, the journal is newer
		events, err := s.readJournal(id)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Record{}, err
		}
		return CloseInterrupted(rec, events), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Record{}, err
	}

	events, err := s.readJournal(id)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, err
	}
	return fromJournal(id, events), nil
}

func (s *FileStore) readJournal(id string) ([]session.Event, error) {
	f, err := os.Open(filepath.Join(s.Dir(id), journalFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []session.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev session.Event
		if err := sonic.Unmarshal(line, &ev); err != nil {
			// a torn last line after a crash
			s.logger.Warn("skipping unreadable journal line", zap.String("session", id), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

func (s *FileStore) List(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.all()
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i] = header(recs[i])
	}
	sortNewest(recs)
	return limitRecords(recs, limit), nil
}

func (s *FileStore) all() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || validateID(e.Name()) != nil {
			continue
		}
		rec, err := s.read(e.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable session", zap.String("session", e.Name()), zap.Error(err))
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.Dir(id)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return os.RemoveAll(dir)
}

func (s *FileStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.all()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		if !endedBefore(rec, before) {
			continue
		}
		if err := os.RemoveAll(s.Dir(rec.ID)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *FileStore) Close() error { return nil }
