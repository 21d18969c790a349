package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/FocusBuddy/internal/models"
	"github.com/code-100-precent/FocusBuddy/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBStore persists sessions through gorm.
type DBStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDBStore migrates the schema on db.
func NewDBStore(db *gorm.DB, logger *zap.Logger) (*DBStore, error) {
	if logger == nil {
		logger = zap.L()
	}
	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DBStore{db: db, logger: logger}, nil
}

func (s *DBStore) Append(ctx context.Context, sessionID string, ev session.Event) error {
	if err := validateID(sessionID); err != nil {
		return err
	}
	ev.SessionID = sessionID
	m := toEventModel(ev)
	return models.AppendSessionEvent(s.db.WithContext(ctx), &m)
}

func (s *DBStore) Save(ctx context.Context, rec Record) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	m, err := toSessionModel(rec)
	if err != nil {
		return err
	}
	events := make([]models.SessionEvent, 0, len(rec.Events))
	for _, ev := range rec.Events {
		ev.SessionID = rec.ID
		events = append(events, toEventModel(ev))
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.SaveFocusSession(tx, &m); err != nil {
			return err
		}
		return models.SaveSessionEvents(tx, events)
	})
}

func (s *DBStore) Get(ctx context.Context, id string) (Record, error) {
	if err := validateID(id); err != nil {
		return Record{}, err
	}
	db := s.db.WithContext(ctx)
	m, err := models.GetFocusSession(db, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rows, jerr := models.GetSessionEvents(db, id)
		if jerr != nil {
			return Record{}, jerr
		}
		if len(rows) == 0 {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fromJournal(id, fromEventModels(rows)), nil
	}
	if err != nil {
		return Record{}, err
	}
	return fromSessionModel(m), nil
}

func (s *DBStore) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := models.ListFocusSessions(s.db.WithContext(ctx), limit)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(rows))
	for i := range rows {
		recs = append(recs, header(fromSessionModel(&rows[i])))
	}
	return recs, nil
}

func (s *DBStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	err := models.DeleteFocusSession(s.db.WithContext(ctx), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

func (s *DBStore) Prune(ctx context.Context, before time.Time) (int, error) {
	return models.PruneFocusSessions(s.db.WithContext(ctx), before)
}

func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toSessionModel(rec Record) (models.FocusSession, error) {
	metrics, err := sonic.MarshalString(rec.Metrics)
	if err != nil {
		return models.FocusSession{}, fmt.Errorf("encode metrics: %w", err)
	}
	status := models.FocusSessionStatusActive
	if rec.EndedAt != nil {
		status = models.FocusSessionStatusEnded
	}
	return models.FocusSession{
		SessionID:      rec.ID,
		Status:         status,
		StartTime:      rec.StartedAt,
		EndTime:        rec.EndedAt,
		PlannedSeconds: int(rec.PlannedDuration / time.Second),
		EndReason:      string(rec.EndReason),
		Tags:           strings.Join(rec.Tags, ","),
		Notes:          rec.Notes,
		Summary:        rec.Summary,
		Metrics:        metrics,
		EventCount:     len(rec.Events),
	}, nil
}

func fromSessionModel(m *models.FocusSession) Record {
	rec := Record{Session: session.Session{
		ID:              m.SessionID,
		StartedAt:       m.StartTime,
		EndedAt:         m.EndTime,
		PlannedDuration: time.Duration(m.PlannedSeconds) * time.Second,
		Tags:            splitList(m.Tags),
		Notes:           m.Notes,
		Summary:         m.Summary,
		EndReason:       session.EndReason(m.EndReason),
		Events:          fromEventModels(m.Events),
	}}
	if m.Metrics != "" {
		if err := sonic.UnmarshalString(m.Metrics, &rec.Metrics); err != nil {
			zap.L().Warn("stored metrics unreadable", zap.String("session", m.SessionID), zap.Error(err))
		}
	}
	return rec
}

func toEventModel(ev session.Event) models.SessionEvent {
	return models.SessionEvent{
		EventID:    ev.ID,
		SessionID:  ev.SessionID,
		Seq:        ev.Seq,
		Kind:       string(ev.Kind),
		Timestamp:  ev.Timestamp,
		FrameRef:   ev.FrameRef,
		Text:       ev.Text,
		Failed:     ev.Failed,
		Error:      ev.Error,
		Productive: ev.Productive,
		Apps:       strings.Join(ev.Apps, ","),
		Activities: strings.Join(ev.Activities, ","),
	}
}

func fromEventModels(rows []models.SessionEvent) []session.Event {
	if len(rows) == 0 {
		return nil
	}
	events := make([]session.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, session.Event{
			ID:         r.EventID,
			SessionID:  r.SessionID,
			Seq:        r.Seq,
			Kind:       session.EventKind(r.Kind),
			Timestamp:  r.Timestamp,
			FrameRef:   r.FrameRef,
			Text:       r.Text,
			Failed:     r.Failed,
			Error:      r.Error,
			Productive: r.Productive,
			Apps:       splitList(r.Apps),
			Activities: splitList(r.Activities),
		})
	}
	return events
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
