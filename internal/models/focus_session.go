package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	FocusSessionStatusActive = "active"
	FocusSessionStatusEnded  = "ended"
)

// FocusSession 专注会话记录
type FocusSession struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// 会话标识，格式 20060102_150405
	SessionID string `json:"sessionId" gorm:"size:64;uniqueIndex;not null"`

	// 会话状态
	Status         string     `json:"status" gorm:"size:20;index"` // active, ended
	StartTime      time.Time  `json:"startTime" gorm:"index"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	PlannedSeconds int        `json:"plannedSeconds" gorm:"default:0"`
	EndReason      string     `json:"endReason,omitempty" gorm:"size:32"`

	// 用户信息
	Tags  string `json:"tags" gorm:"size:512"` // 逗号分隔
	Notes string `json:"notes" gorm:"type:text"`

	// 摘要与统计（JSON格式）
	Summary    string `json:"summary" gorm:"type:text"`
	Metrics    string `json:"metrics" gorm:"type:text"`
	EventCount int    `json:"eventCount" gorm:"default:0"`

	Events []SessionEvent `json:"events,omitempty" gorm:"foreignKey:SessionID;references:SessionID"`
}

// TableName 指定表名
func (FocusSession) TableName() string {
	return "focus_sessions"
}

// SessionEvent 会话事件，按 Seq 追加
type SessionEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`

	EventID   string    `json:"eventId" gorm:"size:64;uniqueIndex;not null"`
	SessionID string    `json:"sessionId" gorm:"size:64;index:idx_session_seq;not null"`
	Seq       int       `json:"seq" gorm:"index:idx_session_seq"`
	Kind      string    `json:"kind" gorm:"size:20;index"`
	Timestamp time.Time `json:"timestamp"`

	FrameRef   string `json:"frameRef,omitempty" gorm:"size:512"`
	Text       string `json:"text,omitempty" gorm:"type:text"`
	Failed     bool   `json:"failed" gorm:"default:false"`
	Error      string `json:"error,omitempty" gorm:"type:text"`
	Productive *bool  `json:"productive,omitempty"`
	Apps       string `json:"apps,omitempty" gorm:"size:512"`
	Activities string `json:"activities,omitempty" gorm:"size:512"`
}

// TableName 指定表名
func (SessionEvent) TableName() string {
	return "session_events"
}

// Migrate 创建或更新表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&FocusSession{}, &SessionEvent{})
}

// SaveFocusSession 按 SessionID 插入或覆盖会话
func SaveFocusSession(db *gorm.DB, session *FocusSession) error {
	if session == nil {
		return errors.New("nil focus session")
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "status", "start_time", "end_time", "planned_seconds", "end_reason",
			"tags", "notes", "summary", "metrics", "event_count", "deleted_at",
		}),
	}).Omit("Events").Create(session).Error
}

// AppendSessionEvent 追加事件，重复的 EventID 忽略
func AppendSessionEvent(db *gorm.DB, event *SessionEvent) error {
	if event == nil {
		return errors.New("nil session event")
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event).Error
}

// SaveSessionEvents 批量写入事件，重复的 EventID 忽略
func SaveSessionEvents(db *gorm.DB, events []SessionEvent) error {
	if len(events) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).CreateInBatches(events, 200).Error
}

// GetFocusSession 根据 SessionID 获取会话及其事件
func GetFocusSession(db *gorm.DB, sessionID string) (*FocusSession, error) {
	var session FocusSession
	err := db.Where("session_id = ?", sessionID).
		Preload("Events", func(tx *gorm.DB) *gorm.DB { return tx.Order("seq ASC") }).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessionEvents 获取某个会话已写入的事件
func GetSessionEvents(db *gorm.DB, sessionID string) ([]SessionEvent, error) {
	var events []SessionEvent
	err := db.Where("session_id = ?", sessionID).Order("seq ASC").Find(&events).Error
	return events, err
}

// ListFocusSessions 获取会话列表，最新的在前，不含事件
func ListFocusSessions(db *gorm.DB, limit int) ([]FocusSession, error) {
	var sessions []FocusSession
	query := db.Order("start_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&sessions).Error
	return sessions, err
}

// DeleteFocusSession 删除会话及其事件
func DeleteFocusSession(db *gorm.DB, sessionID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Unscoped().Where("session_id = ?", sessionID).Delete(&FocusSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("session_id = ?", sessionID).Delete(&SessionEvent{}).Error
	})
}

// PruneFocusSessions 删除在 before 之前结束的会话，返回删除数量
func PruneFocusSessions(db *gorm.DB, before time.Time) (int, error) {
	var ids []string
	err := db.Model(&FocusSession{}).
		Where("status = ? AND end_time < ?", FocusSessionStatusEnded, before).
		Pluck("session_id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id IN ?", ids).Delete(&SessionEvent{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("session_id IN ?", ids).Delete(&FocusSession{}).Error
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
