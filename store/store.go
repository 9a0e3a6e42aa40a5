// Package store persists runs and their event logs in a relational database
// through GORM, implementing the optional core.RunStore collaborator.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hupe1980/missionmesh/core"
)

// RunModel is the runs table.
type RunModel struct {
	RunID          string    `gorm:"primaryKey;size:64"`
	Project        string    `gorm:"size:255;index"`
	Engine         string    `gorm:"size:32"`
	ConfigPath     string    `gorm:"size:512"`
	RequestedPath  string    `gorm:"size:512"`
	Status         string    `gorm:"size:16;index"`
	TasksTotal     int       `gorm:""`
	TasksCompleted int       `gorm:""`
	StartedAt      time.Time `gorm:"index"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the GORM default.
func (RunModel) TableName() string { return "runs" }

// EventModel is the run_events table; Payload holds the JSON-encoded event.
type EventModel struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	RunID   string `gorm:"size:64;index:idx_run_seq,priority:1"`
	Seq     uint64 `gorm:"index:idx_run_seq,priority:2"`
	Type    string `gorm:"size:32"`
	Payload []byte `gorm:"type:mediumblob"`
}

// TableName overrides the GORM default.
func (EventModel) TableName() string { return "run_events" }

// GormStore implements core.RunStore on a GORM connection.
type GormStore struct {
	db *gorm.DB
}

// New opens a MySQL connection and migrates the schema.
func New(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewFromDB(db)
}

// NewFromDB wraps an existing GORM connection, migrating the schema.
func NewFromDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&RunModel{}, &EventModel{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateRun implements core.RunStore.
func (s *GormStore) CreateRun(rec core.RunRecord) error {
	m := RunModel{
		RunID:          rec.RunID,
		Project:        rec.Project,
		Engine:         rec.Engine,
		ConfigPath:     rec.ConfigPath,
		RequestedPath:  rec.RequestedPath,
		Status:         string(rec.Status),
		TasksTotal:     rec.TasksTotal,
		TasksCompleted: rec.TasksCompleted,
		StartedAt:      rec.StartedAt,
	}
	return s.db.Create(&m).Error
}

// UpdateRun implements core.RunStore.
func (s *GormStore) UpdateRun(runID string, tasksCompleted int, status core.RunStatus) error {
	return s.db.Model(&RunModel{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{
			"tasks_completed": tasksCompleted,
			"status":          string(status),
		}).Error
}

// AppendEvent implements core.RunStore.
func (s *GormStore) AppendEvent(runID string, ev core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	m := EventModel{
		RunID:   runID,
		Seq:     ev.Seq,
		Type:    string(ev.Type),
		Payload: payload,
	}
	return s.db.Create(&m).Error
}

// ListRuns implements core.RunStore, newest first.
func (s *GormStore) ListRuns() ([]core.RunRecord, error) {
	var models []RunModel
	if err := s.db.Order("started_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]core.RunRecord, 0, len(models))
	for _, m := range models {
		out = append(out, core.RunRecord{
			RunID:          m.RunID,
			Project:        m.Project,
			Engine:         m.Engine,
			ConfigPath:     m.ConfigPath,
			RequestedPath:  m.RequestedPath,
			Status:         core.RunStatus(m.Status),
			TasksTotal:     m.TasksTotal,
			TasksCompleted: m.TasksCompleted,
			StartedAt:      m.StartedAt,
		})
	}
	return out, nil
}

// ListEvents implements core.RunStore, in sequence order.
func (s *GormStore) ListEvents(runID string) ([]core.Event, error) {
	var models []EventModel
	if err := s.db.Where("run_id = ?", runID).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]core.Event, 0, len(models))
	for _, m := range models {
		var ev core.Event
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode event %d of run %s: %w", m.Seq, runID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}
