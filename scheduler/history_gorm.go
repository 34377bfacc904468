package scheduler

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// GormHistory stores execution records in the "executions" table.
type GormHistory struct {
	DB *gorm.DB
}

func NewGormHistory(db *gorm.DB) *GormHistory {
	return &GormHistory{DB: db}
}

type executionModel struct {
	ID         string    `gorm:"column:id;primaryKey;size:36"`
	Path       string    `gorm:"column:path;size:1024;index"`
	StartedAt  time.Time `gorm:"column:started_at;index"`
	DurationMs int64     `gorm:"column:duration_ms"`
	ExitCode   int       `gorm:"column:exit_code"`
	Outcome    string    `gorm:"column:outcome;size:16"`
	Output     string    `gorm:"column:output;type:text"`
	Error      string    `gorm:"column:error;type:text"`
}

func (executionModel) TableName() string {
	return "executions"
}

func (r *GormHistory) Migrate(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(&executionModel{})
}

func (r *GormHistory) Record(ctx context.Context, rec ExecutionRecord) error {
	m := executionModel{
		ID:         rec.ID,
		Path:       rec.Path,
		StartedAt:  rec.StartedAt,
		DurationMs: rec.Duration.Milliseconds(),
		ExitCode:   rec.ExitCode,
		Outcome:    string(rec.Outcome),
		Output:     rec.Output,
		Error:      rec.Error,
	}
	return r.DB.WithContext(ctx).Create(&m).Error
}

func (r *GormHistory) Recent(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	var models []executionModel
	q := r.DB.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	recs := make([]ExecutionRecord, 0, len(models))
	for _, m := range models {
		recs = append(recs, ExecutionRecord{
			ID:        m.ID,
			Path:      m.Path,
			StartedAt: m.StartedAt,
			Duration:  time.Duration(m.DurationMs) * time.Millisecond,
			ExitCode:  m.ExitCode,
			Outcome:   Outcome(m.Outcome),
			Output:    m.Output,
			Error:     m.Error,
		})
	}
	return recs, nil
}
