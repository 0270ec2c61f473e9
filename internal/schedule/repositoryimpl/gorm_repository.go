package repositoryimpl

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/kazz187/studyguild/internal/schedule"
	"github.com/kazz187/studyguild/pkg/cerr"
)

type scheduleModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	TaskID      int64     `gorm:"not null;index" validate:"required,gt=0"`
	Text        string    `gorm:"type:text;not null"`
	GeneratedAt time.Time `gorm:"not null"`
}

func (scheduleModel) TableName() string {
	return "schedules"
}

func (m *scheduleModel) toEntity() *schedule.Schedule {
	return &schedule.Schedule{
		ID:          m.ID,
		TaskID:      m.TaskID,
		Text:        m.Text,
		GeneratedAt: m.GeneratedAt,
	}
}

type GormRepository struct {
	db       *gorm.DB
	validate *validator.Validate
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Migrate creates or updates the schedules table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&scheduleModel{}); err != nil {
		return fmt.Errorf("failed to migrate schedules: %w", err)
	}
	return nil
}

func (r *GormRepository) Create(ctx context.Context, s *schedule.Schedule) error {
	if s.GeneratedAt.IsZero() {
		s.GeneratedAt = time.Now()
	}
	m := &scheduleModel{
		TaskID:      s.TaskID,
		Text:        s.Text,
		GeneratedAt: s.GeneratedAt,
	}
	if err := r.validate.StructCtx(ctx, m); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "schedule must reference a task", err)
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return cerr.WrapDBWriteError("schedule", err)
	}
	s.ID = m.ID
	return nil
}

func (r *GormRepository) Latest(ctx context.Context, taskID int64) (*schedule.Schedule, error) {
	var m scheduleModel
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("generated_at DESC").
		Order("id DESC").
		First(&m).Error
	if err != nil {
		return nil, cerr.WrapDBReadError("schedule", err)
	}
	return m.toEntity(), nil
}

func (r *GormRepository) ListByTask(ctx context.Context, taskID int64) ([]*schedule.Schedule, error) {
	var models []scheduleModel
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("generated_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, cerr.WrapDBReadError("schedules", err)
	}
	schedules := make([]*schedule.Schedule, 0, len(models))
	for i := range models {
		schedules = append(schedules, models[i].toEntity())
	}
	return schedules, nil
}
