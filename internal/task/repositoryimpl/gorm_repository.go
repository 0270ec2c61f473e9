package repositoryimpl

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/kazz187/studyguild/internal/task"
	"github.com/kazz187/studyguild/pkg/cerr"
)

type taskModel struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	Subject            string `gorm:"not null" validate:"required"`
	TaskType           string
	DescriptionSnippet string
	Deadline           time.Time `gorm:"not null;index" validate:"required"`
	Priority           string    `gorm:"not null;default:Medium" validate:"oneof=High Medium Low"`
	LengthDescriptor   string
	Completed          bool      `gorm:"not null;default:false;index"`
	CreatedAt          time.Time `gorm:"not null"`
}

func (taskModel) TableName() string {
	return "tasks"
}

func toModel(t *task.Task) *taskModel {
	return &taskModel{
		ID:                 t.ID,
		Subject:            t.Subject,
		TaskType:           t.TaskType,
		DescriptionSnippet: t.DescriptionSnippet,
		Deadline:           t.Deadline,
		Priority:           string(t.Priority),
		LengthDescriptor:   t.LengthDescriptor,
		Completed:          t.Completed,
		CreatedAt:          t.CreatedAt,
	}
}

func (m *taskModel) toEntity() *task.Task {
	return &task.Task{
		ID:                 m.ID,
		Subject:            m.Subject,
		TaskType:           m.TaskType,
		DescriptionSnippet: m.DescriptionSnippet,
		Deadline:           m.Deadline,
		Priority:           task.Priority(m.Priority),
		LengthDescriptor:   m.LengthDescriptor,
		Completed:          m.Completed,
		CreatedAt:          m.CreatedAt,
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

// Migrate creates or updates the tasks table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&taskModel{}); err != nil {
		return fmt.Errorf("failed to migrate tasks: %w", err)
	}
	return nil
}

func (r *GormRepository) Create(ctx context.Context, t *task.Task) error {
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	m := toModel(t)
	m.ID = 0
	if err := r.validate.StructCtx(ctx, m); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "task is missing required fields", err)
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return cerr.WrapDBWriteError("task", err)
	}
	t.ID = m.ID
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id int64) (*task.Task, error) {
	var m taskModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, cerr.WrapDBReadError("task", err)
	}
	return m.toEntity(), nil
}

func (r *GormRepository) ListActive(ctx context.Context) ([]*task.Task, error) {
	var models []taskModel
	err := r.db.WithContext(ctx).
		Where("completed = ?", false).
		Order("deadline ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, cerr.WrapDBReadError("tasks", err)
	}
	tasks := make([]*task.Task, 0, len(models))
	for i := range models {
		tasks = append(tasks, models[i].toEntity())
	}
	return tasks, nil
}

func (r *GormRepository) Complete(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&taskModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		found = true
		return tx.Model(&taskModel{}).Where("id = ?", id).Update("completed", true).Error
	})
	if err != nil {
		return false, cerr.WrapDBWriteError("task", err)
	}
	return found, nil
}
