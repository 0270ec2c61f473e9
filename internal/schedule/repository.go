package schedule

import "context"

type Repository interface {
	Create(ctx context.Context, s *Schedule) error
	// Latest returns the most recently generated schedule of a task, or a
	// NotFound error when none exists.
	Latest(ctx context.Context, taskID int64) (*Schedule, error)
	ListByTask(ctx context.Context, taskID int64) ([]*Schedule, error)
}
