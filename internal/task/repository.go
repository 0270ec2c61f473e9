package task

import "context"

type Repository interface {
	// Create assigns t.ID and t.CreatedAt. A task without subject or
	// deadline is rejected with an InvalidArgument error.
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id int64) (*Task, error)
	// ListActive returns incomplete tasks ordered by deadline.
	ListActive(ctx context.Context) ([]*Task, error)
	// Complete marks the task completed. It reports false when no task has
	// the given id; completing an already completed task reports true.
	Complete(ctx context.Context, id int64) (bool, error)
}
