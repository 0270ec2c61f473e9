// Package testutil wires real repositories over an in-memory database.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kazz187/studyguild/internal/schedule"
	schedulerepo "github.com/kazz187/studyguild/internal/schedule/repositoryimpl"
	"github.com/kazz187/studyguild/internal/task"
	taskrepo "github.com/kazz187/studyguild/internal/task/repositoryimpl"
	"github.com/kazz187/studyguild/internal/testutil/testdb"
)

type Store struct {
	Tasks     *taskrepo.GormRepository
	Schedules *schedulerepo.GormRepository
}

func NewStore(t testing.TB) *Store {
	t.Helper()
	db := testdb.New(t)
	ctx := context.Background()
	require.NoError(t, taskrepo.Migrate(ctx, db))
	require.NoError(t, schedulerepo.Migrate(ctx, db))
	return &Store{
		Tasks:     taskrepo.NewGormRepository(db),
		Schedules: schedulerepo.NewGormRepository(db),
	}
}

// AddTask stores a task due after the given delay and returns it.
func (s *Store) AddTask(t testing.TB, subject string, due time.Duration) *task.Task {
	t.Helper()
	tk := &task.Task{
		Subject:  subject,
		TaskType: "Assignment",
		Deadline: time.Now().Add(due),
		Priority: task.PriorityMedium,
	}
	require.NoError(t, s.Tasks.Create(context.Background(), tk))
	return tk
}

func (s *Store) AddSchedule(t testing.TB, taskID int64, text string) *schedule.Schedule {
	t.Helper()
	sch := &schedule.Schedule{TaskID: taskID, Text: text}
	require.NoError(t, s.Schedules.Create(context.Background(), sch))
	return sch
}
