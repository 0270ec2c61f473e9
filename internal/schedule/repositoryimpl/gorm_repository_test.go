package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/studyguild/internal/schedule"
	"github.com/kazz187/studyguild/internal/testutil/testdb"
	"github.com/kazz187/studyguild/pkg/cerr"
)

func newTestRepository(t *testing.T) *GormRepository {
	t.Helper()
	db := testdb.New(t)
	require.NoError(t, Migrate(context.Background(), db))
	return NewGormRepository(db)
}

func TestGormRepository_LatestNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Latest(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestGormRepository_AppendsSchedules(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first := &schedule.Schedule{TaskID: 1, Text: "plan v1", GeneratedAt: base}
	require.NoError(t, repo.Create(ctx, first))
	second := &schedule.Schedule{TaskID: 1, Text: "plan v2", GeneratedAt: base.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, second))
	other := &schedule.Schedule{TaskID: 2, Text: "other plan", GeneratedAt: base.Add(2 * time.Hour)}
	require.NoError(t, repo.Create(ctx, other))

	assert.NotEqual(t, first.ID, second.ID)

	latest, err := repo.Latest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "plan v2", latest.Text)
	assert.Equal(t, int64(1), latest.TaskID)

	all, err := repo.ListByTask(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "plan v1", all[0].Text)
	assert.Equal(t, "plan v2", all[1].Text)
}

func TestGormRepository_CreateSetsGeneratedAt(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	s := &schedule.Schedule{TaskID: 3, Text: "plan"}
	require.NoError(t, repo.Create(ctx, s))
	assert.False(t, s.GeneratedAt.IsZero())
	assert.Positive(t, s.ID)
}

func TestGormRepository_CreateRejectsMissingTask(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.Create(context.Background(), &schedule.Schedule{Text: "orphan"})
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}
