package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amultiwary/TaskApp/internal/apperrors"
	"github.com/amultiwary/TaskApp/internal/models"
)

// fakeClock は呼ばれるたびに指定の時刻を順に返します。
type fakeClock struct {
	times []time.Time
	i     int
}

func (c *fakeClock) Now() time.Time {
	t := c.times[c.i]
	if c.i < len(c.times)-1 {
		c.i++
	}
	return t
}

func registerUser(t *testing.T, s testServices, email string) *models.User {
	t.Helper()
	resp, err := s.auth.Register(context.Background(), models.RegisterRequest{Name: "User", Email: email, Password: "secret1"})
	require.NoError(t, err)
	return resp.User
}

func strPtr(s string) *string { return &s }

func TestTaskService_CreateTask_Defaults(t *testing.T) {
	s := newTestServices(t)
	owner := registerUser(t, s, "owner@x.com")

	task, err := s.tasks.CreateTask(context.Background(), owner.ID, models.CreateTaskRequest{Title: "  Write report  "})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, owner.ID, task.UserID)
	assert.Equal(t, "Write report", task.Title)
	assert.Equal(t, "", task.Description)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Nil(t, task.DueDate)
	assert.Nil(t, task.CompletedAt)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
}

func TestTaskService_CreateTask_Validation(t *testing.T) {
	s := newTestServices(t)
	owner := registerUser(t, s, "owner@x.com")

	tests := []struct {
		name string
		req  models.CreateTaskRequest
	}{
		{"empty title", models.CreateTaskRequest{Title: ""}},
		{"whitespace title", models.CreateTaskRequest{Title: "   "}},
		{"long title", models.CreateTaskRequest{Title: strings.Repeat("a", models.TitleMaxLen+1)}},
		{"long description", models.CreateTaskRequest{Title: "ok", Description: strings.Repeat("d", models.DescriptionMaxLen+1)}},
		{"bad priority", models.CreateTaskRequest{Title: "ok", Priority: "urgent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.tasks.CreateTask(context.Background(), owner.ID, tt.req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}

	// 120文字ちょうど (マルチバイト) は許可
	task, err := s.tasks.CreateTask(context.Background(), owner.ID, models.CreateTaskRequest{Title: strings.Repeat("あ", models.TitleMaxLen)})
	require.NoError(t, err)
	assert.Equal(t, models.TitleMaxLen, len([]rune(task.Title)))
}

func TestTaskService_ToggleStatus_CompletedAtInvariant(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	owner := registerUser(t, s, "owner@x.com")

	task, err := s.tasks.CreateTask(ctx, owner.ID, models.CreateTaskRequest{Title: "Write report"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		task, err = s.tasks.ToggleStatus(ctx, owner.ID, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, task.Status)
		assert.NotNil(t, task.CompletedAt)

		stored, err := s.tasks.GetTaskByID(ctx, owner.ID, task.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.CompletedAt)

		task, err = s.tasks.ToggleStatus(ctx, owner.ID, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, task.Status)
		assert.Nil(t, task.CompletedAt)

		stored, err = s.tasks.GetTaskByID(ctx, owner.ID, task.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.CompletedAt)
	}
}

func TestTaskService_Ownership(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	alice := registerUser(t, s, "alice@x.com")
	bob := registerUser(t, s, "bob@x.com")

	task, err := s.tasks.CreateTask(ctx, alice.ID, models.CreateTaskRequest{Title: "alice's"})
	require.NoError(t, err)

	_, err = s.tasks.GetTaskByID(ctx, bob.ID, task.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = s.tasks.UpdateTask(ctx, bob.ID, task.ID, models.UpdateTaskRequest{Title: strPtr("mine now")})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = s.tasks.ToggleStatus(ctx, bob.ID, task.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.ErrorIs(t, s.tasks.DeleteTask(ctx, bob.ID, task.ID), apperrors.ErrForbidden)

	// 存在しないIDは NotFound
	_, err = s.tasks.GetTaskByID(ctx, bob.ID, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	unchanged, err := s.tasks.GetTaskByID(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice's", unchanged.Title)
	assert.Equal(t, models.StatusPending, unchanged.Status)
}

func TestTaskService_GetTasks_Filter(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	owner := registerUser(t, s, "owner@x.com")
	other := registerUser(t, s, "other@x.com")

	clock := &fakeClock{times: []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 3, 0, time.UTC),
	}}
	s.tasks.WithClock(clock.Now)

	first, err := s.tasks.CreateTask(ctx, owner.ID, models.CreateTaskRequest{Title: "first"})
	require.NoError(t, err)
	_, err = s.tasks.CreateTask(ctx, owner.ID, models.CreateTaskRequest{Title: "second"})
	require.NoError(t, err)
	_, err = s.tasks.CreateTask(ctx, other.ID, models.CreateTaskRequest{Title: "not mine"})
	require.NoError(t, err)
	_, err = s.tasks.ToggleStatus(ctx, owner.ID, first.ID)
	require.NoError(t, err)

	all, err := s.tasks.GetTasks(ctx, owner.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Title, "newest first")

	completed, err := s.tasks.GetTasks(ctx, owner.ID, models.ParseStatusFilter("completed"))
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "first", completed[0].Title)

	pending, err := s.tasks.GetTasks(ctx, owner.ID, models.ParseStatusFilter("pending"))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "second", pending[0].Title)

	unknown, err := s.tasks.GetTasks(ctx, owner.ID, models.ParseStatusFilter("archived"))
	require.NoError(t, err)
	assert.Len(t, unknown, 2)
}

func TestTaskService_UpdateTask_Partial(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	owner := registerUser(t, s, "owner@x.com")

	due := models.NewDate(2026, time.June, 1)
	task, err := s.tasks.CreateTask(ctx, owner.ID, models.CreateTaskRequest{
		Title:    "Write report",
		Priority: models.PriorityHigh,
		DueDate:  &due,
	})
	require.NoError(t, err)

	updated, err := s.tasks.UpdateTask(ctx, owner.ID, task.ID, models.UpdateTaskRequest{Description: strPtr("x")})
	require.NoError(t, err)
	assert.Equal(t, "x", updated.Description)
	assert.Equal(t, "Write report", updated.Title)
	assert.Equal(t, models.PriorityHigh, updated.Priority)
	assert.Equal(t, models.StatusPending, updated.Status)
	require.NotNil(t, updated.DueDate)
	assert.Equal(t, "2026-06-01", updated.DueDate.String())

	cleared, err := s.tasks.UpdateTask(ctx, owner.ID, task.ID, models.UpdateTaskRequest{
		DueDate: models.OptionalDate{Set: true},
	})
	require.NoError(t, err)
	assert.Nil(t, cleared.DueDate)

	stored, err := s.tasks.GetTaskByID(ctx, owner.ID, task.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.DueDate)
	assert.Equal(t, "x", stored.Description)

	_, err = s.tasks.UpdateTask(ctx, owner.ID, task.ID, models.UpdateTaskRequest{Title: strPtr("  ")})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestTaskService_UpdateTask_EmptyPatchIsNoop(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	owner := registerUser(t, s, "owner@x.com")

	task, err := s.tasks.CreateTask(ctx, owner.ID, models.CreateTaskRequest{Title: "same"})
	require.NoError(t, err)

	got, err := s.tasks.UpdateTask(ctx, owner.ID, task.ID, models.UpdateTaskRequest{})
	require.NoError(t, err)
	assert.True(t, task.UpdatedAt.Equal(got.UpdatedAt))
}

func TestTaskService_UpdatedAtNeverMovesBackwards(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	owner := registerUser(t, s, "owner@x.com")

	later := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)
	clock := &fakeClock{times: []time.Time{later, earlier}}
	s.tasks.WithClock(clock.Now)

	task, err := s.tasks.CreateTask(ctx, owner.ID, models.CreateTaskRequest{Title: "clock skew"})
	require.NoError(t, err)

	updated, err := s.tasks.UpdateTask(ctx, owner.ID, task.ID, models.UpdateTaskRequest{Title: strPtr("renamed")})
	require.NoError(t, err)
	assert.True(t, later.Equal(updated.UpdatedAt))
}

func TestTaskService_DeleteTask(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	owner := registerUser(t, s, "owner@x.com")

	task, err := s.tasks.CreateTask(ctx, owner.ID, models.CreateTaskRequest{Title: "bye"})
	require.NoError(t, err)

	require.NoError(t, s.tasks.DeleteTask(ctx, owner.ID, task.ID))
	_, err = s.tasks.GetTaskByID(ctx, owner.ID, task.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.tasks.DeleteTask(ctx, owner.ID, task.ID), apperrors.ErrNotFound)
}
