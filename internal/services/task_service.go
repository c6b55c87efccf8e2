package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/amultiwary/TaskApp/internal/apperrors"
	"github.com/amultiwary/TaskApp/internal/models"
	"github.com/amultiwary/TaskApp/internal/repositories"
)

const (
	taskNotFound  = "Task not found"
	taskForbidden = "You do not own this task"
)

// TaskService はタスク関連のビジネスロジックを扱います。
// 単体のタスクに対する操作はすべて loadOwned を通して所有者を確認します。
type TaskService struct {
	taskRepo repositories.TaskRepository
	now      func() time.Time
}

// NewTaskService は新しいTaskServiceを作成します。
func NewTaskService(taskRepo repositories.TaskRepository) *TaskService {
	return &TaskService{taskRepo: taskRepo, now: utcNow}
}

// WithClock は時刻の取得元を差し替えます (テスト用)。
func (s *TaskService) WithClock(now func() time.Time) *TaskService {
	s.now = now
	return s
}

// CreateTask は新しいタスクを pending で作成します。
func (s *TaskService) CreateTask(ctx context.Context, ownerID string, req models.CreateTaskRequest) (*models.Task, error) {
	title, err := validateTitle(req.Title)
	if err != nil {
		return nil, err
	}
	description, err := validateDescription(req.Description)
	if err != nil {
		return nil, err
	}
	priority := models.PriorityMedium
	if req.Priority != "" {
		if !req.Priority.Valid() {
			return nil, invalidPriority()
		}
		priority = req.Priority
	}

	now := s.now()
	task := &models.Task{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Title:       title,
		Description: description,
		Status:      models.StatusPending,
		Priority:    priority,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	return task, nil
}

// GetTasks はユーザーのタスクを新しい順に返します。status が nil なら絞り込みません。
func (s *TaskService) GetTasks(ctx context.Context, ownerID string, status *models.TaskStatus) ([]*models.Task, error) {
	tasks, err := s.taskRepo.ListByOwner(ctx, ownerID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// GetTaskByID は指定IDのタスクを取得し、認可チェックを行います。
func (s *TaskService) GetTaskByID(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	return s.loadOwned(ctx, ownerID, taskID)
}

// UpdateTask はパッチに含まれるフィールドだけを更新します。status はここでは変更できません。
func (s *TaskService) UpdateTask(ctx context.Context, ownerID, taskID string, req models.UpdateTaskRequest) (*models.Task, error) {
	task, err := s.loadOwned(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	if req.Empty() {
		return task, nil
	}

	if req.Title != nil {
		title, err := validateTitle(*req.Title)
		if err != nil {
			return nil, err
		}
		task.Title = title
	}
	if req.Description != nil {
		description, err := validateDescription(*req.Description)
		if err != nil {
			return nil, err
		}
		task.Description = description
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, invalidPriority()
		}
		task.Priority = *req.Priority
	}
	if req.DueDate.Set {
		task.DueDate = req.DueDate.Value
	}

	if err := s.save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ToggleStatus は pending と completed を切り替えます。
// completedAt を変更するのはこの経路だけです。
func (s *TaskService) ToggleStatus(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	task, err := s.loadOwned(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status == models.StatusCompleted {
		task.Status = models.StatusPending
		task.CompletedAt = nil
	} else {
		completedAt := s.now()
		task.Status = models.StatusCompleted
		task.CompletedAt = &completedAt
	}

	if err := s.save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask はタスクを削除し、認可チェックを行います。
func (s *TaskService) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if _, err := s.loadOwned(ctx, ownerID, taskID); err != nil {
		return err
	}
	if err := s.taskRepo.Delete(ctx, taskID); err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			return apperrors.NotFound(taskNotFound)
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// loadOwned は存在確認 (NotFound) の後に所有者確認 (Forbidden) を行います。
func (s *TaskService) loadOwned(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			return nil, apperrors.NotFound(taskNotFound)
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task.UserID != ownerID {
		return nil, apperrors.Forbidden(taskForbidden)
	}
	return task, nil
}

func (s *TaskService) save(ctx context.Context, task *models.Task) error {
	// updatedAt は時計が戻っても減らさない
	if now := s.now(); now.After(task.UpdatedAt) {
		task.UpdatedAt = now
	}
	if err := s.taskRepo.Update(ctx, task); err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			return apperrors.NotFound(taskNotFound)
		}
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

func validateTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" || utf8.RuneCountInString(title) > models.TitleMaxLen {
		return "", apperrors.Validation(fmt.Sprintf("title must be 1-%d characters", models.TitleMaxLen))
	}
	return title, nil
}

func validateDescription(raw string) (string, error) {
	description := strings.TrimSpace(raw)
	if utf8.RuneCountInString(description) > models.DescriptionMaxLen {
		return "", apperrors.Validation(fmt.Sprintf("description must be at most %d characters", models.DescriptionMaxLen))
	}
	return description, nil
}

func invalidPriority() error {
	return apperrors.Validation("priority must be one of low, medium, high")
}
