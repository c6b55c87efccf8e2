package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/amultiwary/TaskApp/internal/models"
)

// GormTaskRepository は gorm (SQLite) を使う TaskRepository です。
type GormTaskRepository struct {
	db *gorm.DB
}

func NewGormTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

func (r *GormTaskRepository) Create(ctx context.Context, t *models.Task) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *GormTaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	var t models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *GormTaskRepository) scoped(ctx context.Context, ownerID string, status *models.TaskStatus) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Task{}).Where("user_id = ?", ownerID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	return q
}

func (r *GormTaskRepository) ListByOwner(ctx context.Context, ownerID string, status *models.TaskStatus) ([]*models.Task, error) {
	tasks := make([]*models.Task, 0)
	err := r.scoped(ctx, ownerID, status).Order("created_at desc").Order("id desc").Find(&tasks).Error
	return tasks, err
}

func (r *GormTaskRepository) CountByOwner(ctx context.Context, ownerID string, status *models.TaskStatus) (int64, error) {
	var n int64
	err := r.scoped(ctx, ownerID, status).Count(&n).Error
	return n, err
}

func (r *GormTaskRepository) Update(ctx context.Context, t *models.Task) error {
	res := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", t.ID).
		Updates(map[string]any{
			"title":        t.Title,
			"description":  t.Description,
			"status":       t.Status,
			"priority":     t.Priority,
			"due_date":     t.DueDate,
			"completed_at": t.CompletedAt,
			"updated_at":   t.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *GormTaskRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
