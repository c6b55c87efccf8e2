package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amultiwary/TaskApp/internal/models"
)

// ErrTaskNotFound はタスクが見つからない場合のエラーです。
var ErrTaskNotFound = errors.New("task not found")

// TaskRepository はタスクの永続化を表します。
// 一覧と件数は所有者で絞り込み、単体操作はIDで行います (所有者チェックはサービス側)。
type TaskRepository interface {
	Create(ctx context.Context, t *models.Task) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	ListByOwner(ctx context.Context, ownerID string, status *models.TaskStatus) ([]*models.Task, error)
	CountByOwner(ctx context.Context, ownerID string, status *models.TaskStatus) (int64, error)
	Update(ctx context.Context, t *models.Task) error
	Delete(ctx context.Context, id string) error
}

// MySQLTaskRepository は MySQL を使う TaskRepository です。
type MySQLTaskRepository struct {
	DB *sql.DB
}

// NewMySQLTaskRepository は新しいMySQLTaskRepositoryインスタンスを作成します。
func NewMySQLTaskRepository(db *sql.DB) *MySQLTaskRepository {
	return &MySQLTaskRepository{DB: db}
}

const taskColumns = "id, user_id, title, description, status, priority, due_date, completed_at, created_at, updated_at"

// Create は新しいタスクをデータベースに挿入します。
func (r *MySQLTaskRepository) Create(ctx context.Context, t *models.Task) error {
	query := "INSERT INTO tasks (" + taskColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := r.DB.ExecContext(ctx, query,
		t.ID, t.UserID, t.Title, t.Description, t.Status, t.Priority,
		nullableDate(t.DueDate), t.CompletedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		slog.Error("Failed to insert task", "error", err)
		return fmt.Errorf("could not insert task: %w", err)
	}
	return nil
}

// FindByID は指定されたIDのタスクを取得します。
func (r *MySQLTaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		slog.Error("Failed to query task by ID", "error", err)
		return nil, fmt.Errorf("could not query task: %w", err)
	}
	return t, nil
}

// ListByOwner はユーザーのタスクを作成日時の新しい順に取得します。
func (r *MySQLTaskRepository) ListByOwner(ctx context.Context, ownerID string, status *models.TaskStatus) ([]*models.Task, error) {
	where, args := ownerClause(ownerID, status)
	query := "SELECT " + taskColumns + " FROM tasks WHERE " + where + " ORDER BY created_at DESC, id DESC"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("Failed to query tasks", "error", err)
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// CountByOwner はユーザーのタスク数を数えます。
func (r *MySQLTaskRepository) CountByOwner(ctx context.Context, ownerID string, status *models.TaskStatus) (int64, error) {
	where, args := ownerClause(ownerID, status)
	var n int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("could not count tasks: %w", err)
	}
	return n, nil
}

// Update はタスクの可変フィールドを保存します。所有者と作成日時は変更しません。
func (r *MySQLTaskRepository) Update(ctx context.Context, t *models.Task) error {
	query := `UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?,
		due_date = ?, completed_at = ?, updated_at = ? WHERE id = ?`
	result, err := r.DB.ExecContext(ctx, query,
		t.Title, t.Description, t.Status, t.Priority,
		nullableDate(t.DueDate), t.CompletedAt, t.UpdatedAt, t.ID,
	)
	if err != nil {
		slog.Error("Failed to update task", "error", err)
		return fmt.Errorf("could not update task: %w", err)
	}

	// MySQLは値が変わらない行を0件と数えるため、存在確認は行数ではなく再検索で行います。
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.FindByID(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete は指定されたIDのタスクを削除します。
func (r *MySQLTaskRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		slog.Error("Failed to delete task", "error", err)
		return fmt.Errorf("could not delete task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t           models.Task
		dueDate     sql.Null[models.Date]
		completedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&dueDate, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		d := dueDate.V
		t.DueDate = &d
	}
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	return &t, nil
}

func ownerClause(ownerID string, status *models.TaskStatus) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{ownerID}
	if status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*status))
	}
	return strings.Join(clauses, " AND "), args
}

func nullableDate(d *models.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}
