// Package modelsはTaskとUserを定義します。
package models

import (
	"encoding/json"
	"time"
)

// TaskStatus はタスクの状態です。
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

// Valid は既知の状態かどうかを返します。
func (s TaskStatus) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// ParseStatusFilter はクエリの status を解釈します。
// pending / completed 以外は nil (フィルタなし) として扱います。
func ParseStatusFilter(raw string) *TaskStatus {
	s := TaskStatus(raw)
	if !s.Valid() {
		return nil
	}
	return &s
}

// TaskPriority はタスクの優先度です。
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

const (
	TitleMaxLen       = 120
	DescriptionMaxLen = 1000
)

type Task struct {
	ID          string       `json:"id" gorm:"primaryKey;size:36"`
	UserID      string       `json:"userId" gorm:"size:36;not null;index:idx_tasks_user_created,priority:1"` // 所有者 (作成後は変更不可)
	Title       string       `json:"title" gorm:"size:120;not null"`
	Description string       `json:"description" gorm:"size:1000;not null"`
	Status      TaskStatus   `json:"status" gorm:"type:varchar(16);not null;index"`
	Priority    TaskPriority `json:"priority" gorm:"type:varchar(16);not null"`
	DueDate     *Date        `json:"dueDate"`
	CompletedAt *time.Time   `json:"completedAt"` // status == completed のときだけ非nil
	CreatedAt   time.Time    `json:"createdAt" gorm:"autoCreateTime:false;index:idx_tasks_user_created,priority:2"`
	UpdatedAt   time.Time    `json:"updatedAt" gorm:"autoUpdateTime:false"`
}

// CreateTaskRequest はタスク作成リクエストです。
type CreateTaskRequest struct {
	Title       string       `json:"title" binding:"required,max=120"`
	Description string       `json:"description" binding:"max=1000"`
	Priority    TaskPriority `json:"priority" binding:"omitempty,oneof=low medium high"`
	DueDate     *Date        `json:"dueDate"`
}

// UpdateTaskRequest はタスクの部分更新リクエストです。
// nil のフィールドは変更しません。status はこの経路では変更できません。
type UpdateTaskRequest struct {
	Title       *string       `json:"title,omitempty" binding:"omitempty,max=120"`
	Description *string       `json:"description,omitempty" binding:"omitempty,max=1000"`
	Priority    *TaskPriority `json:"priority,omitempty" binding:"omitempty,oneof=low medium high"`
	DueDate     OptionalDate  `json:"dueDate"`
}

// Empty はパッチに何も含まれていないかを返します。
func (r *UpdateTaskRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.Priority == nil && !r.DueDate.Set
}

// MarshalJSON は指定されたフィールドだけを書き出します (クライアント用)。
func (r UpdateTaskRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 4)
	if r.Title != nil {
		body["title"] = *r.Title
	}
	if r.Description != nil {
		body["description"] = *r.Description
	}
	if r.Priority != nil {
		body["priority"] = *r.Priority
	}
	if r.DueDate.Set {
		body["dueDate"] = r.DueDate
	}
	return json.Marshal(body)
}

// TaskStats はユーザーごとの集計です。
type TaskStats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Pending   int64 `json:"pending"`
}

// DeleteResponse は削除の確認応答です。
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}
