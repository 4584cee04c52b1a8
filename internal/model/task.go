package model

import "time"

// TaskStatus はタスクの状態。
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusInReview   TaskStatus = "IN_REVIEW"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
)

// ParseTaskStatus は文字列をTaskStatusに変換する。
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch st := TaskStatus(s); st {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusInReview, TaskStatusCompleted:
		return st, true
	}
	return "", false
}

// Priority はタスクの優先度。
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// ParsePriority は文字列をPriorityに変換する。
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, true
	}
	return "", false
}

// Task はプロジェクトに属するタスクを表す。
type Task struct {
	ID           string
	Title        string
	Description  *string
	Status       TaskStatus
	Priority     Priority
	DueDate      *time.Time
	ProjectID    string
	AssignedToID *string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// AssignedTo / Project は一覧取得時にJOINで埋められる。
	AssignedTo *UserSummary
	Project    *ProjectSummary
}
