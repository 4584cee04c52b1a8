// Package task はタスクのライフサイクル（作成・参照・更新・削除・担当タスク一覧）を提供する。
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/project"
	"github.com/hitoshi/projecify/internal/repository"
	"github.com/hitoshi/projecify/internal/security"
)

// ProjectAuthorizer は呼び出し元のプロジェクトに対する実効ロールを解決する。
type ProjectAuthorizer interface {
	Access(ctx context.Context, projectID, userID string) (*project.Access, error)
}

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Title        string
	Description  *string
	Status       string
	Priority     string
	DueDate      *time.Time
	AssignedToID *string
}

// UpdateInput はタスク更新の入力。未指定のフィールドは変更しない。
type UpdateInput struct {
	Title        model.Optional[string]
	Description  model.Optional[string]
	Status       model.Optional[string]
	Priority     model.Optional[string]
	DueDate      model.Optional[time.Time]
	AssignedToID model.Optional[string]
}

// Service はタスクに関するビジネスロジックを提供する。
type Service struct {
	taskRepo   repository.TaskRepository
	authorizer ProjectAuthorizer
	sanitizer  security.TextSanitizer
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(taskRepo repository.TaskRepository, authorizer ProjectAuthorizer, sanitizer security.TextSanitizer) *Service {
	return &Service{
		taskRepo:   taskRepo,
		authorizer: authorizer,
		sanitizer:  sanitizer,
		now:        time.Now,
	}
}

// projectAccess はプロジェクト単位の操作の権限を検証する。
// プロジェクトが存在しない場合と参加していない場合は区別しない。
func (s *Service) projectAccess(ctx context.Context, projectID, userID string) (*project.Access, error) {
	a, err := s.authorizer.Access(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if !a.Can(model.CapViewProject) {
		return nil, model.NewProjectNotFoundOrUnauthorizedError()
	}
	return a, nil
}

// taskAccess はタスクを取得し、所属プロジェクトでの権限を検証する。
func (s *Service) taskAccess(ctx context.Context, projectID, taskID, userID string, c model.Capability) (*model.Task, error) {
	t, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if t == nil || t.ProjectID != projectID {
		return nil, model.NewNotFoundError("Task")
	}

	a, err := s.authorizer.Access(ctx, t.ProjectID, userID)
	if err != nil {
		return nil, err
	}
	if !a.Can(c) {
		return nil, model.NewUnauthorizedError()
	}
	return t, nil
}

// List はプロジェクトのタスク一覧を返す。
func (s *Service) List(ctx context.Context, projectID, userID string) ([]*model.Task, error) {
	if _, err := s.projectAccess(ctx, projectID, userID); err != nil {
		return nil, err
	}

	tasks, err := s.taskRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Create はタスクを作成する。タイトルの検証はDBアクセスより前に行う。
func (s *Service) Create(ctx context.Context, projectID, userID string, in CreateInput) (*model.Task, error) {
	title := s.sanitizer.SanitizeText(in.Title)
	if title == "" {
		return nil, model.NewValidationError("Title is required")
	}

	status := model.TaskStatusTodo
	if in.Status != "" {
		st, ok := model.ParseTaskStatus(in.Status)
		if !ok {
			return nil, model.NewValidationError("Invalid status")
		}
		status = st
	}
	priority := model.PriorityMedium
	if in.Priority != "" {
		p, ok := model.ParsePriority(in.Priority)
		if !ok {
			return nil, model.NewValidationError("Invalid priority")
		}
		priority = p
	}

	if _, err := s.projectAccess(ctx, projectID, userID); err != nil {
		return nil, err
	}

	now := s.now()
	t := &model.Task{
		ID:           uuid.New().String(),
		Title:        title,
		Description:  s.sanitizeOptional(in.Description),
		Status:       status,
		Priority:     priority,
		DueDate:      in.DueDate,
		ProjectID:    projectID,
		AssignedToID: emptyToNil(in.AssignedToID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.taskRepo.Create(ctx, t); err != nil {
		return nil, mapWriteError("create", err)
	}

	slog.Info("task created",
		slog.String("task_id", t.ID),
		slog.String("project_id", projectID),
		slog.String("user_id", userID),
	)
	return s.reload(ctx, t)
}

// Get はタスクを返す。
func (s *Service) Get(ctx context.Context, projectID, taskID, userID string) (*model.Task, error) {
	return s.taskAccess(ctx, projectID, taskID, userID, model.CapViewProject)
}

// Update はタスクを更新する。プロジェクトの全メンバーが実行できる。
// replaceがtrue（PUT）の場合、dueDateの未指定は期日のクリアとして扱う。
func (s *Service) Update(ctx context.Context, projectID, taskID, userID string, in UpdateInput, replace bool) (*model.Task, error) {
	if in.Title.Set {
		if in.Title.Null || s.sanitizer.SanitizeText(in.Title.Value) == "" {
			return nil, model.NewValidationError("Title is required")
		}
	}

	t, err := s.taskAccess(ctx, projectID, taskID, userID, model.CapEditTask)
	if err != nil {
		return nil, err
	}

	if in.Title.Set {
		t.Title = s.sanitizer.SanitizeText(in.Title.Value)
	}
	if in.Description.Set {
		t.Description = s.sanitizeOptional(in.Description.Ptr())
	}
	if in.Status.Set {
		st, ok := model.ParseTaskStatus(in.Status.Value)
		if in.Status.Null || !ok {
			return nil, model.NewValidationError("Invalid status")
		}
		t.Status = st
	}
	if in.Priority.Set {
		p, ok := model.ParsePriority(in.Priority.Value)
		if in.Priority.Null || !ok {
			return nil, model.NewValidationError("Invalid priority")
		}
		t.Priority = p
	}
	switch {
	case in.DueDate.Set:
		t.DueDate = in.DueDate.Ptr()
	case replace:
		t.DueDate = nil
	}
	if in.AssignedToID.Set {
		t.AssignedToID = emptyToNil(in.AssignedToID.Ptr())
	}
	t.UpdatedAt = s.now()

	if err := s.taskRepo.Update(ctx, t); err != nil {
		return nil, mapWriteError("update", err)
	}

	slog.Info("task updated", slog.String("task_id", t.ID), slog.String("user_id", userID))
	return s.reload(ctx, t)
}

// Delete はタスクを削除する。OWNER/ADMINのみ実行できる。
func (s *Service) Delete(ctx context.Context, projectID, taskID, userID string) error {
	if _, err := s.taskAccess(ctx, projectID, taskID, userID, model.CapDeleteTask); err != nil {
		return err
	}

	if err := s.taskRepo.Delete(ctx, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("Task")
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	slog.Info("task deleted", slog.String("task_id", taskID), slog.String("user_id", userID))
	return nil
}

// ListAssigned はユーザーが担当するタスクをプロジェクト横断で返す。本人のみ参照できる。
func (s *Service) ListAssigned(ctx context.Context, targetUserID, userID string) ([]*model.Task, error) {
	if targetUserID != userID {
		return nil, model.NewUnauthorizedError()
	}

	tasks, err := s.taskRepo.ListByAssignee(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned tasks: %w", err)
	}
	return tasks, nil
}

// reload は書き込み後に担当者情報付きのタスクを取得し直す。
func (s *Service) reload(ctx context.Context, t *model.Task) (*model.Task, error) {
	loaded, err := s.taskRepo.FindByID(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload task: %w", err)
	}
	if loaded == nil {
		return t, nil
	}
	return loaded, nil
}

// mapWriteError は担当者の外部キー違反を入力エラーに変換する。
func mapWriteError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrForeignKey):
		return model.NewValidationError("Assignee not found")
	case errors.Is(err, repository.ErrNotFound):
		return model.NewNotFoundError("Task")
	}
	return fmt.Errorf("failed to %s task: %w", op, err)
}

func (s *Service) sanitizeOptional(raw *string) *string {
	if raw == nil {
		return nil
	}
	v := s.sanitizer.SanitizeText(*raw)
	if v == "" {
		return nil
	}
	return &v
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
