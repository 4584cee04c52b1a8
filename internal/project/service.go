// Package project はプロジェクトのCRUDとメンバー管理のビジネスロジックを提供する。
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/repository"
	"github.com/hitoshi/projecify/internal/security"
)

// Access は呼び出し元ユーザーのプロジェクトに対する実効ロール。
// Roleが空の場合はアクセス権がない。
type Access struct {
	Project *model.Project
	Role    model.Role
}

// Can は実効ロールが指定操作を許可されているかを返す。
func (a *Access) Can(c model.Capability) bool {
	return a != nil && a.Role.Can(c)
}

// IsOwner は呼び出し元がプロジェクトのオーナーかを返す。
func (a *Access) IsOwner() bool {
	return a != nil && a.Role == model.RoleOwner
}

// CreateInput はプロジェクト作成の入力。
type CreateInput struct {
	Name        string
	Description *string
	Status      string
	DueDate     *time.Time
}

// UpdateInput はプロジェクト更新の入力。未指定のフィールドは変更しない。
type UpdateInput struct {
	Name        model.Optional[string]
	Description model.Optional[string]
	Status      model.Optional[string]
	DueDate     model.Optional[time.Time]
}

// Service はプロジェクトに関するビジネスロジックを提供する。
type Service struct {
	projectRepo repository.ProjectRepository
	memberRepo  repository.MembershipRepository
	userRepo    repository.UserRepository
	taskRepo    repository.TaskRepository
	sanitizer   security.TextSanitizer
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	projectRepo repository.ProjectRepository,
	memberRepo repository.MembershipRepository,
	userRepo repository.UserRepository,
	taskRepo repository.TaskRepository,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		projectRepo: projectRepo,
		memberRepo:  memberRepo,
		userRepo:    userRepo,
		taskRepo:    taskRepo,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// Access はプロジェクトと呼び出し元の実効ロールを返す。
// プロジェクトが存在しない場合は(nil, nil)を返す。
// owner_idのユーザーはメンバーシップ行の内容に関わらずOWNERとして扱う。
func (s *Service) Access(ctx context.Context, projectID, userID string) (*Access, error) {
	p, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	if p == nil {
		return nil, nil
	}

	if p.OwnerID == userID {
		return &Access{Project: p, Role: model.RoleOwner}, nil
	}

	m, err := s.memberRepo.Find(ctx, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	a := &Access{Project: p}
	if m != nil {
		a.Role = m.Role
	}
	return a, nil
}

// require はプロジェクトの存在と呼び出し元の権限を検証する。
// プロジェクトがなければ404、権限がなければ401を返す。
func (s *Service) require(ctx context.Context, projectID, userID string, c model.Capability) (*Access, error) {
	a, err := s.Access(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, model.NewNotFoundError("Project")
	}
	if !a.Can(c) {
		return nil, model.NewUnauthorizedError()
	}
	return a, nil
}

// List はユーザーがオーナーまたはメンバーであるプロジェクト一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Project, error) {
	projects, err := s.projectRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Create はプロジェクトを作成し、作成者をOWNERとして登録する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Project, error) {
	name, err := s.validateName(in.Name)
	if err != nil {
		return nil, err
	}

	status := model.ProjectStatusNotStarted
	if in.Status != "" {
		st, ok := model.ParseProjectStatus(in.Status)
		if !ok {
			return nil, model.NewValidationError("Invalid status")
		}
		status = st
	}

	now := s.now()
	p := &model.Project{
		ID:          uuid.New().String(),
		Name:        name,
		Description: s.sanitizeOptional(in.Description),
		Status:      status,
		DueDate:     in.DueDate,
		OwnerID:     userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.projectRepo.CreateWithOwner(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	slog.Info("project created",
		slog.String("project_id", p.ID),
		slog.String("owner_id", userID),
	)
	return p, nil
}

// Get はプロジェクト詳細をオーナー・メンバー・タスク付きで返す。
func (s *Service) Get(ctx context.Context, projectID, userID string) (*model.ProjectDetail, error) {
	a, err := s.require(ctx, projectID, userID, model.CapViewProject)
	if err != nil {
		return nil, err
	}

	detail := &model.ProjectDetail{Project: a.Project}

	owner, err := s.userRepo.FindByID(ctx, a.Project.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}
	if owner != nil {
		summary := owner.Summary()
		detail.Owner = &summary
	}

	if detail.Members, err = s.memberRepo.ListByProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	if detail.Tasks, err = s.taskRepo.ListByProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return detail, nil
}

// Update はプロジェクトを更新する。OWNER/ADMINのみ実行できる。
// replaceがtrue（PUT）の場合、dueDateの未指定は期日のクリアとして扱う。
func (s *Service) Update(ctx context.Context, projectID, userID string, in UpdateInput, replace bool) (*model.Project, error) {
	a, err := s.require(ctx, projectID, userID, model.CapEditProject)
	if err != nil {
		return nil, err
	}

	p := *a.Project
	if in.Name.Set {
		if in.Name.Null {
			return nil, model.NewValidationError("Name is required")
		}
		if p.Name, err = s.validateName(in.Name.Value); err != nil {
			return nil, err
		}
	}
	if in.Description.Set {
		p.Description = s.sanitizeOptional(in.Description.Ptr())
	}
	if in.Status.Set {
		st, ok := model.ParseProjectStatus(in.Status.Value)
		if in.Status.Null || !ok {
			return nil, model.NewValidationError("Invalid status")
		}
		p.Status = st
	}
	switch {
	case in.DueDate.Set:
		p.DueDate = in.DueDate.Ptr()
	case replace:
		p.DueDate = nil
	}
	p.UpdatedAt = s.now()

	if err := s.projectRepo.Update(ctx, &p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("Project")
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	slog.Info("project updated", slog.String("project_id", p.ID), slog.String("user_id", userID))
	return &p, nil
}

// Delete はプロジェクトを削除する。owner_idのユーザーのみ実行できる。
func (s *Service) Delete(ctx context.Context, projectID, userID string) error {
	p, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to find project: %w", err)
	}
	if p == nil {
		return model.NewNotFoundError("Project")
	}
	if p.OwnerID != userID {
		return model.NewUnauthorizedError()
	}

	if err := s.projectRepo.Delete(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("Project")
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}

	slog.Info("project deleted", slog.String("project_id", projectID), slog.String("user_id", userID))
	return nil
}

func (s *Service) validateName(raw string) (string, error) {
	name := s.sanitizer.SanitizeText(raw)
	if name == "" {
		return "", model.NewValidationError("Name is required")
	}
	if utf8.RuneCountInString(name) > model.ProjectNameMaxLength {
		return "", model.NewValidationError(fmt.Sprintf("Name must be at most %d characters", model.ProjectNameMaxLength))
	}
	return name, nil
}

// sanitizeOptional は任意入力のテキストをサニタイズする。空になった場合はnil。
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
