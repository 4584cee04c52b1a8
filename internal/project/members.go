package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/repository"
)

// ListMembers はプロジェクトのメンバー一覧を返す。プロジェクトの参加者のみ参照できる。
func (s *Service) ListMembers(ctx context.Context, projectID, userID string) ([]*model.Membership, error) {
	if _, err := s.require(ctx, projectID, userID, model.CapViewProject); err != nil {
		return nil, err
	}

	members, err := s.memberRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// parseAssignableRole はメンバー管理APIで指定されたロールを検証する。空の場合はMEMBER。
func parseAssignableRole(raw string) (model.Role, error) {
	if raw == "" {
		return model.RoleMember, nil
	}
	role, ok := model.ParseRole(raw)
	if !ok || !role.Assignable() {
		return "", model.NewValidationError("Invalid role")
	}
	return role, nil
}

// AddMember はメールアドレスで指定したユーザーをメンバーとして追加する。
// 既存メンバーの場合は事前チェックと主キーの一意制約違反の両方で409を返す。
func (s *Service) AddMember(ctx context.Context, projectID, requesterID, email, rawRole string) (*model.Membership, error) {
	if _, err := s.require(ctx, projectID, requesterID, model.CapManageMembers); err != nil {
		return nil, err
	}

	role, err := parseAssignableRole(rawRole)
	if err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, model.NewValidationError("Email is required")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("User")
	}

	existing, err := s.memberRepo.Find(ctx, projectID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyMemberError()
	}

	summary := user.Summary()
	m := &model.Membership{
		ProjectID: projectID,
		UserID:    user.ID,
		Role:      role,
		JoinedAt:  s.now(),
		User:      &summary,
	}
	if err := s.memberRepo.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyMemberError()
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	slog.Info("member added",
		slog.String("project_id", projectID),
		slog.String("user_id", user.ID),
		slog.String("role", string(role)),
		slog.String("requested_by", requesterID),
	)
	return m, nil
}

// UpdateMemberRole はメンバーのロールを変更する。
// 対象がオーナーの場合は要求者のロールに関わらず拒否する。
func (s *Service) UpdateMemberRole(ctx context.Context, projectID, requesterID, targetUserID, rawRole string) (*model.Membership, error) {
	a, err := s.require(ctx, projectID, requesterID, model.CapViewProject)
	if err != nil {
		return nil, err
	}
	if targetUserID == "" {
		return nil, model.NewValidationError("Missing required fields")
	}
	if targetUserID == a.Project.OwnerID {
		return nil, model.ErrOwnerRoleImmutable
	}
	if !a.Can(model.CapManageMembers) {
		return nil, model.NewUnauthorizedError()
	}
	if rawRole == "" {
		return nil, model.NewValidationError("Missing required fields")
	}
	role, err := parseAssignableRole(rawRole)
	if err != nil {
		return nil, err
	}

	if err := s.memberRepo.UpdateRole(ctx, projectID, targetUserID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("Member")
		}
		return nil, fmt.Errorf("failed to update member role: %w", err)
	}

	m, err := s.memberRepo.Find(ctx, projectID, targetUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	if m == nil {
		return nil, model.NewNotFoundError("Member")
	}

	slog.Info("member role updated",
		slog.String("project_id", projectID),
		slog.String("user_id", targetUserID),
		slog.String("role", string(role)),
		slog.String("requested_by", requesterID),
	)
	return m, nil
}

// RemoveMember はメンバーをプロジェクトから外す。OWNER/ADMINのみ実行できる。
// オーナーは誰が要求しても外せないため、権限チェックより先に400を返す。
func (s *Service) RemoveMember(ctx context.Context, projectID, requesterID, targetUserID string) error {
	a, err := s.require(ctx, projectID, requesterID, model.CapViewProject)
	if err != nil {
		return err
	}
	if targetUserID == "" {
		return model.NewValidationError("Missing required fields")
	}
	if targetUserID == a.Project.OwnerID {
		return model.ErrOwnerNotRemovable
	}
	if !a.Can(model.CapManageMembers) {
		return model.NewUnauthorizedError()
	}

	if err := s.memberRepo.Delete(ctx, projectID, targetUserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("Member")
		}
		return fmt.Errorf("failed to remove member: %w", err)
	}

	slog.Info("member removed",
		slog.String("project_id", projectID),
		slog.String("user_id", targetUserID),
		slog.String("requested_by", requesterID),
	)
	return nil
}
