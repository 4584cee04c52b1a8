// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/repository"
	"github.com/hitoshi/projecify/internal/security"
)

// 一覧検索のページング
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// URLValidator はアバター画像URLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ServiceConfig はユーザーサービスの設定。
type ServiceConfig struct {
	// TrustedImageBaseURL 配下のURLは自サーバーのアップロード先としてSSRF検査を省略する。
	TrustedImageBaseURL string
}

// UpdateInput はプロフィール更新の入力。未指定のフィールドは変更しない。
type UpdateInput struct {
	Name  model.Optional[string]
	Image model.Optional[string]
}

// SearchResult はユーザー検索の結果。
type SearchResult struct {
	Users []*model.User
	Total int
	Page  int
	Limit int
}

// Service はユーザー管理のサービス層。
// プロフィール参照・更新、退会、ユーザー検索を提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	memberRepo  repository.MembershipRepository
	validator   URLValidator
	sanitizer   security.TextSanitizer
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	memberRepo repository.MembershipRepository,
	validator URLValidator,
	sanitizer security.TextSanitizer,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		memberRepo:  memberRepo,
		validator:   validator,
		sanitizer:   sanitizer,
		config:      config,
		now:         time.Now,
	}
}

// Get は本人のプロフィールと所属プロジェクト一覧を返す。
// 他のユーザーのプロフィールは所属プロジェクトを含むため参照できない。
func (s *Service) Get(ctx context.Context, targetID, requesterID string) (*model.UserProfile, error) {
	if targetID != requesterID {
		return nil, model.NewUnauthorizedError()
	}

	u, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewNotFoundError("User")
	}

	memberships, err := s.memberRepo.ListByUser(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("所属プロジェクトの取得に失敗しました: %w", err)
	}
	if memberships == nil {
		memberships = []model.ProfileMembership{}
	}
	return &model.UserProfile{User: u, Memberships: memberships}, nil
}

// Update は本人のプロフィール（名前・アバター画像URL）を更新する。
func (s *Service) Update(ctx context.Context, targetID, requesterID string, in UpdateInput) (*model.User, error) {
	if targetID != requesterID {
		return nil, model.NewUnauthorizedError()
	}

	var image *string
	if in.Image.Set && !in.Image.Null {
		if raw := strings.TrimSpace(in.Image.Value); raw != "" {
			if err := s.validateImageURL(raw); err != nil {
				return nil, err
			}
			image = &raw
		}
	}

	u, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewNotFoundError("User")
	}

	if in.Name.Set {
		u.Name = s.sanitizer.SanitizeText(in.Name.Value)
	}
	if in.Image.Set {
		u.Image = image
	}
	u.UpdatedAt = s.now()

	if err := s.userRepo.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("User")
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	slog.Info("プロフィールを更新しました", slog.String("user_id", targetID))
	return u, nil
}

func (s *Service) validateImageURL(raw string) error {
	if base := s.config.TrustedImageBaseURL; base != "" && strings.HasPrefix(raw, strings.TrimRight(base, "/")+"/") {
		return nil
	}
	if err := s.validator.ValidateURL(raw); err != nil {
		slog.Warn("アバター画像URLを拒否しました", slog.String("url", raw), slog.String("error", err.Error()))
		return model.NewValidationError("Invalid image URL")
	}
	return nil
}

// Delete は本人のアカウントを削除する。
// 削除順序: sessions → user（+ CASCADE: identities, project_members, 所有プロジェクトとそのタスク）
// 他人のプロジェクトで担当していたタスクは担当者なしになる。
func (s *Service) Delete(ctx context.Context, targetID, requesterID string) error {
	if targetID != requesterID {
		return model.NewUnauthorizedError()
	}

	u, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewNotFoundError("User")
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", targetID),
	)

	// 1. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, targetID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 2. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("User")
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", targetID),
	)

	return nil
}

// Search は名前またはメールアドレスの部分一致でユーザーを検索する。
// pageは1始まり、limitは1〜100。
func (s *Service) Search(ctx context.Context, query string, page, limit int) (*SearchResult, error) {
	if page < 1 {
		return nil, model.NewValidationError("Invalid page")
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, model.NewValidationError("Invalid limit")
	}

	users, total, err := s.userRepo.Search(ctx, strings.TrimSpace(query), (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return &SearchResult{Users: users, Total: total, Page: page, Limit: limit}, nil
}
