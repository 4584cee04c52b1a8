// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/projecify/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile は名前とアバター画像URLを更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// identities、sessions、project_members、所有プロジェクトはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// Search は名前またはメールアドレスの部分一致でユーザーを検索し、総件数とともに返す。
	Search(ctx context.Context, query string, offset, limit int) ([]*model.User, int, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProjectRepository はプロジェクトの永続化インターフェース。
type ProjectRepository interface {
	// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Project, error)

	// ListByUser はユーザーがオーナーまたはメンバーであるプロジェクトを作成日時の降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Project, error)

	// CreateWithOwner はプロジェクトとオーナーのOWNERメンバーシップを同一トランザクションで作成する。
	CreateWithOwner(ctx context.Context, project *model.Project) error

	// Update は名前・説明・状態・期日を更新する。
	Update(ctx context.Context, project *model.Project) error

	// Delete はプロジェクトを削除する。メンバーシップとタスクはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// MembershipRepository はプロジェクトメンバーシップの永続化インターフェース。
type MembershipRepository interface {
	// Find は指定プロジェクト・ユーザーのメンバーシップを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, projectID, userID string) (*model.Membership, error)

	// ListByProject はプロジェクトのメンバー一覧をユーザー情報付きで参加日時順に返す。
	ListByProject(ctx context.Context, projectID string) ([]*model.Membership, error)

	// ListByUser はユーザーの所属プロジェクト一覧を返す。
	ListByUser(ctx context.Context, userID string) ([]model.ProfileMembership, error)

	// Create はメンバーシップを作成する。既に存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, membership *model.Membership) error

	// UpdateRole はロールを更新する。対象が存在しない場合はErrNotFoundを返す。
	UpdateRole(ctx context.Context, projectID, userID string, role model.Role) error

	// Delete はメンバーシップを削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, projectID, userID string) error
}

// TaskRepository はタスクの永続化インターフェース。
type TaskRepository interface {
	// FindByID は指定IDのタスクを担当者情報付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// ListByProject はプロジェクトのタスクを担当者情報付きで作成日時の降順で返す。
	ListByProject(ctx context.Context, projectID string) ([]*model.Task, error)

	// ListByAssignee はユーザーが担当するタスクをプロジェクト情報付きで作成日時の降順で返す。
	ListByAssignee(ctx context.Context, userID string) ([]*model.Task, error)

	// Create はタスクを作成する。担当者が存在しない場合はErrForeignKeyを返す。
	Create(ctx context.Context, task *model.Task) error

	// Update はタスクの全フィールドを上書き更新する。
	Update(ctx context.Context, task *model.Task) error

	// Delete はタスクを削除する。
	Delete(ctx context.Context, id string) error
}

// SessionPurger は期限切れセッションの一括削除インターフェース。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
