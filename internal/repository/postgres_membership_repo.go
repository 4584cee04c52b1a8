package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/projecify/internal/model"
)

// PostgresMembershipRepo はPostgreSQLを使用したメンバーシップリポジトリ。
type PostgresMembershipRepo struct {
	db *sql.DB
}

// NewPostgresMembershipRepo はPostgresMembershipRepoを生成する。
func NewPostgresMembershipRepo(db *sql.DB) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db}
}

// Find は指定プロジェクト・ユーザーのメンバーシップを取得する。見つからない場合はnilを返す。
func (r *PostgresMembershipRepo) Find(ctx context.Context, projectID, userID string) (*model.Membership, error) {
	if !isUUID(projectID, userID) {
		return nil, nil
	}
	m := &model.Membership{}
	err := r.db.QueryRowContext(ctx,
		`SELECT project_id, user_id, role, joined_at
		 FROM project_members
		 WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	).Scan(&m.ProjectID, &m.UserID, &m.Role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return m, nil
}

// ListByProject はプロジェクトのメンバー一覧をユーザー情報付きで返す。
func (r *PostgresMembershipRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Membership, error) {
	if !isUUID(projectID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.project_id, m.user_id, m.role, m.joined_at,
		        u.id, COALESCE(u.name, ''), u.email, u.image
		 FROM project_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.project_id = $1
		 ORDER BY m.joined_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*model.Membership
	for rows.Next() {
		m := &model.Membership{User: &model.UserSummary{}}
		var image sql.NullString
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.JoinedAt,
			&m.User.ID, &m.User.Name, &m.User.Email, &image); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.User.Image = nullStringPtr(image)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// ListByUser はユーザーの所属プロジェクト一覧を返す。
func (r *PostgresMembershipRepo) ListByUser(ctx context.Context, userID string) ([]model.ProfileMembership, error) {
	if !isUUID(userID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.status, m.role, m.joined_at
		 FROM project_members m
		 JOIN projects p ON p.id = m.project_id
		 WHERE m.user_id = $1
		 ORDER BY m.joined_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var result []model.ProfileMembership
	for rows.Next() {
		var pm model.ProfileMembership
		if err := rows.Scan(&pm.ProjectID, &pm.ProjectName, &pm.ProjectStatus, &pm.Role, &pm.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		result = append(result, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return result, nil
}

// Create はメンバーシップを作成する。
// 主キー(project_id, user_id)の一意制約違反はErrDuplicateとして返すため、
// 同時追加の競合も重複エラーとして扱われる。
func (r *PostgresMembershipRepo) Create(ctx context.Context, m *model.Membership) error {
	if !isUUID(m.ProjectID, m.UserID) {
		return ErrForeignKey
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4)`,
		m.ProjectID, m.UserID, m.Role, m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", translateError(err))
	}
	return nil
}

// UpdateRole はロールを更新する。
func (r *PostgresMembershipRepo) UpdateRole(ctx context.Context, projectID, userID string, role model.Role) error {
	if !isUUID(projectID, userID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE project_members SET role = $3 WHERE project_id = $1 AND user_id = $2`,
		projectID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership role: %w", err)
	}
	return requireAffected(result)
}

// Delete はメンバーシップを削除する。
func (r *PostgresMembershipRepo) Delete(ctx context.Context, projectID, userID string) error {
	if !isUUID(projectID, userID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ MembershipRepository = (*PostgresMembershipRepo)(nil)
