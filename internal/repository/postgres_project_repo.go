package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/projecify/internal/model"
)

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

const projectColumns = `p.id, p.name, p.description, p.status, p.due_date, p.owner_id, p.created_at, p.updated_at`

func scanProject(row rowScanner) (*model.Project, error) {
	p := &model.Project{}
	var desc sql.NullString
	var due sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &desc, &p.Status, &due, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Description = nullStringPtr(desc)
	p.DueDate = nullTimePtr(due)
	return p, nil
}

// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	if !isUUID(id) {
		return nil, nil
	}
	p, err := scanProject(r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return p, nil
}

// ListByUser はユーザーがオーナーまたはメンバーであるプロジェクトを返す。
func (r *PostgresProjectRepo) ListByUser(ctx context.Context, userID string) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects p
		 WHERE p.owner_id = $1
		    OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.user_id = $1)
		 ORDER BY p.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, nil
}

// CreateWithOwner はプロジェクトとオーナーのOWNERメンバーシップを同一トランザクションで作成する。
func (r *PostgresProjectRepo) CreateWithOwner(ctx context.Context, p *model.Project) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, status, due_date, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.Description, p.Status, p.DueDate, p.OwnerID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", translateError(err))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4)`,
		p.ID, p.OwnerID, model.RoleOwner, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert owner membership: %w", translateError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update は名前・説明・状態・期日を更新する。
func (r *PostgresProjectRepo) Update(ctx context.Context, p *model.Project) error {
	if !isUUID(p.ID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects
		 SET name = $2, description = $3, status = $4, due_date = $5, updated_at = $6
		 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Status, p.DueDate, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return requireAffected(result)
}

// Delete はプロジェクトを削除する。
func (r *PostgresProjectRepo) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)
