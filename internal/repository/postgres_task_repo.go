package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/projecify/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// taskSelect は担当者とプロジェクトをLEFT JOINしたタスク取得クエリ。
const taskSelect = `SELECT t.id, t.title, t.description, t.status, t.priority, t.due_date,
	       t.project_id, t.assigned_to_id, t.created_at, t.updated_at,
	       u.id, u.name, u.email, u.image,
	       p.name, p.status
	FROM tasks t
	LEFT JOIN users u ON u.id = t.assigned_to_id
	JOIN projects p ON p.id = t.project_id`

func scanTask(row rowScanner) (*model.Task, error) {
	t := &model.Task{}
	var (
		desc          sql.NullString
		due           sql.NullTime
		assignedTo    sql.NullString
		userID        sql.NullString
		userName      sql.NullString
		userEmail     sql.NullString
		userImage     sql.NullString
		projectName   string
		projectStatus model.ProjectStatus
	)
	if err := row.Scan(&t.ID, &t.Title, &desc, &t.Status, &t.Priority, &due,
		&t.ProjectID, &assignedTo, &t.CreatedAt, &t.UpdatedAt,
		&userID, &userName, &userEmail, &userImage,
		&projectName, &projectStatus); err != nil {
		return nil, err
	}
	t.Description = nullStringPtr(desc)
	t.DueDate = nullTimePtr(due)
	t.AssignedToID = nullStringPtr(assignedTo)
	if userID.Valid {
		t.AssignedTo = &model.UserSummary{
			ID:    userID.String,
			Name:  userName.String,
			Email: userEmail.String,
			Image: nullStringPtr(userImage),
		}
	}
	t.Project = &model.ProjectSummary{ID: t.ProjectID, Name: projectName, Status: projectStatus}
	return t, nil
}

func (r *PostgresTaskRepo) queryTasks(ctx context.Context, query string, args ...any) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	if !isUUID(id) {
		return nil, nil
	}
	t, err := scanTask(r.db.QueryRowContext(ctx, taskSelect+` WHERE t.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return t, nil
}

// ListByProject はプロジェクトのタスクを返す。
func (r *PostgresTaskRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Task, error) {
	if !isUUID(projectID) {
		return nil, nil
	}
	return r.queryTasks(ctx, taskSelect+` WHERE t.project_id = $1 ORDER BY t.created_at DESC`, projectID)
}

// ListByAssignee はユーザーが担当するタスクを返す。
func (r *PostgresTaskRepo) ListByAssignee(ctx context.Context, userID string) ([]*model.Task, error) {
	if !isUUID(userID) {
		return nil, nil
	}
	return r.queryTasks(ctx, taskSelect+` WHERE t.assigned_to_id = $1 ORDER BY t.created_at DESC`, userID)
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, t *model.Task) error {
	if err := checkTaskRefs(t); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, status, priority, due_date, project_id, assigned_to_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.DueDate, t.ProjectID, t.AssignedToID, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", translateError(err))
	}
	return nil
}

// Update はタスクの全フィールドを上書き更新する。
func (r *PostgresTaskRepo) Update(ctx context.Context, t *model.Task) error {
	if !isUUID(t.ID) {
		return ErrNotFound
	}
	if err := checkTaskRefs(t); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET title = $2, description = $3, status = $4, priority = $5, due_date = $6,
		     assigned_to_id = $7, updated_at = $8
		 WHERE id = $1`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.DueDate, t.AssignedToID, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", translateError(err))
	}
	return requireAffected(result)
}

// Delete はタスクを削除する。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireAffected(result)
}

// checkTaskRefs はUUIDとして解釈できない参照を外部キー違反として扱う。
func checkTaskRefs(t *model.Task) error {
	if !isUUID(t.ProjectID) {
		return ErrForeignKey
	}
	if t.AssignedToID != nil && !isUUID(*t.AssignedToID) {
		return ErrForeignKey
	}
	return nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
