package model

import "time"

// ProjectStatus はプロジェクトの進行状態。遷移の制約はない。
type ProjectStatus string

const (
	ProjectStatusNotStarted ProjectStatus = "NOT_STARTED"
	ProjectStatusInProgress ProjectStatus = "IN_PROGRESS"
	ProjectStatusCompleted  ProjectStatus = "COMPLETED"
	ProjectStatusOnHold     ProjectStatus = "ON_HOLD"
)

// ParseProjectStatus は文字列をProjectStatusに変換する。未定義の値はfalseを返す。
func ParseProjectStatus(s string) (ProjectStatus, bool) {
	switch st := ProjectStatus(s); st {
	case ProjectStatusNotStarted, ProjectStatusInProgress, ProjectStatusCompleted, ProjectStatusOnHold:
		return st, true
	}
	return "", false
}

// ProjectNameMaxLength はプロジェクト名の最大文字数。
const ProjectNameMaxLength = 255

// Project はプロジェクトを表す。
// OwnerIDが唯一の正式なオーナーであり、メンバー一覧にもOWNERロールで登録される。
type Project struct {
	ID          string
	Name        string
	Description *string
	Status      ProjectStatus
	DueDate     *time.Time
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership はユーザーとプロジェクトの所属関係を表す。
type Membership struct {
	ProjectID string
	UserID    string
	Role      Role
	JoinedAt  time.Time

	// User は一覧取得時にJOINで埋められる。
	User *UserSummary
}

// ProjectDetail はプロジェクト詳細画面用にオーナー・メンバー・タスクをまとめたもの。
type ProjectDetail struct {
	Project *Project
	Owner   *UserSummary
	Members []*Membership
	Tasks   []*Task
}

// ProjectSummary はタスク一覧などに埋め込むプロジェクト情報。
type ProjectSummary struct {
	ID     string
	Name   string
	Status ProjectStatus
}
