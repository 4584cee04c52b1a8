package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashが空のユーザーは外部IdP経由でのみログインできる。
type User struct {
	ID           string
	Email        string
	Name         string
	Image        *string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserSummary は一覧やネストしたレスポンスで使う最小限のユーザー情報。
type UserSummary struct {
	ID    string
	Name  string
	Email string
	Image *string
}

// Summary はUserからUserSummaryを生成する。
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image}
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserProfile はプロフィール表示用のユーザー情報と所属プロジェクト一覧。
type UserProfile struct {
	User        *User
	Memberships []ProfileMembership
}

// ProfileMembership はプロフィールに表示する所属プロジェクト。
type ProfileMembership struct {
	ProjectID     string
	ProjectName   string
	ProjectStatus ProjectStatus
	Role          Role
	JoinedAt      time.Time
}
