package handler

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hitoshi/projecify/internal/model"
)

// jsonDate はRFC3339の日時と"2006-01-02"形式の日付の両方を受け付ける。
// フロントエンドのdate inputはタイムゾーンなしの日付を送ってくる。
type jsonDate time.Time

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (d *jsonDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*d = jsonDate(t)
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	*d = jsonDate(t)
	return nil
}

// datePtr はnil許容の日付をtime.Timeのポインタに変換する。
func datePtr(d *jsonDate) *time.Time {
	if d == nil {
		return nil
	}
	t := time.Time(*d)
	return &t
}

// dateOptional はPATCH用の日付をサービス層の型に変換する。
func dateOptional(o model.Optional[jsonDate]) model.Optional[time.Time] {
	return model.Optional[time.Time]{Set: o.Set, Null: o.Null, Value: time.Time(o.Value)}
}

// userSummaryResponse はネストしたユーザー情報のレスポンス。
type userSummaryResponse struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Image *string `json:"image"`
}

func toUserSummaryResponse(u *model.UserSummary) *userSummaryResponse {
	if u == nil {
		return nil
	}
	return &userSummaryResponse{ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image}
}

// userResponse はユーザー情報のレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Image     *string   `json:"image"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Image:     u.Image,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// profileResponse はユーザープロフィールと所属プロジェクトのレスポンス。
type profileResponse struct {
	userResponse
	Memberships []profileMembershipResponse `json:"memberships"`
}

type profileMembershipResponse struct {
	Role     model.Role             `json:"role"`
	JoinedAt time.Time              `json:"joinedAt"`
	Project  projectSummaryResponse `json:"project"`
}

func toProfileResponse(p *model.UserProfile) profileResponse {
	resp := profileResponse{
		userResponse: toUserResponse(p.User),
		Memberships:  make([]profileMembershipResponse, 0, len(p.Memberships)),
	}
	for _, m := range p.Memberships {
		resp.Memberships = append(resp.Memberships, profileMembershipResponse{
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
			Project: projectSummaryResponse{
				ID:     m.ProjectID,
				Name:   m.ProjectName,
				Status: m.ProjectStatus,
			},
		})
	}
	return resp
}

// projectSummaryResponse はタスクに埋め込むプロジェクト情報。
type projectSummaryResponse struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Status model.ProjectStatus `json:"status"`
}

// projectResponse はプロジェクトのレスポンス。
type projectResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description *string             `json:"description"`
	Status      model.ProjectStatus `json:"status"`
	DueDate     *time.Time          `json:"dueDate"`
	OwnerID     string              `json:"ownerId"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func toProjectResponse(p *model.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		DueDate:     p.DueDate,
		OwnerID:     p.OwnerID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProjectResponses(projects []*model.Project) []projectResponse {
	resp := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, toProjectResponse(p))
	}
	return resp
}

// projectDetailResponse はオーナー・メンバー・タスクを含むプロジェクト詳細。
type projectDetailResponse struct {
	projectResponse
	Owner   *userSummaryResponse `json:"owner"`
	Members []memberResponse     `json:"members"`
	Tasks   []taskResponse       `json:"tasks"`
}

func toProjectDetailResponse(d *model.ProjectDetail) projectDetailResponse {
	return projectDetailResponse{
		projectResponse: toProjectResponse(d.Project),
		Owner:           toUserSummaryResponse(d.Owner),
		Members:         toMemberResponses(d.Members),
		Tasks:           toTaskResponses(d.Tasks),
	}
}

// memberResponse はメンバーシップのレスポンス。
type memberResponse struct {
	ProjectID string               `json:"projectId"`
	UserID    string               `json:"userId"`
	Role      model.Role           `json:"role"`
	JoinedAt  time.Time            `json:"joinedAt"`
	User      *userSummaryResponse `json:"user"`
}

func toMemberResponse(m *model.Membership) memberResponse {
	return memberResponse{
		ProjectID: m.ProjectID,
		UserID:    m.UserID,
		Role:      m.Role,
		JoinedAt:  m.JoinedAt,
		User:      toUserSummaryResponse(m.User),
	}
}

func toMemberResponses(members []*model.Membership) []memberResponse {
	resp := make([]memberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, toMemberResponse(m))
	}
	return resp
}

// taskResponse はタスクのレスポンス。
type taskResponse struct {
	ID           string                  `json:"id"`
	Title        string                  `json:"title"`
	Description  *string                 `json:"description"`
	Status       model.TaskStatus        `json:"status"`
	Priority     model.Priority          `json:"priority"`
	DueDate      *time.Time              `json:"dueDate"`
	ProjectID    string                  `json:"projectId"`
	AssignedToID *string                 `json:"assignedToId"`
	CreatedAt    time.Time               `json:"createdAt"`
	UpdatedAt    time.Time               `json:"updatedAt"`
	AssignedTo   *userSummaryResponse    `json:"assignedTo"`
	Project      *projectSummaryResponse `json:"project,omitempty"`
}

func toTaskResponse(t *model.Task) taskResponse {
	resp := taskResponse{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		Priority:     t.Priority,
		DueDate:      t.DueDate,
		ProjectID:    t.ProjectID,
		AssignedToID: t.AssignedToID,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		AssignedTo:   toUserSummaryResponse(t.AssignedTo),
	}
	if t.Project != nil {
		resp.Project = &projectSummaryResponse{ID: t.Project.ID, Name: t.Project.Name, Status: t.Project.Status}
	}
	return resp
}

func toTaskResponses(tasks []*model.Task) []taskResponse {
	resp := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}
	return resp
}
