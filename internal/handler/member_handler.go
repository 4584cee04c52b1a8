package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/projecify/internal/model"
)

// MemberServiceInterface はメンバーハンドラーが必要とするサービスインターフェース。
type MemberServiceInterface interface {
	ListMembers(ctx context.Context, projectID, userID string) ([]*model.Membership, error)
	AddMember(ctx context.Context, projectID, requesterID, email, role string) (*model.Membership, error)
	UpdateMemberRole(ctx context.Context, projectID, requesterID, targetUserID, role string) (*model.Membership, error)
	RemoveMember(ctx context.Context, projectID, requesterID, targetUserID string) error
}

// MemberHandler はプロジェクトメンバー管理のHTTPハンドラー。
type MemberHandler struct {
	service MemberServiceInterface
}

// NewMemberHandler はMemberHandlerを生成する。
func NewMemberHandler(service MemberServiceInterface) *MemberHandler {
	return &MemberHandler{service: service}
}

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// memberRoleRequest はロール変更・削除のボディ。
// パスに{userId}がない旧形式のエンドポイントではUserIDで対象を指定する。
type memberRoleRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ListMembers はメンバー一覧を返す。
// GET /api/projects/{id}/members
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, "member_list", err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberResponses(members))
}

// AddMember はメールアドレスで指定したユーザーをメンバーに追加する。
// POST /api/projects/{id}/members
func (h *MemberHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.service.AddMember(r.Context(), chi.URLParam(r, "id"), userID, req.Email, req.Role)
	if err != nil {
		handleServiceError(w, "member_add", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMemberResponse(m))
}

// UpdateMemberRole はパスで指定したメンバーのロールを変更する。
// PUT|PATCH /api/projects/{id}/members/{userId}
func (h *MemberHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	h.updateRole(w, r, chi.URLParam(r, "userId"))
}

// UpdateMemberRoleByBody はボディのuserIdで指定したメンバーのロールを変更する。
// PATCH /api/projects/{id}/members
func (h *MemberHandler) UpdateMemberRoleByBody(w http.ResponseWriter, r *http.Request) {
	h.updateRole(w, r, "")
}

func (h *MemberHandler) updateRole(w http.ResponseWriter, r *http.Request, targetUserID string) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req memberRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if targetUserID == "" {
		targetUserID = req.UserID
	}
	if targetUserID == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	m, err := h.service.UpdateMemberRole(r.Context(), chi.URLParam(r, "id"), userID, targetUserID, req.Role)
	if err != nil {
		handleServiceError(w, "member_update_role", err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberResponse(m))
}

// RemoveMember はパスで指定したメンバーをプロジェクトから外す。
// DELETE /api/projects/{id}/members/{userId}
func (h *MemberHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, chi.URLParam(r, "userId"))
}

// RemoveMemberByBody はボディのuserIdで指定したメンバーをプロジェクトから外す。
// DELETE /api/projects/{id}/members
func (h *MemberHandler) RemoveMemberByBody(w http.ResponseWriter, r *http.Request) {
	var req memberRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	h.remove(w, r, req.UserID)
}

func (h *MemberHandler) remove(w http.ResponseWriter, r *http.Request, targetUserID string) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), chi.URLParam(r, "id"), userID, targetUserID); err != nil {
		handleServiceError(w, "member_remove", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupMemberRoutes はメンバー管理のルーティングを設定したchi.Routerを返す。
func SetupMemberRoutes(service MemberServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewMemberHandler(service)

	r.Route("/api/projects/{id}/members", h.routes)

	return r
}

// routes は/api/projects/{id}/members配下のルートを登録する。
func (h *MemberHandler) routes(r chi.Router) {
	r.Get("/", h.ListMembers)
	r.Post("/", h.AddMember)
	r.Patch("/", h.UpdateMemberRoleByBody)
	r.Delete("/", h.RemoveMemberByBody)
	r.Route("/{userId}", func(r chi.Router) {
		r.Put("/", h.UpdateMemberRole)
		r.Patch("/", h.UpdateMemberRole)
		r.Delete("/", h.RemoveMember)
	})
}
