package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Get(ctx context.Context, targetID, requesterID string) (*model.UserProfile, error)
	Update(ctx context.Context, targetID, requesterID string, in user.UpdateInput) (*model.User, error)
	// Delete はユーザーの退会処理を実行する。
	// セッションを削除した後、ユーザーを削除する（所有プロジェクト・メンバーシップはCASCADE）。
	Delete(ctx context.Context, targetID, requesterID string) error
	Search(ctx context.Context, query string, page, limit int) (*user.SearchResult, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	config  AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。configは退会時のCookie削除に使う。
func NewUserHandler(service UserServiceInterface, config AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		config:  config,
	}
}

type updateUserRequest struct {
	Name  model.Optional[string] `json:"name"`
	Image model.Optional[string] `json:"image"`
}

type searchMetadata struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type searchUsersResponse struct {
	Users    []userSummaryResponse `json:"users"`
	Metadata searchMetadata        `json:"metadata"`
}

// SearchUsers は名前またはメールアドレスでユーザーを検索する。
// GET /api/users?search=&page=&limit=
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	q := r.URL.Query()
	page, ok := parseIntParam(q.Get("page"), 1)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid page")
		return
	}
	limit, ok := parseIntParam(q.Get("limit"), user.DefaultSearchLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	result, err := h.service.Search(r.Context(), q.Get("search"), page, limit)
	if err != nil {
		handleServiceError(w, "user_search", err)
		return
	}

	resp := searchUsersResponse{
		Users:    make([]userSummaryResponse, 0, len(result.Users)),
		Metadata: searchMetadata{Total: result.Total, Page: result.Page, Limit: result.Limit},
	}
	for _, u := range result.Users {
		resp.Users = append(resp.Users, userSummaryResponse{ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetUser は自分のプロフィールを返す。
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, "user_get", err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// UpdateUser は自分のプロフィール（名前・画像）を更新する。
// PUT|PATCH /api/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), userID, user.UpdateInput{
		Name:  req.Name,
		Image: req.Image,
	})
	if err != nil {
		handleServiceError(w, "user_update", err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// DeleteUser は退会処理を実行し、セッションCookieを削除する。
// DELETE /api/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		handleServiceError(w, "user_delete", err)
		return
	}

	expireSessionCookie(w, h.config)
	w.WriteHeader(http.StatusNoContent)
}

// parseIntParam はクエリパラメータを整数に変換する。空の場合はdefを返す。
func parseIntParam(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SetupUserRoutes はユーザー管理関連のルーティングを設定したchi.Routerを返す。
func SetupUserRoutes(service UserServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	h := NewUserHandler(service, config)

	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", h.SearchUsers)
		r.Route("/{id}", h.routes)
	})

	return r
}

// routes は/api/users/{id}配下のルートを登録する。
func (h *UserHandler) routes(r chi.Router) {
	r.Get("/", h.GetUser)
	r.Put("/", h.UpdateUser)
	r.Patch("/", h.UpdateUser)
	r.Delete("/", h.DeleteUser)
}
