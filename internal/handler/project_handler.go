package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/project"
)

// ProjectServiceInterface はプロジェクトハンドラーが必要とするサービスインターフェース。
type ProjectServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Project, error)
	Create(ctx context.Context, userID string, in project.CreateInput) (*model.Project, error)
	Get(ctx context.Context, projectID, userID string) (*model.ProjectDetail, error)
	// Update はreplaceがtrueの場合、未指定フィールドをクリアする（PUT）。
	Update(ctx context.Context, projectID, userID string, in project.UpdateInput, replace bool) (*model.Project, error)
	Delete(ctx context.Context, projectID, userID string) error
}

// ProjectHandler はプロジェクト管理のHTTPハンドラー。
type ProjectHandler struct {
	service ProjectServiceInterface
}

// NewProjectHandler はProjectHandlerを生成する。
func NewProjectHandler(service ProjectServiceInterface) *ProjectHandler {
	return &ProjectHandler{service: service}
}

type createProjectRequest struct {
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Status      string    `json:"status"`
	DueDate     *jsonDate `json:"dueDate"`
}

type updateProjectRequest struct {
	Name        model.Optional[string]   `json:"name"`
	Description model.Optional[string]   `json:"description"`
	Status      model.Optional[string]   `json:"status"`
	DueDate     model.Optional[jsonDate] `json:"dueDate"`
}

// ListProjects は呼び出し元が参加しているプロジェクト一覧を返す。
// GET /api/projects
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	projects, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, "project_list", err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponses(projects))
}

// CreateProject はプロジェクトを作成する。作成者はオーナーになる。
// POST /api/projects
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Create(r.Context(), userID, project.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		DueDate:     datePtr(req.DueDate),
	})
	if err != nil {
		handleServiceError(w, "project_create", err)
		return
	}

	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

// GetProject はプロジェクト詳細を返す。
// GET /api/projects/{id}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, "project_get", err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectDetailResponse(detail))
}

// ReplaceProject はプロジェクトを全置換で更新する。
// PUT /api/projects/{id}
func (h *ProjectHandler) ReplaceProject(w http.ResponseWriter, r *http.Request) {
	h.updateProject(w, r, true)
}

// PatchProject はボディに含まれるフィールドのみ更新する。
// PATCH /api/projects/{id}
func (h *ProjectHandler) PatchProject(w http.ResponseWriter, r *http.Request) {
	h.updateProject(w, r, false)
}

func (h *ProjectHandler) updateProject(w http.ResponseWriter, r *http.Request, replace bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), userID, project.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		DueDate:     dateOptional(req.DueDate),
	}, replace)
	if err != nil {
		handleServiceError(w, "project_update", err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// DeleteProject はプロジェクトを削除する。オーナーのみ実行できる。
// DELETE /api/projects/{id}
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		handleServiceError(w, "project_delete", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupProjectRoutes はプロジェクト関連のルーティングを設定したchi.Routerを返す。
func SetupProjectRoutes(service ProjectServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewProjectHandler(service)

	r.Route("/api/projects", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Post("/", h.CreateProject)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetProject)
			r.Put("/", h.ReplaceProject)
			r.Patch("/", h.PatchProject)
			r.Delete("/", h.DeleteProject)
		})
	})

	return r
}
