package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	List(ctx context.Context, projectID, userID string) ([]*model.Task, error)
	Create(ctx context.Context, projectID, userID string, in task.CreateInput) (*model.Task, error)
	Get(ctx context.Context, projectID, taskID, userID string) (*model.Task, error)
	Update(ctx context.Context, projectID, taskID, userID string, in task.UpdateInput, replace bool) (*model.Task, error)
	Delete(ctx context.Context, projectID, taskID, userID string) error
	ListAssigned(ctx context.Context, targetUserID, userID string) ([]*model.Task, error)
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

type createTaskRequest struct {
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
	DueDate      *jsonDate `json:"dueDate"`
	AssignedToID *string   `json:"assignedToId"`
}

type updateTaskRequest struct {
	Title        model.Optional[string]   `json:"title"`
	Description  model.Optional[string]   `json:"description"`
	Status       model.Optional[string]   `json:"status"`
	Priority     model.Optional[string]   `json:"priority"`
	DueDate      model.Optional[jsonDate] `json:"dueDate"`
	AssignedToID model.Optional[string]   `json:"assignedToId"`
}

// ListTasks はプロジェクトのタスク一覧を返す。
// GET /api/projects/{id}/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	tasks, err := h.service.List(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, "task_list", err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// CreateTask はタスクを作成する。
// POST /api/projects/{id}/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.Create(r.Context(), chi.URLParam(r, "id"), userID, task.CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Priority:     req.Priority,
		DueDate:      datePtr(req.DueDate),
		AssignedToID: req.AssignedToID,
	})
	if err != nil {
		handleServiceError(w, "task_create", err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(t))
}

// GetTask はタスクを返す。
// GET /api/projects/{id}/tasks/{taskId}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	t, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "taskId"), userID)
	if err != nil {
		handleServiceError(w, "task_get", err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// ReplaceTask はタスクを全置換で更新する。
// PUT /api/projects/{id}/tasks/{taskId}
func (h *TaskHandler) ReplaceTask(w http.ResponseWriter, r *http.Request) {
	h.updateTask(w, r, true)
}

// PatchTask はボディに含まれるフィールドのみ更新する。
// PATCH /api/projects/{id}/tasks/{taskId}
func (h *TaskHandler) PatchTask(w http.ResponseWriter, r *http.Request) {
	h.updateTask(w, r, false)
}

func (h *TaskHandler) updateTask(w http.ResponseWriter, r *http.Request, replace bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "taskId"), userID, task.UpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Priority:     req.Priority,
		DueDate:      dateOptional(req.DueDate),
		AssignedToID: req.AssignedToID,
	}, replace)
	if err != nil {
		handleServiceError(w, "task_update", err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// DeleteTask はタスクを削除する。OWNER/ADMINのみ実行できる。
// DELETE /api/projects/{id}/tasks/{taskId}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "taskId"), userID); err != nil {
		handleServiceError(w, "task_delete", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAssignedTasks は指定ユーザーの担当タスクを返す。本人のみ参照できる。
// GET /api/users/{id}/tasks
func (h *TaskHandler) ListAssignedTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	tasks, err := h.service.ListAssigned(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, "task_list_assigned", err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// routes は/api/projects/{id}/tasks配下のルートを登録する。
func (h *TaskHandler) routes(r chi.Router) {
	r.Get("/", h.ListTasks)
	r.Post("/", h.CreateTask)
	r.Route("/{taskId}", func(r chi.Router) {
		r.Get("/", h.GetTask)
		r.Put("/", h.ReplaceTask)
		r.Patch("/", h.PatchTask)
		r.Delete("/", h.DeleteTask)
	})
}

// SetupTaskRoutes はタスク管理のルーティングを設定したchi.Routerを返す。
func SetupTaskRoutes(service TaskServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewTaskHandler(service)

	r.Route("/api/projects/{id}/tasks", h.routes)
	r.Get("/api/users/{id}/tasks", h.ListAssignedTasks)

	return r
}
