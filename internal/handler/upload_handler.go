package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/upload"
)

// multipartOverhead はmultipartの境界やヘッダー分としてファイル上限に加算するバイト数。
const multipartOverhead = 64 << 10

// UploadServiceInterface はアップロードハンドラーが必要とするサービスインターフェース。
type UploadServiceInterface interface {
	UploadAvatar(ctx context.Context, userID string, r io.Reader) (*upload.Result, error)
	MaxBytes() int64
}

// UploadHandler はアバター画像アップロードのHTTPハンドラー。
type UploadHandler struct {
	service UploadServiceInterface
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(service UploadServiceInterface) *UploadHandler {
	return &UploadHandler{service: service}
}

type uploadResponse struct {
	URL        string `json:"url"`
	UploadedBy string `json:"uploadedBy"`
}

// UploadAvatar はmultipartのfileフィールドの画像を保存し、URLを返す。
// POST /api/uploads/avatar
func (h *UploadHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxBytes()+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}

	// 最初のfileパートのみ扱う
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			writeError(w, http.StatusBadRequest, "No file provided")
			return
		}
		if err != nil {
			if !writeBodyTooLarge(w, err) {
				writeError(w, http.StatusBadRequest, "Invalid multipart body")
			}
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		result, err := h.service.UploadAvatar(r.Context(), userID, part)
		part.Close()
		if err != nil {
			if !writeBodyTooLarge(w, err) {
				handleServiceError(w, "upload_avatar", err)
			}
			return
		}

		writeJSON(w, http.StatusOK, uploadResponse{URL: result.URL, UploadedBy: result.UploadedBy})
		return
	}
}

// writeBodyTooLarge はボディ上限超過の場合に413を書き込みtrueを返す。
func writeBodyTooLarge(w http.ResponseWriter, err error) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return false
	}
	writeError(w, http.StatusRequestEntityTooLarge, model.NewFileTooLargeError().Message)
	return true
}
