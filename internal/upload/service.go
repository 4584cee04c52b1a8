// Package upload はアバター画像のアップロードを提供する。
// 受け取ったファイルの中身から形式を判定し、許可された画像のみをStorageへ保存する。
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hitoshi/projecify/internal/model"
)

// DefaultMaxBytes はアップロードの最大サイズ（4MB）。
const DefaultMaxBytes int64 = 4 << 20

// allowedTypes はアバターとして受け付けるMIMEタイプ。
var allowedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Storage はアップロードされたファイルの保存先。
type Storage interface {
	// Save はファイルを保存し、公開URLを返す。
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Recorder はアップロード結果を記録する。
type Recorder interface {
	RecordUpload(outcome string)
}

// Result はアップロード結果。
type Result struct {
	URL        string
	UploadedBy string
}

// Service はアバターアップロードのサービス層。
type Service struct {
	storage  Storage
	maxBytes int64
	recorder Recorder
}

// NewService はServiceを生成する。maxBytesが0以下の場合はDefaultMaxBytesを使う。
func NewService(storage Storage, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{storage: storage, maxBytes: maxBytes}
}

// SetRecorder はアップロード結果の記録先を設定する。
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// MaxBytes はアップロードの最大サイズを返す。
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// UploadAvatar はアバター画像を検証して保存する。
func (s *Service) UploadAvatar(ctx context.Context, userID string, r io.Reader) (*Result, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("アップロードファイルの読み取りに失敗しました: %w", err)
	}
	if n == 0 {
		s.record("rejected")
		return nil, model.NewValidationError("No file provided")
	}
	if n > s.maxBytes {
		s.record("too_large")
		return nil, model.NewFileTooLargeError()
	}

	data := buf.Bytes()
	mtype := mimetype.Detect(data)
	if !isAllowed(mtype) {
		s.record("unsupported")
		return nil, model.NewUnsupportedFileTypeError(mtype.String())
	}

	name := uuid.New().String() + mtype.Extension()
	url, err := s.storage.Save(ctx, name, mtype.String(), data)
	if err != nil {
		s.record("error")
		return nil, fmt.Errorf("アップロードファイルの保存に失敗しました: %w", err)
	}

	s.record("success")
	slog.Info("アバター画像をアップロードしました",
		slog.String("user_id", userID),
		slog.String("url", url),
		slog.String("content_type", mtype.String()),
		slog.Int64("size", n),
	)
	return &Result{URL: url, UploadedBy: userID}, nil
}

func isAllowed(m *mimetype.MIME) bool {
	for _, t := range allowedTypes {
		if m.Is(t) {
			return true
		}
	}
	return false
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordUpload(outcome)
	}
}
