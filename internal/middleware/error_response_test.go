package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestWriteError_WritesPlainText はプレーンテキストでエラーが書き込まれることを検証する。
func TestWriteError_WritesPlainText(t *testing.T) {
	tests := []struct {
		statusCode int
		message    string
	}{
		{http.StatusBadRequest, "Name is required"},
		{http.StatusUnauthorized, "Unauthorized"},
		{http.StatusNotFound, "Project not found"},
		{http.StatusConflict, "User is already a member"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.statusCode, tt.message)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
				t.Errorf("Content-Type = %q", ct)
			}
			if w.Body.String() != tt.message {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.message)
			}
		})
	}
}

// TestWriteInternalServerError_HidesDetails は内部エラーで一般的なメッセージのみ返すことを検証する。
func TestWriteInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if w.Body.String() != "Internal Error" {
		t.Errorf("body = %q, want %q", w.Body.String(), "Internal Error")
	}
}
