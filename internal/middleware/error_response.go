package middleware

import (
	"net/http"
)

// InternalErrorMessage は想定外のエラー時にクライアントへ返す本文。
const InternalErrorMessage = "Internal Error"

// WriteError はプレーンテキストのエラーレスポンスを書き込む。
// すべてのAPIエンドポイントでステータスコードとメッセージのみを返す。
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	w.Write([]byte(message))
}

// WriteInternalServerError は内部サーバーエラーのレスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, InternalErrorMessage)
}
