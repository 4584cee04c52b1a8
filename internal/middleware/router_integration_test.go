package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/projecify/internal/model"
)

// projectAPI はAPIルーターと同じ順序（ロギング → CSRF → セッション → ユーザー単位の制限）で
// タスクルートを組み立て、ハンドラーが受け取ったプロジェクトIDとユーザーIDを記録する。
type projectAPI struct {
	router  chi.Router
	logs    *bytes.Buffer
	limiter *RateLimiter

	gotProjectID string
	gotUserID    string
}

func newProjectAPI(t *testing.T, perMinute int) *projectAPI {
	t.Helper()

	api := &projectAPI{logs: &bytes.Buffer{}}
	resolver := &mockSessionResolver{
		resolveFn: func(ctx context.Context, token string) (*model.Session, error) {
			users := map[string]string{"alice-token": "user-alice", "bob-token": "user-bob"}
			if userID, ok := users[token]; ok {
				return &model.Session{ID: token, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
			}
			return nil, nil
		},
	}
	api.limiter = NewRateLimiter(PerMinuteRateLimiterConfig(perMinute, perMinute))
	t.Cleanup(api.limiter.Stop)

	csrf := CSRFConfig{}
	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(slog.New(slog.NewJSONHandler(api.logs, nil))))
	r.Group(func(r chi.Router) {
		r.Use(NewCSRFMiddleware(csrf))
		r.Get("/api/csrf-token", NewCSRFTokenHandler(csrf).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(NewSessionMiddleware(resolver))
			r.Use(api.limiter.GeneralMiddleware())

			record := func(status int) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					api.gotProjectID = chi.URLParam(r, "id")
					api.gotUserID, _ = UserIDFromContext(r.Context())
					w.WriteHeader(status)
				}
			}
			r.Get("/api/projects/{id}/tasks", record(http.StatusOK))
			r.Post("/api/projects/{id}/tasks", record(http.StatusCreated))
		})
	})
	api.router = r
	return api
}

// send はセッションとCSRFトークンを任意に付けてリクエストし、ステータスと最後のログ行を返す。
func (api *projectAPI) send(t *testing.T, method, path, session, csrfToken string) (int, map[string]any) {
	t.Helper()
	api.logs.Reset()

	req := httptest.NewRequest(method, path, strings.NewReader(`{"title":"Draft"}`))
	if session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session})
	}
	if csrfToken != "" {
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: csrfToken})
		req.Header.Set(csrfHeaderName, csrfToken)
	}
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	lines := strings.Split(strings.TrimSpace(api.logs.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("failed to parse access log %q: %v", api.logs.String(), err)
	}
	return w.Code, entry
}

func TestProjectAPIChain(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		session    string
		csrf       string
		wantStatus int
		wantUserID string
	}{
		{"member reads tasks", http.MethodGet, "alice-token", "", http.StatusOK, "user-alice"},
		{"read without session", http.MethodGet, "", "", http.StatusUnauthorized, ""},
		{"unknown session", http.MethodGet, "stale-token", "", http.StatusUnauthorized, ""},
		{"create task", http.MethodPost, "bob-token", "tok", http.StatusCreated, "user-bob"},
		// CSRFはセッションより外側のため、セッションが有効でもuser_idは記録されない
		{"create without csrf", http.MethodPost, "bob-token", "", http.StatusForbidden, ""},
		{"create with csrf but no session", http.MethodPost, "", "tok", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newProjectAPI(t, 100)

			status, entry := api.send(t, tt.method, "/api/projects/p-42/tasks", tt.session, tt.csrf)

			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if int(entry["status"].(float64)) != tt.wantStatus {
				t.Errorf("logged status = %v, want %d", entry["status"], tt.wantStatus)
			}
			if entry["path"] != "/api/projects/p-42/tasks" {
				t.Errorf("logged path = %v", entry["path"])
			}
			got, _ := entry["user_id"].(string)
			if got != tt.wantUserID {
				t.Errorf("logged user_id = %q, want %q", got, tt.wantUserID)
			}
			if tt.wantStatus < 300 && (api.gotProjectID != "p-42" || api.gotUserID != tt.wantUserID) {
				t.Errorf("handler saw project %q user %q", api.gotProjectID, api.gotUserID)
			}
		})
	}
}

// TestProjectAPIChain_RateLimitIsPerUser は制限超過がユーザー単位で、ログにも残ることを検証する。
func TestProjectAPIChain_RateLimitIsPerUser(t *testing.T) {
	api := newProjectAPI(t, 1)

	if status, _ := api.send(t, http.MethodGet, "/api/projects/p-1/tasks", "alice-token", ""); status != http.StatusOK {
		t.Fatalf("first request: %d", status)
	}

	status, entry := api.send(t, http.MethodGet, "/api/projects/p-1/tasks", "alice-token", "")
	if status != http.StatusTooManyRequests {
		t.Fatalf("second request: %d, want 429", status)
	}
	if entry["user_id"] != "user-alice" || entry["level"] != "WARN" {
		t.Errorf("429 access log = %v", entry)
	}

	if status, _ := api.send(t, http.MethodGet, "/api/projects/p-1/tasks", "bob-token", ""); status != http.StatusOK {
		t.Errorf("other user should not be limited: %d", status)
	}
	if n := api.limiter.GeneralLimiterCount(); n != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", n)
	}
}

// TestProjectAPIChain_CSRFTokenThenWrite はトークン取得後、同じCookieで書き込めることを検証する。
func TestProjectAPIChain_CSRFTokenThenWrite(t *testing.T) {
	api := newProjectAPI(t, 100)

	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Token == "" {
		t.Fatalf("csrf-token: %v %q", err, body.Token)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != body.Token {
		t.Fatalf("csrf cookies = %v, want one cookie carrying the returned token", cookies)
	}

	if status, _ := api.send(t, http.MethodPost, "/api/projects/p-7/tasks", "alice-token", body.Token); status != http.StatusCreated {
		t.Errorf("create with fetched token: %d", status)
	}
}
