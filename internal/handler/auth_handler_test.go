package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/projecify/internal/auth"
	"github.com/hitoshi/projecify/internal/middleware"
	"github.com/hitoshi/projecify/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn          func(ctx context.Context, email, password string) (*auth.IssuedSession, error)
	oauthDisabled    bool
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*auth.IssuedSession, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	logoutAllFn      func(ctx context.Context, userID string) error
	getCurrentUserFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.IssuedSession, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) OAuthEnabled() bool { return !m.oauthDisabled }

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*auth.IssuedSession, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) LogoutAll(ctx context.Context, userID string) error {
	if m.logoutAllFn != nil {
		return m.logoutAllFn(ctx, userID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, userID)
	}
	return &model.User{ID: userID, Name: "Alice", Email: "alice@example.com"}, nil
}

var (
	_ AuthServiceInterface = (*mockAuthService)(nil)
	_ AuthServiceInterface = (*auth.Service)(nil)
)

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL:       "http://localhost:3000",
		SessionMaxAge: 86400,
	}
}

// withSession はセッションミドルウェア通過後のリクエストを作る。
func withSession(req *http.Request, sessionID, userID string, expires time.Time) *http.Request {
	ctx := middleware.ContextWithSession(req.Context(), &model.Session{ID: sessionID, UserID: userID, ExpiresAt: expires})
	return req.WithContext(ctx)
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- Register ---

func TestAuthHandler_Register_Success(t *testing.T) {
	var got auth.RegisterInput
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
			got = in
			return &model.User{ID: "u1", Name: in.Name, Email: in.Email, PasswordHash: "secret-hash"}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	body := `{"email":"alice@example.com","name":"Alice","password":"password123"}`
	w := httptest.NewRecorder()
	h.Register(w, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
	if got.Email != "alice@example.com" || got.Name != "Alice" || got.Password != "password123" {
		t.Errorf("input = %+v", got)
	}
	if strings.Contains(w.Body.String(), "secret-hash") {
		t.Error("response must not contain password hash")
	}

	var resp struct {
		User registeredUserResponse `json:"user"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.ID != "u1" || resp.User.Email != "alice@example.com" {
		t.Errorf("user = %+v", resp.User)
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantBody   string
	}{
		{"invalid json", `{`, nil, http.StatusBadRequest, "Invalid request body"},
		{"missing fields", `{"email":""}`, model.NewValidationError("Missing required fields"), http.StatusBadRequest, "Missing required fields"},
		{"user exists", `{"email":"a@example.com","name":"A","password":"password123"}`, model.NewUserExistsError(), http.StatusBadRequest, "User already exists"},
		{"db failure", `{"email":"a@example.com","name":"A","password":"password123"}`, errors.New("db down"), http.StatusInternalServerError, "Internal Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
					return nil, tt.svcErr
				},
			}
			h := NewAuthHandler(svc, testAuthConfig())

			w := httptest.NewRecorder()
			h.Register(w, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus || w.Body.String() != tt.wantBody {
				t.Errorf("response = %d %q, want %d %q", w.Code, w.Body.String(), tt.wantStatus, tt.wantBody)
			}
		})
	}
}

// --- Login ---

func TestAuthHandler_Login_SetsSessionCookie(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.IssuedSession, error) {
			return &auth.IssuedSession{
				Session: &model.Session{ID: "sess-1", UserID: "u1", ExpiresAt: expires},
				Token:   "signed-token",
			}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"password123"}`)))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	cookie := findCookie(resp, middleware.SessionCookieName)
	if cookie == nil {
		t.Fatal("session cookie not set")
	}
	if cookie.Value != "signed-token" || !cookie.HttpOnly || cookie.MaxAge != 86400 || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie = %+v", cookie)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User.ID != "u1" || !body.Expires.Equal(expires) {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`)))

	if w.Code != http.StatusUnauthorized || w.Body.String() != "Invalid credentials" {
		t.Errorf("response = %d %q", w.Code, w.Body.String())
	}
	if findCookie(w.Result(), middleware.SessionCookieName) != nil {
		t.Error("session cookie must not be set on failure")
	}
}

// --- Google OAuth ---

func TestAuthHandler_GoogleLogin_RedirectsWithState(t *testing.T) {
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	w := httptest.NewRecorder()
	h.GoogleLogin(w, httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	state := findCookie(resp, oauthStateCookie)
	if state == nil || state.Value == "" || !state.HttpOnly {
		t.Fatalf("state cookie = %+v", state)
	}
	if loc := resp.Header.Get("Location"); !strings.HasSuffix(loc, "state="+state.Value) {
		t.Errorf("Location = %q, want state %q", loc, state.Value)
	}
}

func TestAuthHandler_GoogleLogin_DisabledReturns404(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{oauthDisabled: true}, testAuthConfig())

	w := httptest.NewRecorder()
	h.GoogleLogin(w, httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAuthHandler_GoogleCallback_Success(t *testing.T) {
	var gotCode string
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*auth.IssuedSession, error) {
			gotCode = code
			return &auth.IssuedSession{
				Session: &model.Session{ID: "sess-oauth", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
				Token:   "oauth-token",
			}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=test-code&state=test-state", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "test-state"})
	w := httptest.NewRecorder()
	h.GoogleCallback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "http://localhost:3000" {
		t.Errorf("Location = %q", loc)
	}
	if gotCode != "test-code" {
		t.Errorf("code = %q", gotCode)
	}
	if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.Value != "oauth-token" {
		t.Errorf("session cookie = %+v", c)
	}
	if c := findCookie(resp, oauthStateCookie); c == nil || c.MaxAge >= 0 {
		t.Errorf("state cookie should be cleared: %+v", c)
	}
}

func TestAuthHandler_GoogleCallback_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		cookie     string
		wantStatus int
	}{
		{"state mismatch", "?code=c&state=a", "b", http.StatusBadRequest},
		{"no state cookie", "?code=c&state=a", "", http.StatusBadRequest},
		{"empty state", "?code=c", "", http.StatusBadRequest},
		{"missing code", "?state=a", "a", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				handleCallbackFn: func(ctx context.Context, code string) (*auth.IssuedSession, error) {
					t.Fatal("HandleCallback should not be called")
					return nil, nil
				},
			}
			h := NewAuthHandler(svc, testAuthConfig())

			req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			h.GoogleCallback(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// --- Session ---

func TestAuthHandler_Logout_DeletesSessionAndClearsCookie(t *testing.T) {
	var deleted string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			deleted = sessionID
			return errors.New("db down")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), "sess-1", "u1", time.Now().Add(time.Hour))
	w := httptest.NewRecorder()
	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if deleted != "sess-1" {
		t.Errorf("deleted session = %q", deleted)
	}
	// 削除に失敗してもCookieはクリアする
	if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("session cookie should be cleared: %+v", c)
	}
}

func TestAuthHandler_GetSession(t *testing.T) {
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	w := httptest.NewRecorder()
	h.GetSession(w, withSession(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), "s1", "u1", expires))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body sessionResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User.ID != "u1" || body.User.Name != "Alice" || !body.Expires.Equal(expires) {
		t.Errorf("body = %+v", body)
	}

	w = httptest.NewRecorder()
	h.GetSession(w, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("without session: status = %d, want 401", w.Code)
	}
}

func TestAuthHandler_DeleteSessions(t *testing.T) {
	var purged string
	svc := &mockAuthService{
		logoutAllFn: func(ctx context.Context, userID string) error {
			purged = userID
			return nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	w := httptest.NewRecorder()
	h.DeleteSessions(w, withSession(httptest.NewRequest(http.MethodDelete, "/api/auth/session", nil), "s1", "u1", time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if purged != "u1" {
		t.Errorf("purged user = %q", purged)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["message"] != "Session deleted successfully" {
		t.Errorf("body = %v", body)
	}
	if c := findCookie(w.Result(), middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie should be cleared: %+v", c)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	w := httptest.NewRecorder()
	h.Me(w, withSession(httptest.NewRequest(http.MethodGet, "/api/me", nil), "s1", "u1", time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body userResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != "u1" || body.Email != "alice@example.com" {
		t.Errorf("body = %+v", body)
	}
}
