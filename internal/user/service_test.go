package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/repository"
	"github.com/hitoshi/projecify/internal/repository/repotest"
	"github.com/hitoshi/projecify/internal/security"
)

// --- モック ---

type mockUserRepo struct {
	repository.UserRepository
	findByIDFn      func(ctx context.Context, id string) (*model.User, error)
	updateProfileFn func(ctx context.Context, user *model.User) error
	deleteByIDFn    func(ctx context.Context, id string) error
	searchFn        func(ctx context.Context, query string, offset, limit int) ([]*model.User, int, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}
func (m *mockUserRepo) Search(ctx context.Context, query string, offset, limit int) ([]*model.User, int, error) {
	return m.searchFn(ctx, query, offset, limit)
}

type mockSessionRepo struct {
	repository.SessionRepository
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

type mockValidator struct {
	validateFn func(rawURL string) error
	calls      int
}

func (m *mockValidator) ValidateURL(rawURL string) error {
	m.calls++
	if m.validateFn != nil {
		return m.validateFn(rawURL)
	}
	return nil
}

var _ URLValidator = (*mockValidator)(nil)
var _ URLValidator = security.NewSSRFGuard()

func assertAPIError(t *testing.T, err error, wantCode, wantMessage string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != wantCode || apiErr.Message != wantMessage {
		t.Errorf("APIError = {%s %q}, want {%s %q}", apiErr.Code, apiErr.Message, wantCode, wantMessage)
	}
}

func newStoreService(store *repotest.Store, validator URLValidator) *Service {
	return NewService(store.Users(), store.Sessions(), store.Members(), validator,
		security.NewTextSanitizer(), ServiceConfig{TrustedImageBaseURL: "http://localhost:8080/uploads"})
}

// --- テスト ---

// TestService_Delete は退会処理がセッションとユーザーを順に削除することを検証する。
func TestService_Delete(t *testing.T) {
	var order []string

	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "test@example.com"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			order = append(order, "user")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			order = append(order, "sessions")
			return nil
		},
	}

	svc := NewService(userRepo, sessionRepo, nil, &mockValidator{}, security.NewTextSanitizer(), ServiceConfig{})

	if err := svc.Delete(context.Background(), "user-1", "user-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(order) != 2 || order[0] != "sessions" || order[1] != "user" {
		t.Errorf("delete order = %v, want [sessions user]", order)
	}
}

// TestService_Delete_OtherUser は他人のアカウント削除が拒否されることを検証する。
func TestService_Delete_OtherUser(t *testing.T) {
	userRepo := &mockUserRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			t.Error("DeleteByID must not be called")
			return nil
		},
	}
	svc := NewService(userRepo, nil, nil, &mockValidator{}, security.NewTextSanitizer(), ServiceConfig{})

	err := svc.Delete(context.Background(), "user-2", "user-1")
	assertAPIError(t, err, model.ErrCodeUnauthorized, "Unauthorized")
}

// TestService_Delete_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Delete_UserNotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, nil, nil, &mockValidator{}, security.NewTextSanitizer(), ServiceConfig{})

	err := svc.Delete(context.Background(), "nonexistent-user", "nonexistent-user")
	assertAPIError(t, err, model.ErrCodeNotFound, "User not found")
}

func TestService_Delete_SessionErrorStops(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			t.Error("DeleteByID must not be called after session failure")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return errors.New("connection reset")
		},
	}
	svc := NewService(userRepo, sessionRepo, nil, &mockValidator{}, security.NewTextSanitizer(), ServiceConfig{})

	if err := svc.Delete(context.Background(), "user-1", "user-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestService_Get(t *testing.T) {
	store := repotest.NewStore()
	owner := store.AddUser("u1", "owner@example.com", "Owner")
	store.AddUser("u2", "other@example.com", "Other")
	ctx := context.Background()
	if err := store.Projects().CreateWithOwner(ctx, &model.Project{
		ID: "p1", Name: "Roadmap", Status: model.ProjectStatusNotStarted, OwnerID: owner.ID,
	}); err != nil {
		t.Fatal(err)
	}
	svc := newStoreService(store, &mockValidator{})

	profile, err := svc.Get(ctx, "u1", "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if profile.User.Email != "owner@example.com" || len(profile.Memberships) != 1 {
		t.Fatalf("profile = %+v", profile)
	}
	if m := profile.Memberships[0]; m.ProjectName != "Roadmap" || m.Role != model.RoleOwner {
		t.Errorf("membership = %+v", m)
	}

	profile, err = svc.Get(ctx, "u2", "u2")
	if err != nil || profile.Memberships == nil || len(profile.Memberships) != 0 {
		t.Errorf("Get(u2) = %+v, %v, want empty memberships", profile, err)
	}

	// 他人のプロフィールは所属プロジェクトを含むため参照できない
	_, err = svc.Get(ctx, "u1", "u2")
	assertAPIError(t, err, model.ErrCodeUnauthorized, "Unauthorized")

	_, err = svc.Get(ctx, "missing", "missing")
	assertAPIError(t, err, model.ErrCodeNotFound, "User not found")
}

func TestService_Update(t *testing.T) {
	store := repotest.NewStore()
	store.AddUser("u1", "a@example.com", "Alice")
	validator := &mockValidator{
		validateFn: func(rawURL string) error {
			if rawURL == "http://169.254.169.254/latest" {
				return errors.New("blocked")
			}
			return nil
		},
	}
	svc := newStoreService(store, validator)
	ctx := context.Background()

	u, err := svc.Update(ctx, "u1", "u1", UpdateInput{
		Name:  model.Some(" <b>Alice</b> Smith "),
		Image: model.Some("https://cdn.example.com/a.png"),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if u.Name != "Alice Smith" || u.Image == nil || *u.Image != "https://cdn.example.com/a.png" {
		t.Errorf("user = %+v", u)
	}

	// 自サーバーのアップロード先は検査しない
	calls := validator.calls
	u, err = svc.Update(ctx, "u1", "u1", UpdateInput{Image: model.Some("http://localhost:8080/uploads/x.png")})
	if err != nil || validator.calls != calls {
		t.Errorf("trusted upload url: err = %v, validator calls = %d", err, validator.calls-calls)
	}
	if u.Name != "Alice Smith" {
		t.Errorf("PATCH without name changed it: %q", u.Name)
	}

	_, err = svc.Update(ctx, "u1", "u1", UpdateInput{Image: model.Some("http://169.254.169.254/latest")})
	assertAPIError(t, err, model.ErrCodeValidation, "Invalid image URL")

	u, err = svc.Update(ctx, "u1", "u1", UpdateInput{Image: model.Null[string]()})
	if err != nil || u.Image != nil {
		t.Errorf("null image should clear: %+v, %v", u, err)
	}

	_, err = svc.Update(ctx, "u1", "u2", UpdateInput{Name: model.Some("Mallory")})
	assertAPIError(t, err, model.ErrCodeUnauthorized, "Unauthorized")
}

func TestService_Update_RealGuardRejectsPrivateHosts(t *testing.T) {
	store := repotest.NewStore()
	store.AddUser("u1", "a@example.com", "Alice")
	svc := newStoreService(store, security.NewSSRFGuard())

	for _, raw := range []string{"http://127.0.0.1/a.png", "ftp://example.com/a.png", "http://10.0.0.5/a.png"} {
		_, err := svc.Update(context.Background(), "u1", "u1", UpdateInput{Image: model.Some(raw)})
		assertAPIError(t, err, model.ErrCodeValidation, "Invalid image URL")
	}
}

func TestService_Search(t *testing.T) {
	var gotOffset, gotLimit int
	userRepo := &mockUserRepo{
		searchFn: func(ctx context.Context, query string, offset, limit int) ([]*model.User, int, error) {
			gotOffset, gotLimit = offset, limit
			return nil, 42, nil
		},
	}
	svc := NewService(userRepo, nil, nil, &mockValidator{}, security.NewTextSanitizer(), ServiceConfig{})

	res, err := svc.Search(context.Background(), "ali", 3, 20)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotOffset != 40 || gotLimit != 20 {
		t.Errorf("offset/limit = %d/%d, want 40/20", gotOffset, gotLimit)
	}
	if res.Total != 42 || res.Page != 3 || res.Limit != 20 || res.Users == nil {
		t.Errorf("result = %+v", res)
	}

	tests := []struct {
		name        string
		page, limit int
		msg         string
	}{
		{"page zero", 0, 10, "Invalid page"},
		{"limit zero", 1, 0, "Invalid limit"},
		{"limit too large", 1, MaxSearchLimit + 1, "Invalid limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(context.Background(), "", tt.page, tt.limit)
			assertAPIError(t, err, model.ErrCodeValidation, tt.msg)
		})
	}
}

func TestService_Search_InMemory(t *testing.T) {
	store := repotest.NewStore()
	store.AddUser("u1", "alice@example.com", "Alice")
	store.AddUser("u2", "bob@example.com", "Bob")
	store.AddUser("u3", "carol@alice.dev", "Carol")
	svc := newStoreService(store, &mockValidator{})

	res, err := svc.Search(context.Background(), "ALICE", 1, DefaultSearchLimit)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Total != 2 || len(res.Users) != 2 {
		t.Errorf("result = %d users, total %d; want 2", len(res.Users), res.Total)
	}
}
