package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/project"
)

// --- モック定義 ---

type mockMemberService struct {
	listFn       func(ctx context.Context, projectID, userID string) ([]*model.Membership, error)
	addFn        func(ctx context.Context, projectID, requesterID, email, role string) (*model.Membership, error)
	updateRoleFn func(ctx context.Context, projectID, requesterID, targetUserID, role string) (*model.Membership, error)
	removeFn     func(ctx context.Context, projectID, requesterID, targetUserID string) error
}

func (m *mockMemberService) ListMembers(ctx context.Context, projectID, userID string) ([]*model.Membership, error) {
	if m.listFn != nil {
		return m.listFn(ctx, projectID, userID)
	}
	return nil, nil
}

func (m *mockMemberService) AddMember(ctx context.Context, projectID, requesterID, email, role string) (*model.Membership, error) {
	if m.addFn != nil {
		return m.addFn(ctx, projectID, requesterID, email, role)
	}
	return nil, nil
}

func (m *mockMemberService) UpdateMemberRole(ctx context.Context, projectID, requesterID, targetUserID, role string) (*model.Membership, error) {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, projectID, requesterID, targetUserID, role)
	}
	return &model.Membership{ProjectID: projectID, UserID: targetUserID, Role: model.Role(role)}, nil
}

func (m *mockMemberService) RemoveMember(ctx context.Context, projectID, requesterID, targetUserID string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, projectID, requesterID, targetUserID)
	}
	return nil
}

var (
	_ MemberServiceInterface = (*mockMemberService)(nil)
	_ MemberServiceInterface = (*project.Service)(nil)
)

// --- テスト ---

func TestMemberHandler_Add(t *testing.T) {
	var gotEmail, gotRole string
	svc := &mockMemberService{
		addFn: func(ctx context.Context, projectID, requesterID, email, role string) (*model.Membership, error) {
			gotEmail, gotRole = email, role
			return &model.Membership{
				ProjectID: projectID, UserID: "u2", Role: model.RoleMember,
				User: &model.UserSummary{ID: "u2", Name: "Bob", Email: email},
			}, nil
		},
	}

	w := httptest.NewRecorder()
	SetupMemberRoutes(svc).ServeHTTP(w, requestAs("u1", http.MethodPost, "/api/projects/p1/members",
		strings.NewReader(`{"email":"bob@example.com"}`)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if gotEmail != "bob@example.com" || gotRole != "" {
		t.Errorf("email = %q role = %q", gotEmail, gotRole)
	}
	var resp memberResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != "u2" || resp.User == nil || resp.User.Name != "Bob" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestMemberHandler_Add_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"duplicate", model.NewAlreadyMemberError(), http.StatusConflict, "User is already a member"},
		{"unknown user", model.NewNotFoundError("User"), http.StatusNotFound, "User not found"},
		{"owner role", model.NewValidationError("Invalid role"), http.StatusBadRequest, "Invalid role"},
		{"member requester", model.NewUnauthorizedError(), http.StatusUnauthorized, "Unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockMemberService{
				addFn: func(ctx context.Context, projectID, requesterID, email, role string) (*model.Membership, error) {
					return nil, tt.err
				},
			}
			w := httptest.NewRecorder()
			SetupMemberRoutes(svc).ServeHTTP(w, requestAs("u1", http.MethodPost, "/api/projects/p1/members",
				strings.NewReader(`{"email":"bob@example.com","role":"OWNER"}`)))

			if w.Code != tt.wantStatus || w.Body.String() != tt.wantBody {
				t.Errorf("response = %d %q", w.Code, w.Body.String())
			}
		})
	}
}

func TestMemberHandler_UpdateRole_Addressing(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantTarget string
		wantStatus int
	}{
		{"path PUT", http.MethodPut, "/api/projects/p1/members/u2", `{"role":"ADMIN"}`, "u2", http.StatusOK},
		{"path PATCH", http.MethodPatch, "/api/projects/p1/members/u2", `{"role":"ADMIN"}`, "u2", http.StatusOK},
		{"path wins over body", http.MethodPatch, "/api/projects/p1/members/u2", `{"userId":"u3","role":"ADMIN"}`, "u2", http.StatusOK},
		{"legacy body", http.MethodPatch, "/api/projects/p1/members", `{"userId":"u3","role":"MEMBER"}`, "u3", http.StatusOK},
		{"legacy body without userId", http.MethodPatch, "/api/projects/p1/members", `{"role":"MEMBER"}`, "", http.StatusBadRequest},
		{"missing role", http.MethodPut, "/api/projects/p1/members/u2", `{}`, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTarget string
			svc := &mockMemberService{
				updateRoleFn: func(ctx context.Context, projectID, requesterID, targetUserID, role string) (*model.Membership, error) {
					gotTarget = targetUserID
					return &model.Membership{ProjectID: projectID, UserID: targetUserID, Role: model.Role(role)}, nil
				},
			}
			w := httptest.NewRecorder()
			SetupMemberRoutes(svc).ServeHTTP(w, requestAs("u1", tt.method, tt.path, strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if gotTarget != tt.wantTarget {
				t.Errorf("target = %q, want %q", gotTarget, tt.wantTarget)
			}
		})
	}
}

func TestMemberHandler_UpdateRole_OwnerImmutable(t *testing.T) {
	svc := &mockMemberService{
		updateRoleFn: func(ctx context.Context, projectID, requesterID, targetUserID, role string) (*model.Membership, error) {
			return nil, model.ErrOwnerRoleImmutable
		},
	}
	w := httptest.NewRecorder()
	SetupMemberRoutes(svc).ServeHTTP(w, requestAs("u1", http.MethodPatch, "/api/projects/p1/members/u1",
		strings.NewReader(`{"role":"MEMBER"}`)))

	if w.Code != http.StatusBadRequest || w.Body.String() != "Cannot modify owner's role" {
		t.Errorf("response = %d %q", w.Code, w.Body.String())
	}
}

func TestMemberHandler_Remove_Addressing(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantTarget string
		wantStatus int
	}{
		{"path", "/api/projects/p1/members/u2", "", "u2", http.StatusNoContent},
		{"legacy body", "/api/projects/p1/members", `{"userId":"u3"}`, "u3", http.StatusNoContent},
		{"legacy body without userId", "/api/projects/p1/members", `{}`, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTarget string
			svc := &mockMemberService{
				removeFn: func(ctx context.Context, projectID, requesterID, targetUserID string) error {
					gotTarget = targetUserID
					return nil
				},
			}
			w := httptest.NewRecorder()
			SetupMemberRoutes(svc).ServeHTTP(w, requestAs("u1", http.MethodDelete, tt.path, strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if gotTarget != tt.wantTarget {
				t.Errorf("target = %q, want %q", gotTarget, tt.wantTarget)
			}
		})
	}
}

func TestMemberHandler_Remove_Owner(t *testing.T) {
	svc := &mockMemberService{
		removeFn: func(ctx context.Context, projectID, requesterID, targetUserID string) error {
			return model.ErrOwnerNotRemovable
		},
	}
	w := httptest.NewRecorder()
	SetupMemberRoutes(svc).ServeHTTP(w, requestAs("u2", http.MethodDelete, "/api/projects/p1/members/u1", nil))

	if w.Code != http.StatusBadRequest || w.Body.String() != "Cannot remove project owner" {
		t.Errorf("response = %d %q", w.Code, w.Body.String())
	}
}
