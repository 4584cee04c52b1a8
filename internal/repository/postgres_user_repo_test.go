package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

// 各リポジトリ実装がインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
	var _ SessionPurger = (*PostgresSessionRepo)(nil)
	var _ ProjectRepository = (*PostgresProjectRepo)(nil)
	var _ MembershipRepository = (*PostgresMembershipRepo)(nil)
	var _ TaskRepository = (*PostgresTaskRepo)(nil)
}

// コンストラクタがnil DBでも初期化できることを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresUserRepo(nil) == nil {
		t.Error("NewPostgresUserRepo returned nil")
	}
	if NewPostgresProjectRepo(nil) == nil {
		t.Error("NewPostgresProjectRepo returned nil")
	}
	if NewPostgresMembershipRepo(nil) == nil {
		t.Error("NewPostgresMembershipRepo returned nil")
	}
	if NewPostgresTaskRepo(nil) == nil {
		t.Error("NewPostgresTaskRepo returned nil")
	}
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pq.Error{Code: "23505", Constraint: "project_members_pkey"}, ErrDuplicate},
		{"foreign key violation", &pq.Error{Code: "23503", Constraint: "tasks_assigned_to_id_fkey"}, ErrForeignKey},
		{"wrapped unique violation", fmt.Errorf("exec: %w", &pq.Error{Code: "23505"}), ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("translateError() = %v, want errors.Is %v", got, tt.want)
			}
		})
	}

	other := &pq.Error{Code: "42601"}
	if got := translateError(other); got != error(other) {
		t.Errorf("translateError(syntax error) = %v, want unchanged", got)
	}
	plain := errors.New("boom")
	if got := translateError(plain); got != plain {
		t.Errorf("translateError(plain) = %v, want unchanged", got)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"alice":   "alice",
		"100%":    `100\%`,
		"a_b":     `a\_b`,
		`back\sl`: `back\\sl`,
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeResult struct{ n int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, nil }

func TestRequireAffected(t *testing.T) {
	if err := requireAffected(fakeResult{n: 0}); !errors.Is(err, ErrNotFound) {
		t.Errorf("requireAffected(0) = %v, want ErrNotFound", err)
	}
	if err := requireAffected(fakeResult{n: 1}); err != nil {
		t.Errorf("requireAffected(1) = %v, want nil", err)
	}
}
