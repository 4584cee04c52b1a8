// Package repotest はサービス層・ハンドラ層のテストで使うインメモリのリポジトリ実装を提供する。
// PostgreSQLの外部キー・一意制約・CASCADE削除の挙動を再現する。
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/repository"
)

// Store は全リポジトリが共有するインメモリ状態。
type Store struct {
	mu         sync.Mutex
	users      map[string]*model.User
	identities map[string]*model.Identity
	sessions   map[string]*model.Session
	projects   map[string]*model.Project
	members    map[memberKey]*model.Membership
	tasks      map[string]*model.Task
	now        func() time.Time
}

type memberKey struct{ projectID, userID string }

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		users:      make(map[string]*model.User),
		identities: make(map[string]*model.Identity),
		sessions:   make(map[string]*model.Session),
		projects:   make(map[string]*model.Project),
		members:    make(map[memberKey]*model.Membership),
		tasks:      make(map[string]*model.Task),
		now:        time.Now,
	}
}

// Users はUserRepositoryを返す。
func (s *Store) Users() *UserRepo { return &UserRepo{s} }

// Identities はIdentityRepositoryを返す。
func (s *Store) Identities() *IdentityRepo { return &IdentityRepo{s} }

// Sessions はSessionRepositoryを返す。
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s} }

// Projects はProjectRepositoryを返す。
func (s *Store) Projects() *ProjectRepo { return &ProjectRepo{s} }

// Members はMembershipRepositoryを返す。
func (s *Store) Members() *MembershipRepo { return &MembershipRepo{s} }

// Tasks はTaskRepositoryを返す。
func (s *Store) Tasks() *TaskRepo { return &TaskRepo{s} }

// TaskCount は保存されているタスク数を返す。
func (s *Store) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// AddUser はテスト用ユーザーを直接登録する。
func (s *Store) AddUser(id, email, name string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	u := &model.User{ID: id, Email: strings.ToLower(email), Name: name, CreatedAt: now, UpdatedAt: now}
	s.users[id] = u
	return cloneUser(u)
}

func cloneUser(u *model.User) *model.User {
	c := *u
	return &c
}

// --- users ---

// UserRepo はインメモリのUserRepository。
type UserRepo struct{ s *Store }

func (r *UserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

func (r *UserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.findUserByEmail(email), nil
}

func (s *Store) findUserByEmail(email string) *model.User {
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u)
		}
	}
	return nil
}

func (r *UserRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.findUserByEmail(user.Email) != nil {
		return repository.ErrDuplicate
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepo) CreateWithIdentity(_ context.Context, user *model.User, identity *model.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.findUserByEmail(user.Email) != nil {
		return repository.ErrDuplicate
	}
	r.s.users[user.ID] = cloneUser(user)
	id := *identity
	r.s.identities[identity.ID] = &id
	return nil
}

func (r *UserRepo) UpdateProfile(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Name = user.Name
	u.Image = user.Image
	u.UpdatedAt = user.UpdatedAt
	return nil
}

// DeleteByID はユーザーを削除し、外部キーのCASCADE / SET NULLを再現する。
func (r *UserRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)
	for k, ident := range r.s.identities {
		if ident.UserID == id {
			delete(r.s.identities, k)
		}
	}
	for k, sess := range r.s.sessions {
		if sess.UserID == id {
			delete(r.s.sessions, k)
		}
	}
	for pid, p := range r.s.projects {
		if p.OwnerID == id {
			r.s.deleteProject(pid)
		}
	}
	for k := range r.s.members {
		if k.userID == id {
			delete(r.s.members, k)
		}
	}
	for _, t := range r.s.tasks {
		if t.AssignedToID != nil && *t.AssignedToID == id {
			t.AssignedToID = nil
		}
	}
	return nil
}

func (r *UserRepo) Search(_ context.Context, query string, offset, limit int) ([]*model.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q := strings.ToLower(query)
	var matched []*model.User
	for _, u := range r.s.users {
		if q == "" || strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(u.Email, q) {
			matched = append(matched, cloneUser(u))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// --- identities ---

// IdentityRepo はインメモリのIdentityRepository。
type IdentityRepo struct{ s *Store }

func (r *IdentityRepo) FindByProviderAndProviderUserID(_ context.Context, provider, providerUserID string) (*model.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.identities {
		if i.Provider == provider && i.ProviderUserID == providerUserID {
			c := *i
			return &c, nil
		}
	}
	return nil, nil
}

func (r *IdentityRepo) Create(_ context.Context, identity *model.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[identity.UserID]; !ok {
		return repository.ErrForeignKey
	}
	c := *identity
	r.s.identities[identity.ID] = &c
	return nil
}

// --- sessions ---

// SessionRepo はインメモリのSessionRepository / SessionPurger。
type SessionRepo struct{ s *Store }

func (r *SessionRepo) Create(_ context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[session.UserID]; !ok {
		return repository.ErrForeignKey
	}
	c := *session
	r.s.sessions[session.ID] = &c
	return nil
}

func (r *SessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok || !sess.ExpiresAt.After(r.s.now()) {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (r *SessionRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

func (r *SessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, sess := range r.s.sessions {
		if sess.UserID == userID {
			delete(r.s.sessions, k)
		}
	}
	return nil
}

func (r *SessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, sess := range r.s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(r.s.sessions, k)
			n++
		}
	}
	return n, nil
}

// --- projects ---

// ProjectRepo はインメモリのProjectRepository。
type ProjectRepo struct{ s *Store }

func (r *ProjectRepo) FindByID(_ context.Context, id string) (*model.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.projects[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (r *ProjectRepo) ListByUser(_ context.Context, userID string) ([]*model.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*model.Project
	for id, p := range r.s.projects {
		_, member := r.s.members[memberKey{id, userID}]
		if p.OwnerID == userID || member {
			c := *p
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *ProjectRepo) CreateWithOwner(_ context.Context, p *model.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[p.OwnerID]; !ok {
		return repository.ErrForeignKey
	}
	if _, ok := r.s.projects[p.ID]; ok {
		return repository.ErrDuplicate
	}
	c := *p
	r.s.projects[p.ID] = &c
	r.s.members[memberKey{p.ID, p.OwnerID}] = &model.Membership{
		ProjectID: p.ID, UserID: p.OwnerID, Role: model.RoleOwner, JoinedAt: p.CreatedAt,
	}
	return nil
}

func (r *ProjectRepo) Update(_ context.Context, p *model.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.projects[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Name, cur.Description, cur.Status, cur.DueDate, cur.UpdatedAt = p.Name, p.Description, p.Status, p.DueDate, p.UpdatedAt
	return nil
}

func (r *ProjectRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[id]; !ok {
		return repository.ErrNotFound
	}
	r.s.deleteProject(id)
	return nil
}

func (s *Store) deleteProject(id string) {
	delete(s.projects, id)
	for k := range s.members {
		if k.projectID == id {
			delete(s.members, k)
		}
	}
	for tid, t := range s.tasks {
		if t.ProjectID == id {
			delete(s.tasks, tid)
		}
	}
}

// --- memberships ---

// MembershipRepo はインメモリのMembershipRepository。
type MembershipRepo struct{ s *Store }

func (r *MembershipRepo) Find(_ context.Context, projectID, userID string) (*model.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.members[memberKey{projectID, userID}]; ok {
		c := *m
		return &c, nil
	}
	return nil, nil
}

func (r *MembershipRepo) ListByProject(_ context.Context, projectID string) ([]*model.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*model.Membership
	for k, m := range r.s.members {
		if k.projectID != projectID {
			continue
		}
		c := *m
		if u, ok := r.s.users[k.userID]; ok {
			summary := u.Summary()
			c.User = &summary
		}
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result, nil
}

func (r *MembershipRepo) ListByUser(_ context.Context, userID string) ([]model.ProfileMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []model.ProfileMembership
	for k, m := range r.s.members {
		if k.userID != userID {
			continue
		}
		p := r.s.projects[k.projectID]
		result = append(result, model.ProfileMembership{
			ProjectID: p.ID, ProjectName: p.Name, ProjectStatus: p.Status, Role: m.Role, JoinedAt: m.JoinedAt,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.After(result[j].JoinedAt) })
	return result, nil
}

func (r *MembershipRepo) Create(_ context.Context, m *model.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey{m.ProjectID, m.UserID}
	if _, ok := r.s.members[key]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := r.s.projects[m.ProjectID]; !ok {
		return repository.ErrForeignKey
	}
	if _, ok := r.s.users[m.UserID]; !ok {
		return repository.ErrForeignKey
	}
	c := *m
	c.User = nil
	r.s.members[key] = &c
	return nil
}

func (r *MembershipRepo) UpdateRole(_ context.Context, projectID, userID string, role model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[memberKey{projectID, userID}]
	if !ok {
		return repository.ErrNotFound
	}
	m.Role = role
	return nil
}

func (r *MembershipRepo) Delete(_ context.Context, projectID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := memberKey{projectID, userID}
	if _, ok := r.s.members[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.members, key)
	return nil
}

// --- tasks ---

// TaskRepo はインメモリのTaskRepository。
type TaskRepo struct{ s *Store }

// hydrate は担当者とプロジェクトのサマリーを埋めたコピーを返す。
func (s *Store) hydrate(t *model.Task) *model.Task {
	c := *t
	c.AssignedTo = nil
	if t.AssignedToID != nil {
		if u, ok := s.users[*t.AssignedToID]; ok {
			summary := u.Summary()
			c.AssignedTo = &summary
		}
	}
	if p, ok := s.projects[t.ProjectID]; ok {
		c.Project = &model.ProjectSummary{ID: p.ID, Name: p.Name, Status: p.Status}
	}
	return &c
}

func (s *Store) listTasks(match func(*model.Task) bool) []*model.Task {
	var result []*model.Task
	for _, t := range s.tasks {
		if match(t) {
			result = append(result, s.hydrate(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

func (r *TaskRepo) FindByID(_ context.Context, id string) (*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tasks[id]; ok {
		return r.s.hydrate(t), nil
	}
	return nil, nil
}

func (r *TaskRepo) ListByProject(_ context.Context, projectID string) ([]*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.listTasks(func(t *model.Task) bool { return t.ProjectID == projectID }), nil
}

func (r *TaskRepo) ListByAssignee(_ context.Context, userID string) ([]*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.listTasks(func(t *model.Task) bool {
		return t.AssignedToID != nil && *t.AssignedToID == userID
	}), nil
}

func (s *Store) checkTaskRefs(t *model.Task) error {
	if _, ok := s.projects[t.ProjectID]; !ok {
		return repository.ErrForeignKey
	}
	if t.AssignedToID != nil {
		if _, ok := s.users[*t.AssignedToID]; !ok {
			return repository.ErrForeignKey
		}
	}
	return nil
}

func (r *TaskRepo) Create(_ context.Context, t *model.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.checkTaskRefs(t); err != nil {
		return err
	}
	c := *t
	c.AssignedTo, c.Project = nil, nil
	r.s.tasks[t.ID] = &c
	return nil
}

func (r *TaskRepo) Update(_ context.Context, t *model.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[t.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := r.s.checkTaskRefs(t); err != nil {
		return err
	}
	c := *t
	c.AssignedTo, c.Project = nil, nil
	r.s.tasks[t.ID] = &c
	return nil
}

func (r *TaskRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.tasks, id)
	return nil
}

// compile-time interface checks
var (
	_ repository.UserRepository       = (*UserRepo)(nil)
	_ repository.IdentityRepository   = (*IdentityRepo)(nil)
	_ repository.SessionRepository    = (*SessionRepo)(nil)
	_ repository.SessionPurger        = (*SessionRepo)(nil)
	_ repository.ProjectRepository    = (*ProjectRepo)(nil)
	_ repository.MembershipRepository = (*MembershipRepo)(nil)
	_ repository.TaskRepository       = (*TaskRepo)(nil)
)
