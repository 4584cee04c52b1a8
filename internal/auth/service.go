// Package auth はパスワード認証、OAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/projecify/internal/model"
	"github.com/hitoshi/projecify/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// EventRecorder は認証イベントの記録先。
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

// IssuedSession は発行したセッションと、Cookieに格納する署名付きトークンの組。
type IssuedSession struct {
	Session *model.Session
	Token   string
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	tokens      *TokenSigner
	events      EventRecorder
	config      ServiceConfig
}

// NewService はServiceを生成する。oauthがnilの場合、OAuthログインは無効になる。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	tokens *TokenSigner,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		config:      config,
	}
}

// SetEventRecorder は認証イベントの記録先を設定する。
func (s *Service) SetEventRecorder(r EventRecorder) {
	s.events = r
}

func (s *Service) record(event, outcome string) {
	if s.events != nil {
		s.events.RecordAuthEvent(event, outcome)
	}
}

// OAuthEnabled はOAuthプロバイダーが設定されているかを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// NormalizeEmail はメールアドレスの前後空白を除去し小文字化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はメールアドレスとパスワードでユーザーを登録する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" || in.Password == "" {
		return nil, model.NewValidationError("Missing required fields")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewValidationError("Invalid email")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		s.record("register", "conflict")
		return nil, model.NewUserExistsError()
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.record("register", "conflict")
			return nil, model.NewUserExistsError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.record("register", "success")
	slog.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (*IssuedSession, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		s.record("login", "failure")
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		s.record("login", "failure")
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.record("login", "failure")
		return nil, model.NewInvalidCredentialsError()
	}

	issued, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.record("login", "success")
	slog.Info("user logged in", slog.String("user_id", user.ID), slog.String("provider", "credentials"))
	return issued, nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録のidentityの場合、同じメールアドレスのユーザーがいれば紐付け、
// いなければusersレコードとidentitiesレコードを同時に作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*IssuedSession, error) {
	if s.oauth == nil {
		return nil, fmt.Errorf("oauth provider is not configured")
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.record("oauth", "failure")
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string
	if identity != nil {
		userID = identity.UserID
	} else {
		userID, err = s.linkOrCreateUser(ctx, userInfo)
		if err != nil {
			return nil, err
		}
	}

	issued, err := s.issueSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.record("oauth", "success")
	slog.Info("user logged in",
		slog.String("user_id", userID),
		slog.String("provider", userInfo.Provider),
	)
	return issued, nil
}

func (s *Service) linkOrCreateUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	now := time.Now()
	email := NormalizeEmail(info.Email)

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}

	identity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if existing != nil {
		identity.UserID = existing.ID
		if err := s.identRepo.Create(ctx, identity); err != nil {
			return "", fmt.Errorf("failed to link identity: %w", err)
		}
		slog.Info("identity linked to existing user",
			slog.String("user_id", existing.ID),
			slog.String("provider", info.Provider),
		)
		return existing.ID, nil
	}

	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if info.Picture != "" {
		picture := info.Picture
		user.Image = &picture
	}
	identity.UserID = user.ID

	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}
	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user.ID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.record("logout", "success")
	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// LogoutAll はユーザーの全セッションを破棄する。
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	s.record("logout", "success")
	slog.Info("all sessions deleted", slog.String("user_id", userID))
	return nil
}

// ResolveSession はトークンを検証し、対応する有効なセッションを返す。
// トークンが不正、セッションが失効済み、またはトークンとセッションのユーザーが
// 一致しない場合はnilを返す。
func (s *Service) ResolveSession(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}

	sessionID, userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.UserID != userID {
		return nil, nil
	}
	return session, nil
}

// GetCurrentUser はユーザーIDから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}
	return user, nil
}

// issueSession はセッションを作成し永続化し、署名付きトークンを発行する。
func (s *Service) issueSession(ctx context.Context, userID string) (*IssuedSession, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	token, err := s.tokens.Sign(session.ID, session.UserID, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	return &IssuedSession{Session: session, Token: token}, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
