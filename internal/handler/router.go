package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/projecify/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	SessionResolver    middleware.SessionResolver
	CORSAllowedOrigins []string
	CSRFConfig         middleware.CSRFConfig
	RateLimiter        *middleware.RateLimiter
	HTTPObserver       middleware.HTTPObserver // nilの場合はHTTPメトリクスを記録しない

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
	UploadFiles    http.Handler // ディスク保存時のみ/uploads/*で配信する

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	ProjectService ProjectServiceInterface
	MemberService  MemberServiceInterface
	TaskService    TaskServiceInterface
	UserService    UserServiceInterface
	UploadService  UploadServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS → CSRF → Session → RateLimit(General)
//
// /health、/metrics、/uploads/* はCSRF以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPObserver != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPObserver))
	}
	// プリフライトはルートに一致しないため、CORSは最上位に適用する
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	projectHandler := NewProjectHandler(deps.ProjectService)
	memberHandler := NewMemberHandler(deps.MemberService)
	taskHandler := NewTaskHandler(deps.TaskService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	uploadHandler := NewUploadHandler(deps.UploadService)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker).Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	if deps.UploadFiles != nil {
		r.Method(http.MethodGet, "/uploads/*", http.StripPrefix("/uploads", deps.UploadFiles))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// --- 認証不要のルート ---
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/api/register", authHandler.Register)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/api/auth/login", authHandler.Login)
		r.Get("/api/auth/google/login", authHandler.GoogleLogin)
		r.Get("/api/auth/google/callback", authHandler.GoogleCallback)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Session → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Post("/api/auth/logout", authHandler.Logout)
			r.Get("/api/auth/session", authHandler.GetSession)
			r.Delete("/api/auth/session", authHandler.DeleteSessions)
			r.Get("/api/me", authHandler.Me)

			// プロジェクト
			r.Route("/api/projects", func(r chi.Router) {
				r.Get("/", projectHandler.ListProjects)
				r.Post("/", projectHandler.CreateProject)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", projectHandler.GetProject)
					r.Put("/", projectHandler.ReplaceProject)
					r.Patch("/", projectHandler.PatchProject)
					r.Delete("/", projectHandler.DeleteProject)

					r.Route("/tasks", taskHandler.routes)
					r.Route("/members", memberHandler.routes)
				})
			})

			// ユーザー
			r.Route("/api/users", func(r chi.Router) {
				r.Get("/", userHandler.SearchUsers)
				r.Route("/{id}", func(r chi.Router) {
					userHandler.routes(r)
					r.Get("/tasks", taskHandler.ListAssignedTasks)
				})
			})

			// アップロード
			r.Post("/api/uploads/avatar", uploadHandler.UploadAvatar)
		})
	})

	return r
}
