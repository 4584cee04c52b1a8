package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hitoshi/projecify/internal/auth"
	"github.com/hitoshi/projecify/internal/config"
	"github.com/hitoshi/projecify/internal/database"
	"github.com/hitoshi/projecify/internal/handler"
	"github.com/hitoshi/projecify/internal/logger"
	"github.com/hitoshi/projecify/internal/metrics"
	"github.com/hitoshi/projecify/internal/middleware"
	"github.com/hitoshi/projecify/internal/project"
	"github.com/hitoshi/projecify/internal/repository"
	"github.com/hitoshi/projecify/internal/security"
	"github.com/hitoshi/projecify/internal/task"
	"github.com/hitoshi/projecify/internal/telemetry"
	"github.com/hitoshi/projecify/internal/upload"
	"github.com/hitoshi/projecify/internal/user"
	"github.com/hitoshi/projecify/internal/worker/cleanup"
)

// serviceName はトレースとログに使うサービス名。
const serviceName = "projecify"

// hostedUploadTimeout は外部アップロードサービス呼び出しのタイムアウト。
const hostedUploadTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envは任意。存在しなくてもエラーにしない
	_ = godotenv.Load()

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// apiServer はHTTPハンドラーと、停止時に解放するリソースをまとめたもの。
type apiServer struct {
	handler http.Handler
	limiter *middleware.RateLimiter
}

// buildServer は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// regには/metricsで公開するメトリクスを登録する。
func buildServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*apiServer, error) {
	collector := metrics.NewCollector(reg)

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	projectRepo := repository.NewPostgresProjectRepo(db)
	memberRepo := repository.NewPostgresMembershipRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)

	// 2. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. 認証サービスの初期化（OAuthは設定されている場合のみ）
	var oauthProvider auth.OAuthProvider
	if cfg.OAuthEnabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	}
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.NewTokenSigner(cfg.SessionSecret),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	authService.SetEventRecorder(collector)

	// 4. ドメインサービスの初期化
	projectService := project.NewService(projectRepo, memberRepo, userRepo, taskRepo, sanitizer)
	taskService := task.NewService(taskRepo, projectService, sanitizer)

	uploadBaseURL := strings.TrimRight(cfg.BaseURL, "/") + "/uploads"
	userService := user.NewService(userRepo, sessionRepo, memberRepo, ssrfGuard, sanitizer, user.ServiceConfig{
		TrustedImageBaseURL: uploadBaseURL,
	})

	// 5. アップロード先の選択
	var storage upload.Storage
	var uploadFiles http.Handler
	if cfg.HostedUploadEnabled() {
		if err := ssrfGuard.ValidateURL(cfg.UploadServiceURL); err != nil {
			return nil, fmt.Errorf("invalid UPLOAD_SERVICE_URL: %w", err)
		}
		client := ssrfGuard.NewSafeClient(hostedUploadTimeout, cfg.UploadMaxBytes)
		storage = upload.NewHostedStorage(client, cfg.UploadServiceURL, cfg.UploadServiceToken)
	} else {
		disk := upload.NewDiskStorage(cfg.UploadDir, uploadBaseURL)
		storage = disk
		uploadFiles = disk.FileServer()
	}
	uploadService := upload.NewService(storage, cfg.UploadMaxBytes)
	uploadService.SetRecorder(collector)

	// 6. ルーターの構築（設定値はreq/min）
	limiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)

	deps := &handler.RouterDeps{
		Logger:             slog.Default(),
		SessionResolver:    authService,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:  limiter,
		HTTPObserver: collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		UploadFiles:    uploadFiles,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProjectService: projectService,
		MemberService:  projectService,
		TaskService:    taskService,
		UserService:    userService,
		UploadService:  uploadService,
	}

	return &apiServer{
		handler: otelhttp.NewHandler(handler.NewRouter(deps), serviceName),
		limiter: limiter,
	}, nil
}

// newRegistry はGo/プロセスのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	shutdownTracing, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		slog.Warn("tracing disabled", slog.String("error", err.Error()))
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	srv, err := buildServer(cfg, db, newRegistry())
	if err != nil {
		return err
	}
	defer srv.limiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		slog.Warn("tracer shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// workerProcess はワーカーモードで動かすジョブと、そのメトリクス公開用ハンドラー。
type workerProcess struct {
	job     *cleanup.SessionCleanupJob
	metrics http.Handler
}

// buildWorker はセッションクリーンアップジョブを組み立てる。
// 削除件数はregに登録したprojecify_sessions_purged_totalに記録される。
func buildWorker(purger repository.SessionPurger, reg *prometheus.Registry) *workerProcess {
	collector := metrics.NewCollector(reg)
	return &workerProcess{
		job:     cleanup.NewSessionCleanupJob(purger, slog.Default(), collector),
		metrics: metrics.SetupMetricsRoute(reg),
	}
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを定期実行し、シグナル受信で停止する。
// WorkerMetricsPortで/metricsのみを公開する。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	w := buildWorker(repository.NewPostgresSessionRepo(db), newRegistry())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           w.metrics,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server failed", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	w.job.Start(ctx, cfg.SessionCleanupInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用し、バイナリに埋め込まれた最新版と照合する。
func runMigrate(cfg *config.Config) error {
	latest, err := database.LatestVersion()
	if err != nil {
		return fmt.Errorf("invalid embedded migrations: %w", err)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Uint64("latest_version", uint64(latest)),
	)

	res, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if res.To != latest {
		slog.Warn("schema version differs from this binary",
			slog.Uint64("schema_version", uint64(res.To)),
			slog.Uint64("latest_version", uint64(latest)),
		)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(res.From)),
		slog.Uint64("to_version", uint64(res.To)),
		slog.Bool("applied", res.Applied()),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
