package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/ssokit/internal/config"
	"github.com/hitoshi/ssokit/internal/database"
	"github.com/hitoshi/ssokit/internal/directory"
	"github.com/hitoshi/ssokit/internal/handler"
	"github.com/hitoshi/ssokit/internal/host"
	"github.com/hitoshi/ssokit/internal/logger"
	"github.com/hitoshi/ssokit/internal/metrics"
	"github.com/hitoshi/ssokit/internal/middleware"
	"github.com/hitoshi/ssokit/internal/passport"
	"github.com/hitoshi/ssokit/internal/password"
	"github.com/hitoshi/ssokit/internal/provider"
	"github.com/hitoshi/ssokit/internal/repository"
	"github.com/hitoshi/ssokit/internal/security"
	"github.com/hitoshi/ssokit/internal/sso"
	"github.com/hitoshi/ssokit/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 開発環境向けに.envがあれば読み込む（本番では通常存在しない）
	_ = godotenv.Load()

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
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	hostRepo := repository.NewPostgresHostRepo(db)
	providerRepo := repository.NewPostgresProviderRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	passportRepo := repository.NewPostgresPassportRepo(db)
	groupRepo := repository.NewPostgresGroupRepo(db)

	// セッションストアはPostgreSQLとRedisを設定で切り替える
	var sessionStore middleware.SessionStore
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		sessionStore = repository.NewRedisSessionRepo(client)
		slog.Info("redis session store enabled", slog.String("addr", cfg.RedisAddr))
	default:
		sessionStore = repository.NewPostgresSessionRepo(db)
	}

	// 3. 組み込みグループの冪等登録
	if err := groupRepo.EnsureBuiltins(context.Background()); err != nil {
		return fmt.Errorf("failed to ensure builtin groups: %w", err)
	}

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewProfileSanitizer()
	hasher := password.NewHasherWithCost(cfg.BcryptCost)

	// 5. ドメインサービスの初期化
	hostSvc := host.NewService(hostRepo, cfg.Environment)
	providerSvc := provider.NewService(providerRepo, hostSvc, ssrfGuard)
	providerSvc.SetAllowedProviders(cfg.AllowedProviders)
	dirSvc := directory.NewService(userRepo)
	passportSvc := passport.NewService(passportRepo, dirSvc, hasher)

	registry := sso.NewRegistry(ssrfGuard, cfg.FetchTimeout, cfg.FetchMaxSize)
	ssoSvc := sso.NewService(providerSvc, passportSvc, dirSvc, registry, sanitizer, slog.Default())

	// 6. メトリクスの初期化
	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)
	ssoSvc.SetMetrics(collector)

	// 7. フェデレーションストラテジーの構築
	// 登録済みホストとプロバイダー定義からレジストリを初期化する。
	// 不正なエンドポイントURLを持つプロバイダーがあれば起動を中断する。
	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelInit()

	hosts, err := hostSvc.ListHosts(initCtx, nil)
	if err != nil {
		return fmt.Errorf("failed to load hosts: %w", err)
	}
	definitions, err := providerSvc.ListDefinitions(initCtx)
	if err != nil {
		return fmt.Errorf("failed to load provider definitions: %w", err)
	}
	if err := registry.Init(hosts, definitions, ssoSvc.Hooks()); err != nil {
		return fmt.Errorf("failed to initialize strategies: %w", err)
	}

	slog.Info("federation strategies initialized",
		slog.Int("hosts", len(hosts)),
		slog.Int("providers", len(definitions)),
	)

	// 8. ルーターの構築
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
	rateLimiterCfg.LoginBurst = cfg.RateLimitLogin

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker: db,
		SessionStore:  sessionStore,
		SessionConfig: middleware.SessionConfig{
			MaxAge:       cfg.SessionMaxAge,
			CookieSecure: cfg.CookieSecure,
		},
		HostService:       hostSvc,
		Bearer:            ssoSvc,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		MetricsHandler: metrics.Handler(promReg),

		SSOService: ssoSvc,
		AuthConfig: handler.AuthHandlerConfig{
			DefaultReturnURI: cfg.BaseURL,
		},

		Hosts:     hostSvc,
		Providers: providerSvc,
		Directory: dirSvc,
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップジョブを定期実行する。
// Redisセッションストア利用時はTTLが回収を担うため、このモードは
// PostgreSQLセッションストア向け。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	if cfg.SessionStore == config.SessionStoreRedis {
		slog.Warn("session store is redis; cleanup worker only affects the postgres auth_sessions table")
	}

	// 2. クリーンアップジョブの初期化
	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	cleanupJob.SetMetrics(collector)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("grace_period", cleanupJob.GracePeriod),
	)

	// 起動直後に1回実行
	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
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
