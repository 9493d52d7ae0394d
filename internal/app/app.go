// Package app は設定の読み込みと依存関係のワイヤリングを行い、各サブコマンドを起動する。
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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/expensebook/internal/account"
	"github.com/hitoshi/expensebook/internal/auth"
	"github.com/hitoshi/expensebook/internal/config"
	"github.com/hitoshi/expensebook/internal/currency"
	"github.com/hitoshi/expensebook/internal/database"
	"github.com/hitoshi/expensebook/internal/handler"
	"github.com/hitoshi/expensebook/internal/ledger"
	"github.com/hitoshi/expensebook/internal/logger"
	"github.com/hitoshi/expensebook/internal/metrics"
	"github.com/hitoshi/expensebook/internal/middleware"
	"github.com/hitoshi/expensebook/internal/repository"
	"github.com/hitoshi/expensebook/internal/security"
	"github.com/hitoshi/expensebook/internal/worker/reconcile"
)

// dbPingTimeout は起動時のデータベース疎通確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
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
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandAddUser:
		return runAddUser(cfg, args[1:], os.Stdin, os.Stdout)
	default:
		return runServe(cfg)
	}
}

// ledgerStore は台帳サービスと整合性回復ジョブが使う取引ストア。
type ledgerStore interface {
	repository.TransactionRepository
	repository.Reconciler
}

// stores はストアドライバーに応じて構築したリポジトリ群。
type stores struct {
	accounts     repository.AccountRepository
	transactions ledgerStore
	pinger       repository.Pinger
	close        func() error
}

// openStores はcfg.StoreDriverに従ってリポジトリを構築する。
// postgresの場合は接続を開いて疎通を確認する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		mem := repository.NewMemoryStore()
		slog.Warn("using in-memory store; data will be lost on restart")
		return &stores{
			accounts:     mem.Accounts(),
			transactions: mem.Transactions(),
			pinger:       mem,
			close:        func() error { return nil },
		}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return newPostgresStores(db), nil
}

func newPostgresStores(db *sql.DB) *stores {
	return &stores{
		accounts:     repository.NewPostgresAccountRepo(db),
		transactions: repository.NewPostgresTransactionRepo(db),
		pinger:       db,
		close:        db.Close,
	}
}

// services はHTTP層とCLIが共有するドメインサービス。
type services struct {
	auth    *auth.Service
	account *account.Service
	ledger  *ledger.Service
	tokens  *auth.TokenService
}

// newServices はドメインサービスを構築する。
// 為替APIのエンドポイントはSSRFガードで検証してから使用する。
func newServices(cfg *config.Config, st *stores, mc metrics.MetricsCollector, log *slog.Logger) (*services, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}
	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create password hasher: %w", err)
	}

	guard := security.NewEgressGuard()
	if err := guard.ValidateEndpoint(cfg.ExchangeAPIURL); err != nil {
		return nil, fmt.Errorf("invalid EXCHANGE_API_URL: %w", err)
	}
	rates := currency.NewExchangeRateClient(guard.NewClient(cfg.ExchangeTimeout), log, cfg.ExchangeAPIURL, cfg.ExchangeAPIKey)
	normalizer := currency.NewNormalizer(rates, cfg.ExchangeTimeout, mc, log)

	return &services{
		auth:    auth.NewService(st.accounts, tokens, hasher),
		account: account.NewService(st.accounts, hasher),
		ledger:  ledger.NewService(st.accounts, st.transactions, normalizer, security.NewTextSanitizer(), mc, log),
		tokens:  tokens,
	}, nil
}

// newRouter は全依存関係をワイヤリングしたHTTPハンドラーを返す。
// 返されたRateLimiterはサーバー停止時にStopすること。
func newRouter(cfg *config.Config, st *stores, reg *prometheus.Registry, mc metrics.MetricsCollector, log *slog.Logger) (http.Handler, *middleware.RateLimiter, error) {
	svcs, err := newServices(cfg, st, mc, log)
	if err != nil {
		return nil, nil, err
	}

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitWrite),
	)

	deps := &handler.RouterDeps{
		TokenVerifier:     svcs.tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFEnabled:       cfg.CSRFEnabled,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Metrics: mc,
		Logger:  log,

		AuthService: svcs.auth,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		AccountService: svcs.account,

		LedgerService: svcs.ledger,

		Pinger:         st.pinger,
		MetricsHandler: metrics.Handler(reg),
	}

	return handler.NewRouter(deps), rateLimiter, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. ストア
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// 2. ルーターの構築
	reg := newRegistry()
	mc := metrics.NewCollector(reg)
	router, rateLimiter, err := newRouter(cfg, st, reg, mc, slog.Default())
	if err != nil {
		return err
	}
	defer rateLimiter.Stop()

	// メモリストアはworkerプロセスから見えないため、整合性回復もここで回す
	if cfg.StoreDriver == config.StoreDriverMemory {
		job := reconcile.NewJob(st.transactions, st.accounts, mc, slog.Default())
		job.Grace = cfg.ReconcileGrace
		go job.Start(ctx, cfg.ReconcileInterval)
	}

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 参照コレクションと取引ドキュメントの整合性回復ジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return fmt.Errorf("worker requires STORE_DRIVER=%s", config.StoreDriverPostgres)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	job := reconcile.NewJob(st.transactions, st.accounts, metrics.Nop{}, slog.Default())
	job.Grace = cfg.ReconcileGrace

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("reconcile_interval", cfg.ReconcileInterval),
		slog.Duration("reconcile_grace", cfg.ReconcileGrace),
	)

	// 整合性回復ジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.ReconcileInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverPostgres)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(result.Version)),
		slog.Bool("changed", result.Changed),
	)
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
