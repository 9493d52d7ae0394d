package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/expensebook/internal/auth"
	"github.com/hitoshi/expensebook/internal/metrics"
	"github.com/hitoshi/expensebook/internal/middleware"
	"github.com/hitoshi/expensebook/internal/model"
	"github.com/hitoshi/expensebook/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     auth.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFEnabled       bool
	CSRFConfig        middleware.CSRFConfig
	Metrics           metrics.MetricsCollector
	Logger            *slog.Logger

	// 認証・アカウント
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	AccountService AccountServiceInterface

	// 台帳
	LedgerService LedgerServiceInterface

	// 運用
	Pinger         repository.Pinger
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → CSRF → RateLimit(General)
//
// 認証ルート（/api/auth/sign-up, /api/auth/sign-in）とヘルスチェックはセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(mc))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.CSRFEnabled {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
	}
	r.Use(deps.RateLimiter.GeneralMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	accountHandler := NewAccountHandler(deps.AccountService, authHandler)
	expenseHandler := NewLedgerHandler(deps.LedgerService, model.KindExpense)
	incomeHandler := NewLedgerHandler(deps.LedgerService, model.KindIncome)
	balanceHandler := NewBalanceHandler(deps.LedgerService)

	// --- 認証不要のルート ---

	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.Pinger, 0))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	if deps.CSRFEnabled {
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/sign-up", authHandler.SignUp)
		r.Post("/sign-in", authHandler.SignIn)
		r.Post("/sign-out", authHandler.SignOut)

		r.With(middleware.NewSessionMiddleware(deps.TokenVerifier)).Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(Write)
	r.Route("/api/users/{userID}", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.WriteMiddleware())

		r.Patch("/", accountHandler.UpdateProfile)
		r.Get("/balance", balanceHandler.Balance)

		mountLedger(r, "/expenses", expenseHandler)
		mountLedger(r, "/incomes", incomeHandler)
	})

	return r
}

func mountLedger(r chi.Router, pattern string, h *LedgerHandler) {
	r.Route(pattern, func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/total", h.Total)

		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
}
