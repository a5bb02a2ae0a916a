package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// RouterOptions 路由的外部設定
type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Metrics 掛在 /metrics，nil 時不掛
	Metrics http.Handler
}

// NewRouter 組裝 chi router
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(h.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.tokens.Authenticate)

			r.Get("/balance", h.Balance)
			r.Post("/deposit", h.Operation(domain.OperationDeposit))
			r.Post("/withdraw", h.Operation(domain.OperationWithdraw))
			r.Post("/transfer", h.Operation(domain.OperationTransfer))
			r.Post("/topup", h.Operation(domain.OperationTopUp))
			r.Post("/esewa", h.Operation(domain.OperationWalletLoad))
			r.Post("/change-password", h.ChangePassword)
			r.Get("/profile", h.Profile)
			r.Get("/transactions", h.Transactions)
			r.Get("/transactions/export", h.ExportTransactions)
		})
	})
	return r
}

// LoggerMiddleware 以 zap 記錄每個請求
func LoggerMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}
