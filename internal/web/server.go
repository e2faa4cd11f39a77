package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/go-chi/cors"
	"github.com/vitos/cheeseball/internal/usecase"
	"go.uber.org/zap"
)

// HTTPMetrics is the metrics surface the server records into and exposes.
type HTTPMetrics interface {
	RecordHTTPRequest(method string, status int)
	Handler() http.Handler
}

// Services bundles the use cases the handlers call into.
type Services struct {
	Market   *usecase.MarketService
	Auth     *usecase.AuthService
	Resets   *usecase.PasswordResetService
	UserData *usecase.UserDataService
	Admin    *usecase.AdminService
}

type Options struct {
	Port               int
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	RateLimitBurst     int
}

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	services Services
	hub      *AlertHub
	metrics  HTTPMetrics
	limiter  *ipRateLimiter
	logger   *zap.Logger
	opts     Options
}

func NewServer(opts Options, services Services, hub *AlertHub, metrics HTTPMetrics, logger *zap.Logger) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		services: services,
		hub:      hub,
		metrics:  metrics,
		limiter:  newIPRateLimiter(opts.RateLimitPerMinute, opts.RateLimitBurst),
		logger:   logger.With(zap.String("component", "web")),
		opts:     opts,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Service
	s.router.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics.Handler())
	}

	// Market data
	for _, route := range marketRoutes {
		s.router.HandleFunc("GET "+route.pattern, s.authenticated(s.handleMarket(route.operation)))
	}

	// Auth
	s.router.HandleFunc("POST /auth/register", s.rateLimited(s.handleRegister))
	s.router.HandleFunc("POST /auth/login", s.rateLimited(s.handleLogin))
	s.router.HandleFunc("GET /auth/me", s.authenticated(s.handleMe))
	s.router.HandleFunc("POST /auth/forgot-password", s.rateLimited(s.handleForgotPassword))
	s.router.HandleFunc("POST /auth/verify-otp", s.rateLimited(s.handleVerifyOTP))
	s.router.HandleFunc("POST /auth/reset-password", s.rateLimited(s.handleResetPassword))

	// Watchlist
	s.router.HandleFunc("GET /user/watchlist", s.authenticated(s.handleListWatchlist))
	s.router.HandleFunc("POST /user/watchlist", s.authenticated(s.handleAddWatchlist))
	s.router.HandleFunc("DELETE /user/watchlist/{coin_id}", s.authenticated(s.handleDeleteWatchlist))

	// Portfolio
	s.router.HandleFunc("GET /user/portfolio", s.authenticated(s.handleListPortfolio))
	s.router.HandleFunc("POST /user/portfolio", s.authenticated(s.handleAddPortfolio))
	s.router.HandleFunc("DELETE /user/portfolio/{id}", s.authenticated(s.handleDeletePortfolio))

	// Alerts
	s.router.HandleFunc("GET /user/alerts", s.authenticated(s.handleListAlerts))
	s.router.HandleFunc("POST /user/alerts", s.authenticated(s.handleCreateAlert))
	s.router.HandleFunc("DELETE /user/alerts/{id}", s.authenticated(s.handleDeleteAlert))
	s.router.HandleFunc("GET /user/alerts/stream", s.authenticated(s.handleAlertStream))

	// Admin
	s.router.HandleFunc("GET /admin/users", s.adminOnly(s.handleListUsers))
	s.router.HandleFunc("GET /admin/statistics", s.adminOnly(s.handleStatistics))
	s.router.HandleFunc("POST /admin/users/{user_id}/deactivate", s.adminOnly(s.handleSetActive(false)))
	s.router.HandleFunc("POST /admin/users/{user_id}/activate", s.adminOnly(s.handleSetActive(true)))
}

// Handler returns the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	compressed := gziphandler.GzipHandler(s.router)

	// Websocket upgrades need the raw connection, so the stream skips gzip.
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/alerts/stream") {
			s.router.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})

	origins := s.opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h = cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})(h)

	h = s.accessLog(h)
	h = s.recoverer(h)
	return requestID(h)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"server_time": time.Now().UTC(),
	})
}
