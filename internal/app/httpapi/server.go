// Package httpapi exposes the application over HTTP: the RPC endpoint,
// webhooks, uploads, the order feed and server-rendered pages.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	app "github.com/brandloom/storefront/internal/app"
	"github.com/brandloom/storefront/internal/app/metrics"
	"github.com/brandloom/storefront/internal/config"
	"github.com/brandloom/storefront/internal/httputil"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/middleware"
	"github.com/brandloom/storefront/internal/rpc"
)

// RPCPrefix is where the procedure router is mounted.
const RPCPrefix = "/api/rpc"

// Server routes HTTP requests to the application.
type Server struct {
	app       *app.Application
	router    *mux.Router
	rpc       *rpc.Router
	audit     *auditLog
	auditSink *fileAuditSink
	pages     *pages
	log       *logging.Logger
}

// NewServer builds the route table. The rate limiter sweeper is attached to
// the application lifecycle, so call it before application.Start.
func NewServer(application *app.Application, log *logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.NewDefault("http")
	}
	cfg := application.Config

	s := &Server{app: application, log: log}

	var sink auditSink
	if cfg.HTTP.AuditLogPath != "" {
		fileSink, err := newFileAuditSink(cfg.HTTP.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		s.auditSink = fileSink
		sink = fileSink
	}
	s.audit = newAuditLog(cfg.HTTP.AuditCapacity, sink, log.Named("audit"))

	s.rpc = rpc.NewRouter(application.Brands, log.Named("rpc"))
	s.rpc.Use(s.audit.middleware)
	s.registerProcedures()

	pg, err := newPages(application, log.Named("pages"))
	if err != nil {
		return nil, err
	}
	s.pages = pg

	authCfg, err := authConfig(cfg, application, log.Named("auth"))
	if err != nil {
		return nil, err
	}
	failures := middleware.NewRateLimiter(cfg.HTTP.AuthFailuresPerMinute, cfg.HTTP.AuthFailureBurst, log.Named("ratelimit"))
	authCfg.Failures = failures
	auth := middleware.NewAuthMiddleware(authCfg)
	limiter := middleware.NewRateLimiter(cfg.HTTP.RatePerMinute, cfg.HTTP.RateBurst, log.Named("ratelimit"))
	if err := application.Attach(&limiterSweeper{limiters: []*middleware.RateLimiter{limiter, failures}, log: log}); err != nil {
		return nil, err
	}

	root := mux.NewRouter()
	root.Use(
		middleware.NewTracingMiddleware(log).Handler,
		middleware.Recovery(log),
		middleware.Metrics(),
		middleware.NewCORSMiddleware(cfg.CORSOrigins()).Handler,
	)

	root.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	root.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	// Webhooks authenticate with their own signatures and stay outside the
	// API key middleware, whose header the shipping aggregator reuses.
	root.HandleFunc("/webhooks/payment", s.paymentWebhook).Methods(http.MethodPost)
	root.Handle("/webhooks/shipping",
		middleware.RequireHeaderToken("X-Api-Key", cfg.Shipping.WebhookToken, log)(http.HandlerFunc(s.shippingWebhook)),
	).Methods(http.MethodPost)

	root.HandleFunc("/uploads/{key:.+}", s.serveObject).Methods(http.MethodGet, http.MethodHead)

	api := root.PathPrefix("/api").Subrouter()
	api.Use(auth.Handler, limiter.Handler)
	s.rpc.Mount(api, "/rpc")
	api.Handle("/uploads", middleware.RequireUser(http.HandlerFunc(s.upload))).Methods(http.MethodPost)

	ws := root.PathPrefix("/ws").Subrouter()
	ws.Use(queryToken, auth.Handler)
	ws.HandleFunc("/brands/{id}/orders", s.orderFeed).Methods(http.MethodGet)

	s.pages.mount(root)

	s.router = root
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RPC returns the procedure router.
func (s *Server) RPC() *rpc.Router {
	return s.rpc
}

// Close releases the audit log file.
func (s *Server) Close() error {
	if s.auditSink != nil {
		return s.auditSink.Close()
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"services":   s.app.Services(),
		"procedures": len(s.rpc.Procedures()),
	})
}

func authConfig(cfg *config.Config, application *app.Application, log *logging.Logger) (middleware.AuthConfig, error) {
	ac := middleware.AuthConfig{
		Secret:  []byte(cfg.Auth.JWTSecret),
		Issuer:  cfg.Auth.JWTIssuer,
		Users:   application.Users,
		APIKeys: application.Brands,
		Logger:  log,
	}
	if cfg.Auth.JWTPublicKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.Auth.JWTPublicKey))
		if err != nil {
			return ac, fmt.Errorf("parse AUTH_JWT_PUBLIC_KEY: %w", err)
		}
		ac.PublicKey = key
	}
	return ac, nil
}

// queryToken lets browsers, which cannot set headers on WebSocket upgrades,
// pass the bearer token as ?access_token=.
func queryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := r.URL.Query().Get("access_token"); tok != "" && r.Header.Get("Authorization") == "" {
			r = r.Clone(r.Context())
			r.Header.Set("Authorization", "Bearer "+tok)
		}
		next.ServeHTTP(w, r)
	})
}

// limiterSweeper drops idle rate limiter buckets.
type limiterSweeper struct {
	limiters []*middleware.RateLimiter
	log      *logging.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

const (
	sweepInterval = 5 * time.Minute
	sweepIdle     = 10 * time.Minute
)

func (l *limiterSweeper) Name() string { return "ratelimit-sweeper" }

func (l *limiterSweeper) Start(ctx context.Context) error {
	ctx, l.cancel = context.WithCancel(context.WithoutCancel(ctx))
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := 0
				for _, limiter := range l.limiters {
					removed += limiter.Cleanup(sweepIdle)
				}
				if removed > 0 {
					l.log.WithField("removed", removed).Debug("rate limiter buckets swept")
				}
			}
		}
	}()
	return nil
}

func (l *limiterSweeper) Stop(ctx context.Context) error {
	if l.cancel == nil {
		return nil
	}
	l.cancel()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
