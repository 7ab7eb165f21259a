package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"defil/native/market"
	"defil/observability"
	"defil/services/auditlog"
	"defil/services/defild/config"
)

const pauseModule = "market"

// Store is the journaled state the engine writes through. The server commits
// it after every successful request and rolls back anything else.
type Store interface {
	Snapshot() int
	RevertToSnapshot(id int)
	Commit() error
}

// Pauses toggles the market kill switch.
type Pauses interface {
	Set(module string, paused bool)
	IsPaused(module string) bool
}

// Options wires the server to the market engine and its collaborators.
type Options struct {
	Engine *market.Engine
	State  Store
	Pauses Pauses
	// Audit is optional. When set the audit trail is exposed read-only.
	Audit  *auditlog.Store
	Config config.Config
	Logger *slog.Logger
}

// Server exposes the market engine over HTTP. Engine calls are serialised.
type Server struct {
	mu      sync.Mutex
	engine  *market.Engine
	state   Store
	pauses  Pauses
	audit   *auditlog.Store
	auth    *authenticator
	limiter *rateLimiter
	logger  *slog.Logger
}

// New validates the options and constructs a server.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("server: engine required")
	}
	if opts.State == nil {
		return nil, fmt.Errorf("server: state required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  opts.Engine,
		state:   opts.State,
		pauses:  opts.Pauses,
		audit:   opts.Audit,
		auth:    newAuthenticator(opts.Config.Auth, logger),
		limiter: newRateLimiter(opts.Config.RateLimit),
		logger:  logger,
	}, nil
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.middleware)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.requireReader)
			r.Get("/market", s.handleMarket)
			r.Get("/accounts/{address}", s.handleAccount)
			r.Get("/assets/{symbol}/balances/{address}", s.handleBalance)
			if s.audit != nil {
				r.Get("/audit", s.handleAuditList)
				r.Get("/audit/verify", s.handleAuditVerify)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(s.auth.requireToken)
			r.Post("/accrue", s.handleAccrue)
			r.Post("/mint", s.handleOperation(market.OpMint))
			r.Post("/redeem", s.handleOperation(market.OpRedeem))
			r.Post("/redeem-underlying", s.handleOperation(market.OpRedeemUnderlying))
			r.Post("/borrow", s.handleOperation(market.OpBorrow))
			r.Post("/repay", s.handleOperation(market.OpRepay))
			r.Post("/collateralize", s.handleOperation(market.OpCollateralize))
			r.Post("/redeem-collateral", s.handleOperation(market.OpRedeemCollateral))
			r.Post("/claim", s.handleOperation(market.OpClaimReward))
			r.Post("/assets/{symbol}/approve", s.handleApprove)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/weights", s.handleSetWeights)
				r.Post("/controls", s.handleControls)
				r.Post("/assets/{symbol}/mint", s.handleAssetMint)
			})
		})
	})
	return r
}

type requestIDKey struct{}

// requestID tags every request with an identifier echoed in X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		observability.API().Observe(route, r.Method, status, elapsed)
		s.logger.Debug("http request",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("route", route),
			slog.String("method", r.Method),
			slog.Int("status", status),
			slog.Duration("duration", elapsed))
	})
}
