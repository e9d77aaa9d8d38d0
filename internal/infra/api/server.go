package api

import (
	"net/http"
	"time"

	"activation-code-service/internal/infra/metrics"
	"activation-code-service/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// CallbackVerifier checks a gateway signature over the received callback fields.
type CallbackVerifier interface {
	VerifyCallback(fields map[string]string, signature string) bool
}

type Deps struct {
	Reconcile usecase.ReconcileUseCase
	Requests  usecase.RequestUseCase
	Codes     usecase.CodeUseCase
	Txns      usecase.TransactionUseCase

	Verifier CallbackVerifier // nil disables signature checks
	Limiter  Limiter          // nil disables rate limiting
	Auth     *AuthManager     // nil leaves admin routes unmounted and deactivate open
}

type Options struct {
	PortalURL      string
	AdminAPIKey    string
	RequestTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
}

// Server exposes the callback, code and admin endpoints.
type Server struct {
	deps Deps
	opts Options
	log  *zerolog.Logger
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	compLog := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{deps: deps, opts: opts, log: &compLog}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(TraceID())
	r.Use(Metrics())
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))
	r.Use(Timeout(s.opts.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/callback", func(r chi.Router) {
		r.Post("/notify", s.handleNotify)
		r.Get("/redirect", s.handleRedirect)
		r.Get("/status/{orderId}", s.handleStatus)
	})
	// paths registered with the wallet by earlier deployments
	r.Post("/callback-momo/ipn-url", s.handleNotify)
	r.Get("/callback-momo/redirect", s.handleRedirect)

	r.Route("/code", func(r chi.Router) {
		r.With(s.limit("request-trial")).Post("/request-trial", s.handleRequestTrial)
		r.With(s.limit("request-premium")).Post("/request-premium", s.handleRequestPremium)
		r.Get("/check/{code}", s.handleCheck)
		r.Post("/activate", s.handleActivate)
		if s.deps.Auth != nil {
			r.With(s.deps.Auth.RequireAdmin).Post("/deactivate", s.handleDeactivate)
		} else {
			r.Post("/deactivate", s.handleDeactivate)
		}
	})

	if s.deps.Auth != nil {
		r.Route("/admin", func(r chi.Router) {
			r.With(s.limit("admin-session")).Post("/session", s.handleAdminLogin)
			r.Delete("/session", s.handleAdminLogout)
			r.With(s.deps.Auth.RequireAdmin).Post("/codes/sweep", s.handleSweep)
		})
	}
	return r
}

func (s *Server) limit(scope string) func(http.Handler) http.Handler {
	return RateLimit(s.deps.Limiter, scope, s.opts.RateLimit, s.opts.RateWindow, s.log)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{"status": "OK", "message": "Activation code service"})
}
