// Package httpapi exposes the auth flows over HTTP with chi.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/reservation/internal/logging"
	"github.com/dmitrijs2005/reservation/internal/server/auth"
	"github.com/dmitrijs2005/reservation/internal/server/models"
	"github.com/dmitrijs2005/reservation/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthService is the part of services.AuthService the handlers call.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, code, newPassword string) error
	Authenticate(ctx context.Context, accessToken string) (*auth.SessionClaims, error)
}

// Options tune the router.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

const shutdownTimeout = 10 * time.Second

type Server struct {
	address  string
	auth     AuthService
	logger   logging.Logger
	gatherer prometheus.Gatherer
	opts     Options
}

func NewServer(address string, l logging.Logger, svc AuthService, gatherer prometheus.Gatherer, opts Options) *Server {
	return &Server{
		address:  address,
		auth:     svc,
		logger:   l.With("module", "http_server"),
		gatherer: gatherer,
		opts:     opts,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/heartbeat"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/auth", func(r chi.Router) {
		if s.opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.opts.RequestTimeout))
		}

		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Post("/refresh-token", s.refreshToken)
		r.Post("/forgot-password", s.forgotPassword)
		r.Post("/reset-password", s.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.requireBearer)
			r.Get("/me", s.me)
		})
	})

	return r
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. It returns only after Shutdown
// has finished, so in-flight requests are done (or the shutdown timeout has
// passed) by the time the caller closes what the handlers use.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "http shutdown", logging.ErrAttrs(err)...)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", ln.Addr().String())

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		// ctx is still live here; the caller cancels it and the shutdown
		// goroutine exits on its own
		return err
	}
	<-stopped
	return nil
}
