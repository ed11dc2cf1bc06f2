// Package server exposes an Authenticator over HTTP.
//
// All /v1 routes require the shared API token in the X-API-Token
// header. Verification endpoints answer 200 with {"valid": false}
// for every kind of verification failure; only requests that cannot
// be decoded are rejected with 4xx.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ourstudio-se/go-contentauth"
	"github.com/ourstudio-se/go-contentauth/internal/config"
)

// Authenticator is the part of *contentauth.Authenticator the
// handlers use
type Authenticator interface {
	Current() (contentauth.KeyPair, error)
	Sign(message []byte) (string, string, error)
	Check(message []byte, signature string) error
	CheckWith(publicKeyPEM string, message []byte, signature string) error
	Bind(content string) (string, string, error)
	CheckBound(signature, fingerprint, content string) error
	CheckBoundWith(publicKeyPEM, signature, fingerprint, content string) error
}

type Server struct {
	auth     Authenticator
	cfg      config.ServerConfig
	logger   zerolog.Logger
	gatherer prometheus.Gatherer
	validate *validator.Validate
	router   chi.Router
}

const defaultMaxBodyBytes = 1 << 20

func New(auth Authenticator, cfg config.ServerConfig, logger zerolog.Logger, gatherer prometheus.Gatherer) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		auth:     auth,
		cfg:      cfg,
		logger:   logger,
		gatherer: gatherer,
		validate: validator.New(),
	}

	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	if len(s.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", tokenHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.Limit(
				s.cfg.RateLimit,
				s.cfg.RateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(s.handleRateLimited),
			))
		}
		r.Use(s.requireToken)

		r.Get("/keys/current", s.handleCurrentKey)
		r.Post("/sign", s.handleSign)
		r.Post("/verify", s.handleVerify)
		r.Post("/bind", s.handleBind)
		r.Post("/verify-bound", s.handleVerifyBound)
	})

	return r
}

// ListenAndServe serves on the configured address until ctx
// is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errch := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("listening")
		errch <- srv.ListenAndServe()
	}()

	select {
	case err := <-errch:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errch; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
