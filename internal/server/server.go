// Package server serves the planning poker endpoints the voting UI consumes:
// session creation, rendered fragments and the vote action.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielolaszy/poker/internal/config"
	"github.com/danielolaszy/poker/internal/logging"
	"github.com/danielolaszy/poker/internal/session"
	"github.com/danielolaszy/poker/pkg/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server renders sessions and applies actions through a session.Service.
type Server struct {
	svc  *session.Service
	cfg  config.ServerConfig
	tmpl *template.Template
	log  *slog.Logger
}

// New creates a Server.
func New(svc *session.Service, cfg config.ServerConfig) (*Server, error) {
	if len(cfg.CSRFKey) != 32 {
		return nil, fmt.Errorf("csrf key must be exactly 32 bytes, got %d", len(cfg.CSRFKey))
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Server{
		svc:  svc,
		cfg:  cfg,
		tmpl: tmpl,
		log:  logging.With("server"),
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(WithLogging)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(markPlaintext)
		r.Use(csrf.Protect([]byte(s.cfg.CSRFKey),
			csrf.FieldName(models.TokenField),
			csrf.Path("/"),
			csrf.Secure(false),
			csrf.ErrorHandler(http.HandlerFunc(s.handleCSRFFailure)),
		))
		r.Use(Identity(s.cfg.Users))

		r.Get(models.PathBrowse+"{key}", s.handleBrowse)
		r.Post(models.PathInstantPoker, s.handleCreateSession)
		r.Get(models.PathInstantPoker, s.handleWidget)
		r.Get(models.PathVoteForm, s.handleWidget)
		r.Post(models.PathVote, s.handleVote)
		r.Get(models.PathViewVotes, s.handleViewVotes)
		r.Get(models.PathViewVoters, s.handleViewVoters)
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
