// Package server is the HTTP API over the dashboard core. It resolves the
// caller's principal from trusted reverse-proxy headers and forwards every
// request through the shared guard; no handler checks roles on its own.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"iamdash/internal/app"
	"iamdash/internal/domain"
	"iamdash/internal/logging"
)

const (
	headerRole      = "X-Dashboard-Role"
	headerPrincipal = "X-Dashboard-Principal"
)

type ctxKey int

const principalKey ctxKey = 0

// Server carries the application core and its HTTP configuration.
type Server struct {
	dashboard *app.Dashboard
	addr      string
}

func New(dashboard *app.Dashboard, addr string) *Server {
	return &Server{dashboard: dashboard, addr: addr}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.withPrincipal)

		r.Get("/accounts", s.handleAccounts)
		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Get("/identities", s.handleIdentities)
			r.Get("/roles", s.handleRoles)
			r.Get("/policies", s.handlePolicies)
			r.Get("/identities/{identity}/analysis", s.handleAnalyze)
			r.Get("/high-risk", s.handleHighRisk)
		})
		r.Get("/audit/events", s.handleAuditAll)
		r.Get("/audit/events/self", s.handleAuditSelf)
		r.Get("/capabilities", s.handleCapabilities)
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logging.LogInfo("HTTP server listening", map[string]interface{}{"addr": s.addr})

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// withPrincipal resolves the caller from trusted headers. Authentication
// itself happens upstream; an absent principal, absent role, or unknown role
// is a 401, not a panic, because the headers are external input rather than
// configuration. The principal ID is mandatory: the self-scoped audit view
// filters on it, and an empty ID would widen that filter to every principal.
func (s *Server) withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roleHeader := r.Header.Get(headerRole)
		if roleHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing "+headerRole+" header")
			return
		}
		role, err := domain.ParseRole(roleHeader)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown role")
			return
		}
		principalID := r.Header.Get(headerPrincipal)
		if principalID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+headerPrincipal+" header")
			return
		}
		principal := domain.Principal{
			ID:   principalID,
			Role: role,
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(ctx context.Context) domain.Principal {
	principal, _ := ctx.Value(principalKey).(domain.Principal)
	return principal
}
