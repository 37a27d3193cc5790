package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"iamdash/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"audit":  s.dashboard.AuditStats(),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.dashboard.Accounts(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (s *Server) handleIdentities(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	identities, err := s.dashboard.Identities(r.Context(), principalFrom(r.Context()), account)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":    account,
		"identities": identities,
		"total":      len(identities),
	})
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	roles, err := s.dashboard.Roles(r.Context(), principalFrom(r.Context()), account)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"roles":   roles,
		"total":   len(roles),
	})
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	policies, err := s.dashboard.Policies(r.Context(), principalFrom(r.Context()), account)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":  account,
		"policies": policies,
		"total":    len(policies),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	identity := chi.URLParam(r, "identity")
	assessment, err := s.dashboard.Analyze(r.Context(), principalFrom(r.Context()), account, identity)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) handleHighRisk(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	minScore := 50
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "min_score must be an integer in [0,100]")
			return
		}
		minScore = n
	}
	results, err := s.dashboard.HighRisk(r.Context(), principalFrom(r.Context()), account, minScore)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":   account,
		"min_score": minScore,
		"total":     len(results),
		"results":   results,
	})
}

func (s *Server) handleAuditAll(w http.ResponseWriter, r *http.Request) {
	s.handleAudit(w, r, true)
}

func (s *Server) handleAuditSelf(w http.ResponseWriter, r *http.Request) {
	s.handleAudit(w, r, false)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, all bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1,1000]")
			return
		}
		limit = n
	}
	events, err := s.dashboard.AuditEvents(r.Context(), principalFrom(r.Context()), all, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}

// handleCapabilities tells the UI what the caller may do, derived from the
// same matrix the API enforces, so the two can never disagree.
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":         principal.Role,
		"capabilities": s.dashboard.Matrix().CapabilitiesOf(principal.Role),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps core errors onto HTTP statuses. A denial states the
// required roles and the caller's actual capability set; it never degrades
// to a partial or empty success body.
func writeFailure(w http.ResponseWriter, err error) {
	var denied *domain.AccessDeniedError
	if errors.As(err, &denied) {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":             "access denied",
			"capability":        denied.Capability,
			"role":              denied.Role,
			"required_roles":    denied.RequiredRoles,
			"role_capabilities": denied.RoleCapabilities,
		})
		return
	}
	if errors.Is(err, domain.ErrAccountNotFound) || errors.Is(err, domain.ErrIdentityNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var confErr *domain.ConfigurationError
	if errors.As(err, &confErr) {
		// Programming bug, not a client problem. Surface loudly.
		writeError(w, http.StatusInternalServerError, confErr.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
