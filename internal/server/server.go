// Package server exposes the admin surface: a small JSON API over the rule
// list plus health and CRM status probes. It is the settings-page
// equivalent; everything else in the system is event-driven.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"post_notifier/internal/domain"
)

// RuleStore is the slice of the rule store the admin API needs.
type RuleStore interface {
	Rules(ctx context.Context) ([]domain.Rule, error)
	SaveRules(ctx context.Context, rules []domain.Rule) error
}

// CRMProbe reports whether the CRM contact tables are reachable.
type CRMProbe interface {
	Ping(ctx context.Context) error
}

type Server struct {
	rules    RuleStore
	crm      CRMProbe
	validate *validator.Validate
	logger   *slog.Logger
}

func New(rules RuleStore, crm CRMProbe, logger *slog.Logger) *Server {
	return &Server{
		rules:    rules,
		crm:      crm,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/rules", s.handleGetRules)
		r.Put("/rules", s.handlePutRules)
		r.Get("/status", s.handleStatus)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.Rules(r.Context())
	if err != nil {
		s.logger.Error("load rules failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load rules"})
		return
	}
	if rules == nil {
		rules = []domain.Rule{}
	}
	s.writeJSON(w, http.StatusOK, rulesPayload{Rules: rules})
}

type rulesPayload struct {
	Rules []domain.Rule `json:"rules"`
}

// ruleInput mirrors domain.Rule with validation tags. Inert rules are legal
// at dispatch time, but the admin API rejects them so misconfigurations
// surface where the operator can see them.
type ruleInput struct {
	CategoryID int64 `json:"category_id" validate:"required,gt=0"`
	TagID      int64 `json:"tag_id" validate:"required,gt=0"`
	TemplateID int64 `json:"template_id" validate:"gte=0"`
}

type rulesInput struct {
	Rules []ruleInput `json:"rules" validate:"required,dive"`
}

func (s *Server) handlePutRules(w http.ResponseWriter, r *http.Request) {
	var in rulesInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := s.validate.Struct(in); err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	rules := make([]domain.Rule, len(in.Rules))
	for i, ri := range in.Rules {
		rules[i] = domain.Rule{
			CategoryID: ri.CategoryID,
			TagID:      ri.TagID,
			TemplateID: ri.TemplateID,
		}
	}

	if err := s.rules.SaveRules(r.Context(), rules); err != nil {
		s.logger.Error("save rules failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save rules"})
		return
	}

	s.logger.Info("rules updated", "count", len(rules))
	s.writeJSON(w, http.StatusOK, rulesPayload{Rules: rules})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"crm_active": true}
	if err := s.crm.Ping(r.Context()); err != nil {
		s.logger.Warn("crm probe failed", "error", err)
		status["crm_active"] = false
		status["warning"] = "CRM contact store is not reachable; notifications cannot be sent"
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}
