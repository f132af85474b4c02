package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/payme/payme/internal/agent"
	"github.com/payme/payme/internal/audit"
	"github.com/payme/payme/internal/auth"
	"github.com/payme/payme/internal/config"
	"github.com/payme/payme/internal/observability"
)

type questionRequest struct {
	Question      string `json:"question"`
	ExpectedShape string `json:"expected_shape,omitempty"`
}

type questionResponse struct {
	Status      string `json:"status"`
	Answer      string `json:"answer"`
	SQL         string `json:"sql,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Confidence  int    `json:"confidence,omitempty"`
	Attempts    int    `json:"attempts"`
	TraceID     string `json:"trace_id"`
}

func handleQuestion(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Agent == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AGENT_NOT_CONFIGURED", "question agent is not configured", false, nil)
		return
	}

	tenantID, contactID, err := callerFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "CALLER_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, "question_asker"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request questionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return
	}

	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	if maxChars := cfg.Agent.MaxQuestionChars; maxChars > 0 && len(question) > maxChars {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_TOO_LONG",
			fmt.Sprintf("question exceeds %d characters", maxChars), false, nil)
		return
	}
	expectedShape, ok := agent.ParseShape(strings.TrimSpace(request.ExpectedShape))
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SHAPE",
			fmt.Sprintf("unknown expected_shape %q", request.ExpectedShape), false, nil)
		return
	}

	if deps.Limiter != nil {
		decision, err := deps.Limiter.Allow(r.Context(), tenantID, contactID)
		if err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "RATE_LIMITER_UNAVAILABLE", "rate limiter backend is unavailable", true, nil)
			return
		}
		if !decision.Allowed {
			observability.IncrementRateLimited()
			writeError(r.Context(), w, http.StatusTooManyRequests, "RATE_LIMITED",
				fmt.Sprintf("question budget exhausted for this %s", decision.Window), true,
				map[string]any{"window": decision.Window})
			return
		}
	}

	askedAt := time.Now().UTC()
	outcome, err := deps.Agent.Answer(r.Context(), agent.Request{
		TenantID:      tenantID,
		CallerID:      contactID,
		Question:      question,
		ExpectedShape: expectedShape,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "AGENT_ERROR", "failed to process question", true, map[string]any{"details": err.Error()})
		return
	}

	recordAudit(r, deps, audit.Record{
		TraceID:    observability.TraceIDFromContext(r.Context()),
		TenantID:   tenantID,
		ContactID:  contactID,
		Question:   question,
		Status:     outcome.Status,
		SQL:        outcome.SQL,
		Confidence: outcome.Confidence,
		RowCount:   len(outcome.Rows),
		Attempts:   outcome.Attempts,
		AskedAt:    askedAt,
		Elapsed:    time.Since(askedAt),
	})

	writeJSON(w, http.StatusOK, questionResponse{
		Status:      outcome.Status,
		Answer:      outcome.Answer,
		SQL:         outcome.SQL,
		Explanation: outcome.Explanation,
		Confidence:  outcome.Confidence,
		Attempts:    len(outcome.Attempts),
		TraceID:     observability.TraceIDFromContext(r.Context()),
	})
}

// recordAudit persists the trail without ever failing the request.
func recordAudit(r *http.Request, deps Dependencies, record audit.Record) {
	if deps.Auditor == nil {
		return
	}
	if err := deps.Auditor.Record(r.Context(), record); err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "audit record failed",
			slog.String("trace_id", record.TraceID),
			slog.String("error", err.Error()))
	}
}

func callerFromRequest(r *http.Request) (string, string, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if strings.TrimSpace(identity.TenantID) != "" && strings.TrimSpace(identity.ContactID) != "" {
			return identity.TenantID, identity.ContactID, nil
		}
	}
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
	contactID := strings.TrimSpace(r.Header.Get("X-Contact-ID"))
	if tenantID == "" || contactID == "" {
		return "", "", fmt.Errorf("caller context is required")
	}
	return tenantID, contactID, nil
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
