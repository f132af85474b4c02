package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/payme/payme/internal/agent"
	"github.com/payme/payme/internal/audit"
	"github.com/payme/payme/internal/auth"
	"github.com/payme/payme/internal/ratelimit"
)

type stubAgent struct {
	outcome agent.Outcome
	err     error
	seen    []agent.Request
}

func (a *stubAgent) Answer(_ context.Context, req agent.Request) (agent.Outcome, error) {
	a.seen = append(a.seen, req)
	if a.err != nil {
		return agent.Outcome{}, a.err
	}
	return a.outcome, nil
}

type stubLimiter struct {
	decision ratelimit.Decision
	err      error
}

func (l *stubLimiter) Allow(context.Context, string, string) (ratelimit.Decision, error) {
	return l.decision, l.err
}

type stubAuditor struct {
	records []audit.Record
	err     error
}

func (a *stubAuditor) Record(_ context.Context, record audit.Record) error {
	a.records = append(a.records, record)
	return a.err
}

func answeredOutcome() agent.Outcome {
	return agent.Outcome{
		Status:     agent.StatusAnswered,
		Answer:     "$50.000",
		SQL:        "SELECT SUM(amount) FROM agreements WHERE tenant_id = 'tenant-1'",
		Confidence: 97,
		Rows:       []map[string]any{{"total": float64(50000)}},
		Attempts:   []agent.Attempt{{Number: 1, Stage: "answered"}},
	}
}

func postQuestion(t *testing.T, handler http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/questions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func devHeaders() map[string]string {
	return map[string]string{"X-Tenant-ID": "tenant-1", "X-Contact-ID": "contact-9"}
}

func TestQuestionAnswered(t *testing.T) {
	stub := &stubAgent{outcome: answeredOutcome()}
	auditor := &stubAuditor{}
	deps := Dependencies{
		Logger:  testLogger(),
		Agent:   stub,
		Auditor: auditor,
	}
	handler := NewHandler(testConfig(t), deps)

	rr := postQuestion(t, handler, `{"question": "¿cuánto me debe Caty?"}`, devHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}

	var resp questionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != agent.StatusAnswered {
		t.Fatalf("status = %s", resp.Status)
	}
	if resp.Answer != "$50.000" {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if resp.Attempts != 1 {
		t.Fatalf("attempts = %d", resp.Attempts)
	}
	if resp.TraceID == "" {
		t.Fatal("trace id missing")
	}

	if len(stub.seen) != 1 {
		t.Fatalf("agent calls = %d", len(stub.seen))
	}
	if stub.seen[0].TenantID != "tenant-1" || stub.seen[0].CallerID != "contact-9" {
		t.Fatalf("agent request = %+v", stub.seen[0])
	}

	if len(auditor.records) != 1 {
		t.Fatalf("audit records = %d", len(auditor.records))
	}
	record := auditor.records[0]
	if record.TenantID != "tenant-1" || record.Status != agent.StatusAnswered || record.RowCount != 1 {
		t.Fatalf("audit record = %+v", record)
	}
}

func TestQuestionAuditFailureDoesNotFailRequest(t *testing.T) {
	deps := Dependencies{
		Logger:  testLogger(),
		Agent:   &stubAgent{outcome: answeredOutcome()},
		Auditor: &stubAuditor{err: errors.New("bucket gone")},
	}
	handler := NewHandler(testConfig(t), deps)

	rr := postQuestion(t, handler, `{"question": "totals?"}`, devHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQuestionRateLimited(t *testing.T) {
	deps := Dependencies{
		Logger:  testLogger(),
		Agent:   &stubAgent{outcome: answeredOutcome()},
		Limiter: &stubLimiter{decision: ratelimit.Decision{Allowed: false, Window: "hour"}},
	}
	handler := NewHandler(testConfig(t), deps)

	rr := postQuestion(t, handler, `{"question": "totals?"}`, devHeaders())
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error_code"] != "RATE_LIMITED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestQuestionLimiterBackendDown(t *testing.T) {
	deps := Dependencies{
		Logger:  testLogger(),
		Agent:   &stubAgent{outcome: answeredOutcome()},
		Limiter: &stubLimiter{err: errors.New("redis down")},
	}
	handler := NewHandler(testConfig(t), deps)

	rr := postQuestion(t, handler, `{"question": "totals?"}`, devHeaders())
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQuestionValidation(t *testing.T) {
	deps := Dependencies{Logger: testLogger(), Agent: &stubAgent{outcome: answeredOutcome()}}
	handler := NewHandler(testConfig(t), deps)

	cases := map[string]string{
		"empty body":    ``,
		"unknown field": `{"question": "x", "sql": "SELECT 1"}`,
		"no question":   `{}`,
		"blank":         `{"question": "   "}`,
		"too long":      `{"question": "` + strings.Repeat("q", 501) + `"}`,
	}
	for name, body := range cases {
		rr := postQuestion(t, handler, body, devHeaders())
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", name, rr.Code)
		}
	}
}

func TestQuestionRequiresCaller(t *testing.T) {
	deps := Dependencies{Logger: testLogger(), Agent: &stubAgent{outcome: answeredOutcome()}}
	handler := NewHandler(testConfig(t), deps)

	rr := postQuestion(t, handler, `{"question": "totals?"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQuestionAgentError(t *testing.T) {
	deps := Dependencies{Logger: testLogger(), Agent: &stubAgent{err: errors.New("snapshot failed")}}
	handler := NewHandler(testConfig(t), deps)

	rr := postQuestion(t, handler, `{"question": "totals?"}`, devHeaders())
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQuestionWithRequiredAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Required = true

	validator, err := auth.NewStaticAPIKeyValidator("k1:tenant-1:contact-9:question_asker")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	stub := &stubAgent{outcome: answeredOutcome()}
	deps := Dependencies{
		Logger:         testLogger(),
		Agent:          stub,
		AuthMiddleware: auth.Middleware(testLogger(), validator),
	}
	handler := NewHandler(cfg, deps)

	// Without a key the question is rejected before the agent runs.
	rr := postQuestion(t, handler, `{"question": "totals?"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}

	// Identity comes from the key, not from headers.
	rr = postQuestion(t, handler, `{"question": "totals?"}`, map[string]string{
		"X-API-Key":    "k1",
		"X-Tenant-ID":  "tenant-666",
		"X-Contact-ID": "contact-666",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if stub.seen[0].TenantID != "tenant-1" || stub.seen[0].CallerID != "contact-9" {
		t.Fatalf("agent request = %+v, want identity from API key", stub.seen[0])
	}
}

func TestQuestionRoleEnforced(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Required = true

	validator, err := auth.NewStaticAPIKeyValidator("k2:tenant-1:contact-9:other_role")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	deps := Dependencies{
		Logger:         testLogger(),
		Agent:          &stubAgent{outcome: answeredOutcome()},
		AuthMiddleware: auth.Middleware(testLogger(), validator),
	}
	handler := NewHandler(cfg, deps)

	rr := postQuestion(t, handler, `{"question": "totals?"}`, map[string]string{"X-API-Key": "k2"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQuestionThreadsExpectedShape(t *testing.T) {
	stub := &stubAgent{outcome: answeredOutcome()}
	handler := NewHandler(testConfig(t), Dependencies{Logger: testLogger(), Agent: stub})

	rr := postQuestion(t, handler, `{"question": "¿a quién le debo?", "expected_shape": "list"}`, devHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if len(stub.seen) != 1 {
		t.Fatalf("agent calls = %d", len(stub.seen))
	}
	if stub.seen[0].ExpectedShape != agent.ShapeList {
		t.Fatalf("expected shape = %q", stub.seen[0].ExpectedShape)
	}
}

func TestQuestionRejectsUnknownExpectedShape(t *testing.T) {
	stub := &stubAgent{outcome: answeredOutcome()}
	handler := NewHandler(testConfig(t), Dependencies{Logger: testLogger(), Agent: stub})

	rr := postQuestion(t, handler, `{"question": "¿a quién le debo?", "expected_shape": "tabla"}`, devHeaders())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "INVALID_SHAPE") {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if len(stub.seen) != 0 {
		t.Fatalf("agent ran for an invalid shape: %d calls", len(stub.seen))
	}
}
