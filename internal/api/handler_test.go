package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/payme/payme/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("payme-agent", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Logger: testLogger()})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
	if body["service"] != "payme-agent" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointWithoutChecks(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Logger: testLogger()})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointFailingCheck(t *testing.T) {
	deps := Dependencies{
		Logger: testLogger(),
		Readiness: func(context.Context) error {
			return errors.New("db unreachable")
		},
	}
	handler := NewHandler(testConfig(t), deps)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Logger: testLogger()})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCheckDatabaseDSN(t *testing.T) {
	cfg := testConfig(t)
	if err := CheckDatabaseDSN(cfg)(context.Background()); err != nil {
		t.Fatalf("dev profile ships a default DSN: %v", err)
	}

	cfg.Database.DSN = ""
	if err := CheckDatabaseDSN(cfg)(context.Background()); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestCombineReadinessChecks(t *testing.T) {
	boom := errors.New("boom")
	combined := CombineReadinessChecks(
		nil,
		func(context.Context) error { return nil },
		func(context.Context) error { return boom },
	)
	if err := combined(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
