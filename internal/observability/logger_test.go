package observability

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestWithCallerTagsEveryLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithCaller(logger, "tenant-1", "contact-9").Info("question answered")

	line := buf.String()
	if !strings.Contains(line, `"tenant_id":"tenant-1"`) {
		t.Fatalf("tenant attr missing: %s", line)
	}
	if !strings.Contains(line, `"contact_id":"contact-9"`) {
		t.Fatalf("contact attr missing: %s", line)
	}
}

func TestWithCallerToleratesNilLogger(t *testing.T) {
	if WithCaller(nil, "tenant-1", "contact-9") == nil {
		t.Fatal("expected a usable logger")
	}
}
