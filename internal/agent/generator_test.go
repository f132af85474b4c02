package agent

import (
	"strings"
	"testing"
)

func TestParseGeneratedCandidate(t *testing.T) {
	content := `{"sql": "SELECT amount FROM agreements WHERE tenant_id = 't'", "explanation": "total owed"}`
	candidate, err := parseGeneratedCandidate(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasPrefix(candidate.SQL, "SELECT") {
		t.Fatalf("sql = %q", candidate.SQL)
	}
	if candidate.Explanation != "total owed" {
		t.Fatalf("explanation = %q", candidate.Explanation)
	}
	if candidate.Complexity != ComplexitySimple {
		t.Fatalf("complexity = %s, want simple", candidate.Complexity)
	}
}

func TestParseGeneratedCandidateStripsSurroundingProse(t *testing.T) {
	content := "Sure, here you go:\n{\"sql\": \"SELECT 1\", \"explanation\": \"x\"}\nlet me know"
	candidate, err := parseGeneratedCandidate(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if candidate.SQL != "SELECT 1" {
		t.Fatalf("sql = %q", candidate.SQL)
	}
}

func TestParseGeneratedCandidateMissingSQL(t *testing.T) {
	if _, err := parseGeneratedCandidate(`{"explanation": "no sql here"}`); err == nil {
		t.Fatal("expected error when sql field is missing")
	}
}

func TestParseGeneratedCandidateNonJSON(t *testing.T) {
	if _, err := parseGeneratedCandidate("SELECT 1"); err == nil {
		t.Fatal("expected error for bare SQL without JSON wrapper")
	}
}

func TestParseGeneratedCandidateDefaultsExplanation(t *testing.T) {
	candidate, err := parseGeneratedCandidate(`{"sql": "SELECT 1"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if candidate.Explanation == "" {
		t.Fatal("expected a default explanation")
	}
}
