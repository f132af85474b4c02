package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/payme/payme/internal/config"
	"github.com/payme/payme/internal/observability"
	"github.com/payme/payme/internal/schema"
)

const clarificationMessage = "No pude generar una consulta segura para tu pregunta. ¿Puedes reformularla con más detalle?"

// Status of a finished question.
const (
	StatusAnswered            = "answered"
	StatusClarificationNeeded = "clarification_needed"
)

// ContextProvider supplies the per-request schema snapshot.
type ContextProvider interface {
	Snapshot(ctx context.Context, tenantID, callerID string) (schema.Context, error)
}

// Executor runs one approved statement and returns flat result rows.
type Executor interface {
	Execute(ctx context.Context, sqlText string) ([]map[string]any, error)
}

// Request is one natural-language question scoped to a caller. An
// empty ExpectedShape means the answer shape is detected from the
// result rows.
type Request struct {
	TenantID      string
	CallerID      string
	Question      string
	ExpectedShape ResultShape
}

// Attempt records what happened to one candidate, with the statement
// already sanitized for logging.
type Attempt struct {
	Number         int      `json:"number"`
	SQL            string   `json:"sql"`
	Explanation    string   `json:"explanation"`
	Complexity     string   `json:"complexity"`
	Stage          string   `json:"stage"`
	SyntaxErrors   []string `json:"syntax_errors,omitempty"`
	SyntaxWarnings []string `json:"syntax_warnings,omitempty"`
	Confidence     int      `json:"confidence,omitempty"`
	ReviewIssues   []string `json:"review_issues,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Outcome is the terminal result of a question: either an answer backed
// by executed rows or a request for clarification. The attempt trail is
// always present for auditing.
type Outcome struct {
	Status      string           `json:"status"`
	Answer      string           `json:"answer"`
	SQL         string           `json:"sql,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Rows        []map[string]any `json:"rows,omitempty"`
	Confidence  int              `json:"confidence,omitempty"`
	Attempts    []Attempt        `json:"attempts"`
}

// Agent drives the generate, validate, review, execute pipeline with a
// bounded retry loop. Every candidate passes the deterministic syntax
// check twice: once before review and once immediately before
// execution.
type Agent struct {
	provider  ContextProvider
	generator Generator
	reviewer  Reviewer
	executor  Executor
	logger    *slog.Logger

	maxAttempts      int
	maxJoins         int
	maxSQLLength     int
	maxQuestionChars int
}

func New(provider ContextProvider, generator Generator, reviewer Reviewer, executor Executor, cfg config.AgentConfig, logger *slog.Logger) (*Agent, error) {
	if provider == nil {
		return nil, fmt.Errorf("context provider is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if reviewer == nil {
		return nil, fmt.Errorf("reviewer is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	maxQuestionChars := cfg.MaxQuestionChars
	if maxQuestionChars <= 0 {
		maxQuestionChars = 500
	}
	return &Agent{
		provider:         provider,
		generator:        generator,
		reviewer:         reviewer,
		executor:         executor,
		logger:           logger,
		maxAttempts:      maxAttempts,
		maxJoins:         cfg.MaxJoins,
		maxSQLLength:     cfg.MaxSQLLength,
		maxQuestionChars: maxQuestionChars,
	}, nil
}

// Answer resolves one question end to end. A non-nil error means the
// pipeline itself broke (snapshot failure, invalid input); exhausting
// all attempts is not an error but a clarification outcome.
func (a *Agent) Answer(ctx context.Context, req Request) (Outcome, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Outcome{}, fmt.Errorf("question is required")
	}
	if len(question) > a.maxQuestionChars {
		return Outcome{}, fmt.Errorf("question too long (%d chars, max %d)", len(question), a.maxQuestionChars)
	}
	expectedShape, ok := ParseShape(string(req.ExpectedShape))
	if !ok {
		return Outcome{}, fmt.Errorf("unknown expected shape %q", req.ExpectedShape)
	}

	sc, err := a.provider.Snapshot(ctx, req.TenantID, req.CallerID)
	if err != nil {
		return Outcome{}, fmt.Errorf("schema snapshot: %w", err)
	}
	logger := observability.WithCaller(a.logger, req.TenantID, req.CallerID)

	syntaxOpts := SyntaxOptions{
		RequiredTenantID: sc.TenantID,
		MaxJoins:         a.maxJoins,
		MaxLength:        a.maxSQLLength,
		AllowedTables:    sc.AllowedTableNames(),
	}

	var attempts []Attempt
	feedback := ""

	for number := 1; number <= a.maxAttempts; number++ {
		observability.ObserveAttempt()
		attempt := Attempt{Number: number}

		candidate, err := a.generator.Generate(ctx, question, sc, feedback)
		if err != nil {
			attempt.Stage = "generate"
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)
			observability.ObserveAttemptFailure("generate")
			logger.WarnContext(ctx, "candidate generation failed",
				slog.Int("attempt", number), slog.String("error", err.Error()))
			feedback = "the previous attempt failed to produce valid JSON output; respond with the required JSON object only"
			continue
		}
		attempt.SQL = SanitizeForLog(candidate.SQL)
		attempt.Explanation = candidate.Explanation
		attempt.Complexity = string(candidate.Complexity)

		syntax := ValidateSyntax(candidate.SQL, syntaxOpts)
		attempt.SyntaxWarnings = syntax.Warnings
		if !syntax.Valid {
			attempt.Stage = "syntax"
			attempt.SyntaxErrors = syntax.Errors
			attempts = append(attempts, attempt)
			observability.ObserveAttemptFailure("syntax")
			logger.WarnContext(ctx, "candidate rejected by syntax validation",
				slog.Int("attempt", number),
				slog.String("sql", attempt.SQL),
				slog.Any("errors", syntax.Errors))
			feedback = "the previous SQL was rejected by validation:\n- " + strings.Join(syntax.Errors, "\n- ")
			continue
		}

		review, err := a.reviewer.Review(ctx, candidate.SQL, question, sc)
		if err != nil {
			attempt.Stage = "review"
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)
			observability.ObserveAttemptFailure("review")
			logger.WarnContext(ctx, "semantic review failed",
				slog.Int("attempt", number), slog.String("error", err.Error()))
			feedback = "the previous attempt could not be reviewed; generate the query again"
			continue
		}
		attempt.Confidence = review.Confidence
		attempt.ReviewIssues = review.Issues
		// The reviewer is untrusted model output; its approved flag
		// counts only together with the confidence threshold.
		if !review.Approved || review.Confidence < ApprovalConfidence {
			attempt.Stage = "review"
			attempts = append(attempts, attempt)
			observability.ObserveAttemptFailure("review")
			logger.WarnContext(ctx, "candidate rejected by semantic review",
				slog.Int("attempt", number),
				slog.String("sql", attempt.SQL),
				slog.Int("confidence", review.Confidence),
				slog.Any("issues", review.Issues))
			feedback = buildReviewFeedback(review)
			continue
		}

		// The statement may have traveled through the model twice;
		// re-check it right before it reaches the database.
		if recheck := ValidateSyntax(candidate.SQL, syntaxOpts); !recheck.Valid {
			attempt.Stage = "syntax"
			attempt.SyntaxErrors = recheck.Errors
			attempts = append(attempts, attempt)
			observability.ObserveAttemptFailure("syntax")
			feedback = "the previous SQL was rejected by validation:\n- " + strings.Join(recheck.Errors, "\n- ")
			continue
		}

		rows, err := a.executor.Execute(ctx, candidate.SQL)
		if err != nil {
			attempt.Stage = "execute"
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)
			observability.ObserveAttemptFailure("execute")
			logger.WarnContext(ctx, "candidate execution failed",
				slog.Int("attempt", number),
				slog.String("sql", attempt.SQL),
				slog.String("error", err.Error()))
			feedback = fmt.Sprintf("the previous SQL failed during execution: %s", err)
			continue
		}

		attempt.Stage = "answered"
		attempts = append(attempts, attempt)
		observability.ObserveExecutionRows(len(rows))
		observability.ObserveQuestion(StatusAnswered)

		shape := expectedShape
		if shape == "" {
			shape = DetectShape(rows)
		}
		logger.InfoContext(ctx, "question answered",
			slog.Int("attempts", number),
			slog.String("sql", attempt.SQL),
			slog.Int("confidence", review.Confidence),
			slog.Int("rows", len(rows)))
		return Outcome{
			Status:      StatusAnswered,
			Answer:      FormatAnswer(rows, shape),
			SQL:         attempt.SQL,
			Explanation: candidate.Explanation,
			Rows:        rows,
			Confidence:  review.Confidence,
			Attempts:    attempts,
		}, nil
	}

	observability.ObserveQuestion(StatusClarificationNeeded)
	logger.InfoContext(ctx, "question exhausted all attempts",
		slog.Int("attempts", len(attempts)))
	return Outcome{
		Status:   StatusClarificationNeeded,
		Answer:   clarificationMessage,
		Attempts: attempts,
	}, nil
}

func buildReviewFeedback(review SemanticResult) string {
	var parts []string
	if len(review.Issues) > 0 {
		parts = append(parts, "the security reviewer found these problems:\n- "+strings.Join(review.Issues, "\n- "))
	}
	if review.Reasoning != "" {
		parts = append(parts, "reviewer reasoning: "+review.Reasoning)
	}
	if review.SuggestedFix != "" {
		parts = append(parts, "a corrected version was suggested; start from it:\n"+review.SuggestedFix)
	}
	if len(parts) == 0 {
		parts = append(parts, "the security reviewer rejected the query without detail; generate a simpler, safer query")
	}
	return strings.Join(parts, "\n")
}
