// Package assistant drives one conversation turn: prompt assembly, text
// generation, SQL extraction, optional execution, and a second narration
// pass over the results or the error.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/anthropic"
	"github.com/sqlchat/sqlchat/internal/backend"
	"github.com/sqlchat/sqlchat/internal/format"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/session"
)

const (
	maxTokens     = 4000
	temperature   = 0.1
	historyWindow = 10
)

// Generator is the text generation capability, one call per invocation.
type Generator interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int, temperature float64) (string, error)
}

// Executor runs a query against the active backend.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) (*backend.Result, error)
}

type OutcomeKind string

const (
	OutcomeAnswer            OutcomeKind = "answer"
	OutcomeAnsweredWithQuery OutcomeKind = "answered_with_query"
	OutcomeAnsweredWithError OutcomeKind = "answered_with_error"
)

// Outcome is the single result of a turn. Query is set whenever a fenced
// SQL block was extracted, even if it was never executed.
type Outcome struct {
	Kind         OutcomeKind
	Text         string
	Query        string
	RowsSummary  string
	ErrorMessage string
}

type Assistant struct {
	gen     Generator
	logger  *slog.Logger
	metrics *observability.Metrics
}

func New(gen Generator, logger *slog.Logger, metrics *observability.Metrics) *Assistant {
	return &Assistant{gen: gen, logger: logger, metrics: metrics}
}

var sqlFence = regexp.MustCompile("(?s)```sql\\s+(.*?)\\s+```")

// ExtractSQL returns the body of the first sql-tagged fenced block, or ""
// when the text has none. Later blocks are ignored.
func ExtractSQL(text string) string {
	match := sqlFence.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// Respond resolves one user turn into exactly one outcome. The executor may
// be nil, in which case an extracted query is reported but never run.
func (a *Assistant) Respond(ctx context.Context, userMessage, schemaText string, history []session.Turn, exec Executor) Outcome {
	system := a.buildSystemPrompt(schemaText)

	messages := make([]anthropic.Message, 0, historyWindow+1)
	for _, turn := range session.Tail(history, historyWindow) {
		messages = append(messages, anthropic.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, anthropic.Message{Role: session.RoleUser, Content: userMessage})

	text, err := a.complete(ctx, system, messages)
	if err != nil {
		a.logger.Error("generation failed", "error", err)
		outcome := Outcome{Kind: OutcomeAnswer, Text: fmt.Sprintf(apologyFallback, err)}
		a.metrics.ObserveTurn(string(outcome.Kind))
		return outcome
	}

	query := ExtractSQL(text)
	if query == "" || exec == nil {
		outcome := Outcome{Kind: OutcomeAnswer, Text: text, Query: query}
		a.metrics.ObserveTurn(string(outcome.Kind))
		return outcome
	}

	start := time.Now()
	result, err := exec.Execute(ctx, query)
	a.metrics.ObserveQuery(time.Since(start))

	var outcome Outcome
	if err != nil {
		a.logger.Warn("query execution failed", "query", query, "error", err)
		outcome = a.narrateError(ctx, userMessage, schemaText, query, err)
	} else {
		outcome = a.narrateResults(ctx, userMessage, schemaText, query, result)
	}
	a.metrics.ObserveTurn(string(outcome.Kind))
	return outcome
}

// narrateResults shapes the rows and asks the generator to explain them.
// If the second pass fails, the outcome degrades to a deterministic string
// embedding the query and the shaped results; there is no retry.
func (a *Assistant) narrateResults(ctx context.Context, userMessage, schemaText, query string, result *backend.Result) Outcome {
	shaped := format.Results(result)
	system := a.buildSystemPrompt(schemaText) + "\n" + resultsInstructions
	content := fmt.Sprintf(resultsMessage, userMessage, query, shaped)

	text, err := a.complete(ctx, system, []anthropic.Message{{Role: session.RoleUser, Content: content}})
	if err != nil {
		a.logger.Error("results narration failed", "error", err)
		text = fmt.Sprintf(resultsFallback, query, shaped, err)
	}
	return Outcome{Kind: OutcomeAnsweredWithQuery, Text: text, Query: query, RowsSummary: shaped}
}

// narrateError asks the generator to explain the failure from the error
// text alone. Same local degradation policy as narrateResults.
func (a *Assistant) narrateError(ctx context.Context, userMessage, schemaText, query string, execErr error) Outcome {
	system := a.buildSystemPrompt(schemaText) + "\n" + errorInstructions
	content := fmt.Sprintf(errorMessage, userMessage, query, execErr)

	text, err := a.complete(ctx, system, []anthropic.Message{{Role: session.RoleUser, Content: content}})
	if err != nil {
		a.logger.Error("error narration failed", "error", err)
		text = fmt.Sprintf(errorFallback, query, execErr, err)
	}
	return Outcome{Kind: OutcomeAnsweredWithError, Text: text, Query: query, ErrorMessage: execErr.Error()}
}

func (a *Assistant) complete(ctx context.Context, system string, messages []anthropic.Message) (string, error) {
	start := time.Now()
	text, err := a.gen.Complete(ctx, system, messages, maxTokens, temperature)
	a.metrics.ObserveGeneration(time.Since(start))
	return text, err
}

var schemaHeader = regexp.MustCompile(`(?i)Database Schema (?:for|of)?\s+([A-Za-z0-9_]+)`)

// recognizeDatabase maps a schema snapshot to a database label, first by the
// snapshot's header line, then by substring patterns. Empty when unknown.
func recognizeDatabase(schemaText string) string {
	if schemaText == "" {
		return ""
	}
	if match := schemaHeader.FindStringSubmatch(schemaText); match != nil {
		return match[1]
	}
	lower := strings.ToLower(schemaText)
	for _, p := range databasePatterns {
		if strings.Contains(lower, p.pattern) {
			return p.label
		}
	}
	return ""
}

func (a *Assistant) buildSystemPrompt(schemaText string) string {
	prompt := basePrompt
	if addendum, ok := databaseAddenda[recognizeDatabase(schemaText)]; ok {
		prompt += "\n\n" + addendum
	}
	if schemaText != "" {
		prompt += "\n\nDatabase Schema Information:\n" + schemaText
	}
	return prompt
}
