package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/meownm/ai-rag-sub000/pkg/llm"
)

// RewriteOutcome is the rewrite stage's contract with the pipeline.
type RewriteOutcome struct {
	ResolvedQuery         string  `json:"resolved_query"`
	ClarificationNeeded   bool    `json:"clarification_needed"`
	ClarificationQuestion string  `json:"clarification_question"`
	Confidence            float64 `json:"confidence"`
}

// RewriteAgent resolves pronouns and ellipsis against conversation
// history and flags queries too ambiguous to retrieve for. Pure LLM
// call, no retrieval.
type RewriteAgent struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

// NewRewriteAgent creates a rewrite agent.
func NewRewriteAgent(llmProvider llm.LLMProvider, logger *log.Logger) *RewriteAgent {
	return &RewriteAgent{llmProvider: llmProvider, logger: logger}
}

// Run rewrites the query in conversation context. A provider failure is
// a stage error; an unparseable response degrades to the raw query with
// low confidence rather than failing the request.
func (a *RewriteAgent) Run(ctx context.Context, query, summary string, history []llm.Message) (*RewriteOutcome, error) {
	prompt := a.buildPrompt(query, summary, history)

	response, err := a.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		return nil, fmt.Errorf("rewrite generation: %w", err)
	}

	outcome, err := parseRewrite(response)
	if err != nil {
		a.logger.Printf("[REWRITE] parse failed, using raw query: %v", err)
		return &RewriteOutcome{ResolvedQuery: query, Confidence: 0.4}, nil
	}

	if strings.TrimSpace(outcome.ResolvedQuery) == "" {
		outcome.ResolvedQuery = query
	}

	a.logger.Printf("[REWRITE] resolved=%q clarification=%t confidence=%.2f",
		truncate(outcome.ResolvedQuery, 60), outcome.ClarificationNeeded, outcome.Confidence)
	return outcome, nil
}

func (a *RewriteAgent) buildPrompt(query, summary string, history []llm.Message) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You rewrite user queries into standalone search queries.\n")
	prompt.WriteString("Resolve pronouns and references using the conversation. Do NOT answer the question.\n")
	prompt.WriteString("If the query is too ambiguous to rewrite, set clarification_needed and propose ONE short question.\n")
	prompt.WriteString("</system>\n\n")

	if summary != "" {
		prompt.WriteString("<conversation_summary>\n")
		prompt.WriteString(summary)
		prompt.WriteString("\n</conversation_summary>\n\n")
	}

	if len(history) > 0 {
		prompt.WriteString("<history>\n")
		for _, m := range history {
			prompt.WriteString(m.Role + ": " + m.Content + "\n")
		}
		prompt.WriteString("</history>\n\n")
	}

	prompt.WriteString("<user_query>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</user_query>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"resolved_query\": \"standalone query\",\n")
	prompt.WriteString("  \"clarification_needed\": false,\n")
	prompt.WriteString("  \"clarification_question\": \"\",\n")
	prompt.WriteString("  \"confidence\": 0.9\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

func parseRewrite(response string) (*RewriteOutcome, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var outcome RewriteOutcome
	if err := json.Unmarshal([]byte(jsonContent), &outcome); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}
	return &outcome, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
