package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/meownm/ai-rag-sub000/pkg/llm"
	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// AnswerAgent generates the final answer strictly from the assembled
// context and reports the citations the model claims to have used.
// Grounding verification happens after this stage, not inside it.
type AnswerAgent struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

// NewAnswerAgent creates an answer agent.
func NewAnswerAgent(llmProvider llm.LLMProvider, logger *log.Logger) *AnswerAgent {
	return &AnswerAgent{llmProvider: llmProvider, logger: logger}
}

// AnswerOutcome is the answer stage's contract with the pipeline.
type AnswerOutcome struct {
	Answer    string
	Citations []store.Citation
}

type answerPayload struct {
	Answer    string `json:"answer"`
	Citations []struct {
		ChunkID    string `json:"chunk_id"`
		DocumentID string `json:"document_id"`
		Snippet    string `json:"snippet"`
	} `json:"citations"`
}

// Run generates an answer from the context set. A provider failure is a
// retryable stage error for the caller.
func (a *AnswerAgent) Run(ctx context.Context, query string, contextChunks []store.Candidate, citationsRequested bool) (*AnswerOutcome, error) {
	prompt := a.buildPrompt(query, contextChunks, citationsRequested)

	response, err := a.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.3))
	if err != nil {
		return nil, fmt.Errorf("answer generation: %w", err)
	}

	outcome := parseAnswer(response)
	a.logger.Printf("[ANSWER] generated %d chars, %d declared citations", len(outcome.Answer), len(outcome.Citations))
	return outcome, nil
}

func (a *AnswerAgent) buildPrompt(query string, contextChunks []store.Candidate, citationsRequested bool) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("Answer the question using ONLY the context below.\n")
	prompt.WriteString("Never state anything the context does not support. If the context is insufficient, say so.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<context>\n")
	for _, c := range contextChunks {
		prompt.WriteString(fmt.Sprintf("[chunk %s | document %s | %s]\n%s\n\n", c.ChunkID, c.DocumentID, c.HeadingPath, c.Text))
	}
	prompt.WriteString("</context>\n\n")

	prompt.WriteString("<question>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</question>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"answer\": \"your answer\",\n")
	if citationsRequested {
		prompt.WriteString("  \"citations\": [{\"chunk_id\": \"...\", \"document_id\": \"...\", \"snippet\": \"quoted supporting text\"}]\n")
	} else {
		prompt.WriteString("  \"citations\": []\n")
	}
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

// parseAnswer tolerates prose-wrapped or malformed JSON by falling back
// to the raw response with no citations; the grounding verifier decides
// whether that text survives.
func parseAnswer(response string) *AnswerOutcome {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return &AnswerOutcome{Answer: strings.TrimSpace(response)}
	}

	var payload answerPayload
	if err := json.Unmarshal([]byte(jsonContent), &payload); err != nil {
		return &AnswerOutcome{Answer: strings.TrimSpace(response)}
	}

	outcome := &AnswerOutcome{Answer: payload.Answer}
	for _, c := range payload.Citations {
		outcome.Citations = append(outcome.Citations, store.Citation{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Snippet:    c.Snippet,
		})
	}
	return outcome
}
