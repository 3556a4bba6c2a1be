package store

import "time"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Summary modes.
const (
	SummaryModeNarrative = "narrative"
	SummaryModeMasked    = "masked"
)

// Turn is one conversation turn in index order.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	TurnIndex int       `json:"turn_index"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is a versioned conversation summary. Versions strictly
// increase; CoversTurnIndex is the highest turn index the summary covers.
type Summary struct {
	Version         int    `json:"version"`
	CoversTurnIndex int    `json:"covers_turn_index"`
	Mode            string `json:"mode"`
	Text            string `json:"text"`
}

// ConversationContext is the per-conversation state handed to the
// pipeline. Created on first turn, updated on every turn, archived (not
// deleted) after an inactivity TTL.
type ConversationContext struct {
	ConversationID string   `json:"conversation_id"`
	TenantID       string   `json:"tenant_id"`
	Turns          []Turn   `json:"turns"`
	Summary        *Summary `json:"summary,omitempty"`

	ClarificationPending bool      `json:"clarification_pending"`
	ClarificationDepth   int       `json:"clarification_depth"`
	LastClarification    string    `json:"last_clarification,omitempty"`
	TopicReset           bool      `json:"topic_reset"`
	LastQueryEmbedding   []float32 `json:"-"`
}
