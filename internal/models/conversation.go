package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message statuses. A user message is created complete and never changes.
// An assistant message starts streaming and ends in exactly one terminal state.
const (
	MessageStreaming = "streaming"
	MessageComplete  = "complete"
	MessageError     = "error"
)

// Conversation represents a persistent chat session owned by a user.
type Conversation struct {
	ID        surrealmodels.RecordID `json:"id"`
	User      surrealmodels.RecordID `json:"user"`
	Model     string                 `json:"model"`
	Title     string                 `json:"title"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Message represents a single chat message within a conversation.
// Content is mutable while Status is streaming, frozen afterwards.
type Message struct {
	ID           surrealmodels.RecordID `json:"id"`
	Conversation surrealmodels.RecordID `json:"conversation"`
	Role         string                 `json:"role"`
	Content      string                 `json:"content"`
	Status       string                 `json:"status"`
	TokenCount   *int                   `json:"token_count,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
