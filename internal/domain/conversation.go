package domain

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single chat message.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Conversation is the server-side log of one chat session.
type Conversation struct {
	ID        string
	Messages  []Message // append order
	Topics    []string  // classification of the latest turn only
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConversationSummary is the projection used by metrics.
type ConversationSummary struct {
	ID           string
	MessageCount int
	Topics       []string
	UpdatedAt    time.Time
}
