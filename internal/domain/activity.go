package domain

import "time"

// APICall is one routed HTTP request, recorded for usage metrics.
type APICall struct {
	Endpoint   string    `json:"endpoint"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	Timestamp  time.Time `json:"timestamp"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
}

// LLMUsage is the token accounting of a single completion.
type LLMUsage struct {
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	Timestamp        time.Time `json:"timestamp"`
}

// ModelUsage holds running totals for one model.
type ModelUsage struct {
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Requests         int64
}

// ExportRecord logs a transcript that was emailed to a visitor.
type ExportRecord struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Message        string    `json:"message,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Messages       []Message `json:"messages"`
	Timestamp      time.Time `json:"timestamp"`
}

// ContactSubmission logs a contact form that was relayed to the owner.
type ContactSubmission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
