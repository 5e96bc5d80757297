// Package chat runs one visitor turn against the LLM.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/folio/internal/conversation"
	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/llm"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/goccy/go-json"
)

var (
	// ErrUnknownConversation is returned for a conversation id the server never issued.
	ErrUnknownConversation = conversation.ErrUnknownConversation
	// ErrUpstream wraps every failure of the completion provider.
	ErrUpstream = errors.New("llm provider failure")
	// ErrNoPrompt is returned when the persona prompt cannot be built.
	ErrNoPrompt = errors.New("system prompt unavailable")
)

// Completer produces chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, jsonObject bool) (*llm.Completion, error)
}

// Sessions resolves and records conversations.
type Sessions interface {
	Resolve(ctx context.Context, id string, clientHistory []domain.Message) (*conversation.Session, error)
	Append(ctx context.Context, s *conversation.Session, user, assistant string, topics []string) error
}

// UsageRecorder stores token accounting.
type UsageRecorder interface {
	RecordLLMUsage(ctx context.Context, u domain.LLMUsage) error
}

// PromptSource supplies the system prompt.
type PromptSource interface {
	SystemPrompt() (string, error)
}

// Turn is one visitor message.
type Turn struct {
	ConversationID string
	History        []domain.Message // as sent by the client
	Message        string
}

// Reply is the assistant answer to a turn.
type Reply struct {
	ConversationID string
	Content        string
	Topics         []string
}

// Gateway runs chat turns.
type Gateway struct {
	llm      Completer
	sessions Sessions
	usage    UsageRecorder
	prompt   PromptSource
	model    string
	log      logger.Logger
	now      func() time.Time
}

// NewGateway creates a chat gateway. model is recorded with usage when the
// provider does not echo one.
func NewGateway(c Completer, sessions Sessions, usage UsageRecorder, prompt PromptSource, model string, log logger.Logger) *Gateway {
	return &Gateway{
		llm:      c,
		sessions: sessions,
		usage:    usage,
		prompt:   prompt,
		model:    model,
		log:      log,
		now:      time.Now,
	}
}

// HandleTurn makes exactly one completion call. Usage and conversation
// logging failures are logged and do not fail the turn, except when the
// turn starts a conversation: its id only exists once stored.
func (g *Gateway) HandleTurn(ctx context.Context, t Turn) (*Reply, error) {
	session, err := g.sessions.Resolve(ctx, t.ConversationID, t.History)
	if err != nil {
		return nil, err
	}

	system, err := g.prompt.SystemPrompt()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPrompt, err)
	}

	messages := make([]llm.Message, 0, len(session.History)+2)
	messages = append(messages, llm.Message{Role: string(domain.RoleSystem), Content: system})
	for _, m := range session.History {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: string(domain.RoleUser), Content: t.Message})

	completion, err := g.llm.Complete(ctx, messages, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	g.recordUsage(ctx, completion)

	content, topics := parseAnswer(completion.Content)

	if err := g.sessions.Append(ctx, session, t.Message, content, topics); err != nil {
		// an id that was never stored would be rejected on the next turn
		if session.New {
			return nil, fmt.Errorf("start conversation %s: %w", session.ID, err)
		}
		g.log.Warn("failed to log conversation",
			logger.String("conversation_id", session.ID),
			logger.Error(err))
	}

	return &Reply{
		ConversationID: session.ID,
		Content:        content,
		Topics:         topics,
	}, nil
}

func (g *Gateway) recordUsage(ctx context.Context, c *llm.Completion) {
	model := c.Model
	if model == "" {
		model = g.model
	}
	err := g.usage.RecordLLMUsage(context.WithoutCancel(ctx), domain.LLMUsage{
		Model:            model,
		PromptTokens:     c.Usage.PromptTokens,
		CompletionTokens: c.Usage.CompletionTokens,
		TotalTokens:      c.Usage.TotalTokens,
		Timestamp:        g.now().UTC(),
	})
	if err != nil {
		g.log.Warn("failed to record llm usage", logger.Error(err))
	}
}

type answer struct {
	Message *string  `json:"message"`
	Topics  []string `json:"topics"`
}

// parseAnswer extracts {"message","topics"} from the completion. Anything
// else is returned verbatim with no topics.
func parseAnswer(raw string) (string, []string) {
	var a answer
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &a); err != nil {
		return raw, []string{}
	}

	content := raw
	if a.Message != nil {
		content = *a.Message
	}

	topics := make([]string, 0, len(a.Topics))
	for _, t := range a.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return content, topics
}
