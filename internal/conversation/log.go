// Package conversation keeps the server-side log of chat sessions and decides
// which history a chat turn is built on.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/google/uuid"
)

// DefaultHistoryLimit is how many trailing messages are replayed to the LLM.
const DefaultHistoryLimit = 40

// ErrUnknownConversation is returned for a client-supplied id the server never issued.
var ErrUnknownConversation = errors.New("unknown conversation")

// Store persists conversations.
type Store interface {
	AppendTurn(ctx context.Context, id string, seed, turn []domain.Message, topics []string, now time.Time) (bool, error)
	ConversationExists(ctx context.Context, id string) (bool, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
}

// Session is the resolved state a chat turn runs against.
type Session struct {
	ID      string
	History []domain.Message // messages sent to the LLM before the new one
	Seed    []domain.Message // written first when the conversation is created
	New     bool
}

// Log resolves sessions and appends turns.
type Log struct {
	store        Store
	trustClient  bool
	historyLimit int
	now          func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithHistoryLimit caps the messages replayed per turn. n <= 0 keeps the default.
func WithHistoryLimit(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.historyLimit = n
		}
	}
}

// NewLog creates a conversation log. With trustClient set, unknown ids and
// client-supplied history are accepted for new conversations.
func NewLog(store Store, trustClient bool, opts ...Option) *Log {
	l := &Log{
		store:        store,
		trustClient:  trustClient,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Resolve returns the session for id.
//
// An empty id starts a new conversation with a fresh id. A known id uses the
// stored history and ignores client history. An unknown id is rejected
// unless client history is trusted.
func (l *Log) Resolve(ctx context.Context, id string, clientHistory []domain.Message) (*Session, error) {
	id = strings.TrimSpace(id)

	if id == "" {
		s := &Session{ID: uuid.NewString(), New: true}
		if l.trustClient {
			s.History = l.tail(clientHistory)
			s.Seed = clientHistory
		}
		return s, nil
	}

	exists, err := l.store.ConversationExists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	if exists {
		conv, err := l.store.GetConversation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load conversation: %w", err)
		}
		return &Session{ID: id, History: l.tail(conv.Messages)}, nil
	}

	if !l.trustClient {
		return nil, ErrUnknownConversation
	}
	return &Session{ID: id, History: l.tail(clientHistory), Seed: clientHistory, New: true}, nil
}

// tail keeps the last historyLimit messages. The full log stays stored.
func (l *Log) tail(msgs []domain.Message) []domain.Message {
	if len(msgs) <= l.historyLimit {
		return msgs
	}
	return msgs[len(msgs)-l.historyLimit:]
}

// Append records one exchange and replaces the conversation topics.
func (l *Log) Append(ctx context.Context, s *Session, user, assistant string, topics []string) error {
	now := l.now().UTC()
	turn := []domain.Message{
		{Role: domain.RoleUser, Content: user, Timestamp: now},
		{Role: domain.RoleAssistant, Content: assistant, Timestamp: now},
	}

	if _, err := l.store.AppendTurn(ctx, s.ID, s.Seed, turn, topics, now); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}
