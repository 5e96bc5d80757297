package deps

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/folio/internal/chat"
	"github.com/MrSnakeDoc/folio/internal/content"
	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/endorsement"
	"github.com/MrSnakeDoc/folio/internal/logger"
)

// ChatService runs one chat turn. *chat.Gateway implements it.
type ChatService interface {
	HandleTurn(ctx context.Context, t chat.Turn) (*chat.Reply, error)
}

// EndorsementService is the OTP-gated endorsement workflow. *endorsement.Workflow implements it.
type EndorsementService interface {
	RequestOTP(ctx context.Context, req endorsement.OTPRequest) error
	Create(ctx context.Context, req endorsement.CreateRequest) (*domain.Endorsement, error)
	Delete(ctx context.Context, id, email, code string) error
	List(ctx context.Context) ([]*domain.Endorsement, error)
	ListBySkill(ctx context.Context, skillID string) ([]*domain.Endorsement, error)
}

// Notifier sends the visitor-facing emails. *mailer.Notifier implements it.
type Notifier interface {
	SendContact(ctx context.Context, c *domain.ContactSubmission) error
	SendTranscript(ctx context.Context, to, note string, messages []domain.Message) error
}

// ContentSource serves the lookup tables. *content.Catalog implements it.
type ContentSource interface {
	Document(kind content.Kind) ([]byte, error)
	Status() content.Status
}

// ActivityStore logs requests and sent emails. *redis.Store implements it.
type ActivityStore interface {
	RecordAPICall(ctx context.Context, c domain.APICall) error
	RecordExport(ctx context.Context, rec *domain.ExportRecord) error
	RecordContact(ctx context.Context, rec *domain.ContactSubmission) error
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	TimeNow       func() time.Time // for testing, defaults to time.Now
	AllowedHosts  []string         // Host headers allowed to access admin routes
	AllowedCIDRS  []string         // IPs allowed to access admin routes
	TrustProxy    bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	CORSOrigins   []string         // browser origins allowed to call the API
	Chat          ChatService
	Endorsements  EndorsementService
	Notifier      Notifier
	Content       ContentSource
	Activity      ActivityStore
	Metrics       http.Handler  // Prometheus exposition
	LLMState      func() string // circuit breaker state, nil when unknown
	ReloadTrigger chan struct{} // Channel to trigger a manual content reload
}

// Now returns the deps clock.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
