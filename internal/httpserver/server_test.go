package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/folio/internal/chat"
	"github.com/MrSnakeDoc/folio/internal/content"
	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/endorsement"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/httpserver/routes"
	"github.com/MrSnakeDoc/folio/internal/logger"
)

type fakeChat struct {
	reply *chat.Reply
	err   error
	got   chat.Turn
}

func (f *fakeChat) HandleTurn(_ context.Context, t chat.Turn) (*chat.Reply, error) {
	f.got = t
	return f.reply, f.err
}

type fakeEndorsements struct {
	err       error
	created   *domain.Endorsement
	list      []*domain.Endorsement
	otp       endorsement.OTPRequest
	deletedID string
	skillID   string
}

func (f *fakeEndorsements) RequestOTP(_ context.Context, req endorsement.OTPRequest) error {
	f.otp = req
	return f.err
}

func (f *fakeEndorsements) Create(_ context.Context, _ endorsement.CreateRequest) (*domain.Endorsement, error) {
	return f.created, f.err
}

func (f *fakeEndorsements) Delete(_ context.Context, id, _, _ string) error {
	f.deletedID = id
	return f.err
}

func (f *fakeEndorsements) List(context.Context) ([]*domain.Endorsement, error) {
	return f.list, f.err
}

func (f *fakeEndorsements) ListBySkill(_ context.Context, skillID string) ([]*domain.Endorsement, error) {
	f.skillID = skillID
	return f.list, f.err
}

type fakeNotifier struct {
	err         error
	contacts    int
	transcripts int
}

func (f *fakeNotifier) SendContact(context.Context, *domain.ContactSubmission) error {
	f.contacts++
	return f.err
}

func (f *fakeNotifier) SendTranscript(context.Context, string, string, []domain.Message) error {
	f.transcripts++
	return f.err
}

type fakeContent struct {
	docs map[content.Kind][]byte
	errs map[content.Kind]error
}

func (f *fakeContent) Document(kind content.Kind) ([]byte, error) {
	if err, ok := f.errs[kind]; ok {
		return nil, err
	}
	if data, ok := f.docs[kind]; ok {
		return data, nil
	}
	return nil, content.ErrFileNotFound
}

func (f *fakeContent) Status() content.Status {
	return content.Status{Documents: map[string]bool{"projects": true}, Skills: 3, Context: true}
}

type fakeActivity struct {
	mu       sync.Mutex
	calls    []domain.APICall
	exports  []*domain.ExportRecord
	contacts []*domain.ContactSubmission
	pingErr  error
}

func (f *fakeActivity) RecordAPICall(_ context.Context, c domain.APICall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeActivity) RecordExport(_ context.Context, rec *domain.ExportRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, rec)
	return nil
}

func (f *fakeActivity) RecordContact(_ context.Context, rec *domain.ContactSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts = append(f.contacts, rec)
	return nil
}

func (f *fakeActivity) Ping(context.Context) error { return f.pingErr }

type fixture struct {
	chat         *fakeChat
	endorsements *fakeEndorsements
	notifier     *fakeNotifier
	content      *fakeContent
	activity     *fakeActivity
	trigger      chan struct{}
	deps         deps.Deps
}

func newFixture() *fixture {
	f := &fixture{
		chat:         &fakeChat{},
		endorsements: &fakeEndorsements{},
		notifier:     &fakeNotifier{},
		content:      &fakeContent{docs: map[content.Kind][]byte{}, errs: map[content.Kind]error{}},
		activity:     &fakeActivity{},
		trigger:      make(chan struct{}, 1),
	}
	f.deps = deps.Deps{
		Logger:        logger.New("error", false),
		StartTime:     time.Now(),
		Chat:          f.chat,
		Endorsements:  f.endorsements,
		Notifier:      f.notifier,
		Content:       f.content,
		Activity:      f.activity,
		ReloadTrigger: f.trigger,
		LLMState:      func() string { return "closed" },
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("folio_up 1\n"))
		}),
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	NewRouter(5*time.Second, f.deps.Logger, f.deps).ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestChat(t *testing.T) {
	f := newFixture()
	f.chat.reply = &chat.Reply{ConversationID: "c-1", Content: "Hi there", Topics: []string{"greeting"}}

	rec := f.do(t, http.MethodPost, "/api/chat",
		`{"messages":[{"role":"user","content":"earlier","timestamp":"2025-01-02T03:04:05.000Z"}],"newMessage":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "Hi there", body["content"])
	require.Equal(t, "assistant", body["role"])
	require.Equal(t, "c-1", body["conversationId"])
	require.NotEmpty(t, body["timestamp"])

	require.Equal(t, "hello", f.chat.got.Message)
	require.Empty(t, f.chat.got.ConversationID)
	require.Len(t, f.chat.got.History, 1)
	require.Equal(t, domain.RoleUser, f.chat.got.History[0].Role)
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), f.chat.got.History[0].Timestamp)
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		status  int
		message string
	}{
		{"blank message", `{"newMessage":"   "}`, nil, http.StatusBadRequest, "newMessage is required"},
		{"bad role", `{"messages":[{"role":"system","content":"x"}],"newMessage":"hi"}`, nil, http.StatusBadRequest, "role must be one of: user assistant"},
		{"bad json", `not json`, nil, http.StatusBadRequest, "invalid JSON body"},
		{"unknown conversation", `{"newMessage":"hi","conversationId":"forged"}`, chat.ErrUnknownConversation, http.StatusBadRequest, "Unknown conversation"},
		{"upstream", `{"newMessage":"hi"}`, fmt.Errorf("%w: boom", chat.ErrUpstream), http.StatusBadGateway, "The assistant is unavailable, please try again later"},
		{"no prompt", `{"newMessage":"hi"}`, chat.ErrNoPrompt, http.StatusInternalServerError, "Failed to process the chat message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.chat.err = tt.err
			rec := f.do(t, http.MethodPost, "/api/chat", tt.body)
			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, tt.message, decode(t, rec)["error"])
		})
	}
}

func TestContact(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/contact",
		`{"name":" Ada ","email":"Ada@Example.com","subject":"Hello","message":"Nice site"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Contact form submitted successfully and email sent.", body["message"])
	require.Equal(t, 1, f.notifier.contacts)
	require.Len(t, f.activity.contacts, 1)
	require.Equal(t, "Ada", f.activity.contacts[0].Name)
	require.Equal(t, "ada@example.com", f.activity.contacts[0].Email)
}

func TestContact_InvalidEmailSendsNothing(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/contact",
		`{"name":"Ada","email":"not-an-email","subject":"Hello","message":"Nice site"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "email must be a valid email address", decode(t, rec)["error"])
	require.Zero(t, f.notifier.contacts)
	require.Empty(t, f.activity.contacts)
}

func TestContact_SendFailure(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("smtp down")
	rec := f.do(t, http.MethodPost, "/api/contact",
		`{"name":"Ada","email":"ada@example.com","subject":"Hello","message":"Nice site"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to send the email", decode(t, rec)["error"])
	require.Empty(t, f.activity.contacts)
}

func TestExportChat(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/export-chat",
		`{"email":"ada@example.com","message":"thanks","conversationId":"c-1","chatMessages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Chat exported and emailed successfully.", decode(t, rec)["message"])
	require.Equal(t, 1, f.notifier.transcripts)
	require.Len(t, f.activity.exports, 1)
	require.Equal(t, "c-1", f.activity.exports[0].ConversationID)
	require.Len(t, f.activity.exports[0].Messages, 2)
}

func TestExportChat_Validation(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/export-chat", `{"email":"ada@example.com","chatMessages":[]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "chatMessages must contain at least 1 items", decode(t, rec)["error"])
	require.Zero(t, f.notifier.transcripts)
}

func TestContentDocuments(t *testing.T) {
	f := newFixture()
	f.content.docs[content.KindProjects] = []byte(`{"projects":[]}`)
	f.content.errs[content.KindSkills] = content.ErrInvalidJSON

	rec := f.do(t, http.MethodGet, "/api/get-projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, `{"projects":[]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/get-skills", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Invalid JSON format in skills file", decode(t, rec)["error"])

	rec = f.do(t, http.MethodGet, "/api/get-about", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "About file not found", decode(t, rec)["error"])
}

func TestContentDocuments_ReadFailure(t *testing.T) {
	f := newFixture()
	f.content.errs[content.KindAbout] = fmt.Errorf("read about: %w", fs.ErrPermission)

	rec := f.do(t, http.MethodGet, "/api/get-about", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to read about file", decode(t, rec)["error"])
}

func TestRequestOTP_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"ok", nil, http.StatusOK, "Verification code sent to your email"},
		{"invalid action", endorsement.ErrInvalidAction, http.StatusBadRequest, "Invalid action. Must be 'endorse' or 'delete'"},
		{"missing skill", endorsement.ErrSkillIDRequired, http.StatusBadRequest, "skillId is required for endorse action"},
		{"not found", endorsement.ErrNotFound, http.StatusNotFound, "Endorsement not found"},
		{"forbidden", endorsement.ErrForbidden, http.StatusForbidden, "You can only delete your own endorsements"},
		{"mail", fmt.Errorf("%w: %w", endorsement.ErrMailFailed, errors.New("dial tcp")), http.StatusInternalServerError, "Failed to send verification email"},
		{"store", errors.New("redis: connection refused"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.endorsements.err = tt.err
			rec := f.do(t, http.MethodPost, "/api/endorsements/request-otp",
				`{"email":"ada@example.com","action":"endorse","skillId":"go"}`)

			require.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			require.Equal(t, tt.err == nil, body["success"])
			require.Equal(t, tt.message, body["message"])
		})
	}
}

func TestRequestOTP_PassesFields(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/endorsements/request-otp",
		`{"email":"ada@example.com","action":"delete","endorsementId":"e-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.ActionDelete, f.endorsements.otp.Action)
	require.Equal(t, "e-1", f.endorsements.otp.EndorsementID)
}

func TestRequestOTP_InvalidEmail(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/endorsements/request-otp", `{"email":"nope","action":"endorse","skillId":"go"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, "email must be a valid email address", body["message"])
}

func TestCreateEndorsement(t *testing.T) {
	f := newFixture()
	f.endorsements.created = &domain.Endorsement{
		ID:        "e-1",
		SkillID:   "go",
		Name:      "Ada",
		Email:     "ada@example.com",
		Message:   "Great Go",
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:    domain.EndorsementActive,
	}

	rec := f.do(t, http.MethodPut, "/api/endorsements",
		`{"skillId":"go","name":"Ada","email":"ada@example.com","message":"Great Go","otp":"123456"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "Endorsement added successfully", body["message"])
	e := body["endorsement"].(map[string]any)
	require.Equal(t, "e-1", e["id"])
	require.Equal(t, "go", e["skillId"])
	require.Equal(t, "2025-01-02T03:04:05Z", e["timestamp"])
}

func TestCreateEndorsement_InvalidCode(t *testing.T) {
	f := newFixture()
	f.endorsements.err = endorsement.ErrInvalidCode

	rec := f.do(t, http.MethodPut, "/api/endorsements",
		`{"skillId":"go","name":"Ada","email":"ada@example.com","message":"Great Go","otp":"000000"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid verification code", decode(t, rec)["message"])
}

func TestDeleteEndorsement(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodDelete, "/api/endorsements/e-42", `{"email":"ada@example.com","otp":"123456"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Endorsement deleted successfully", decode(t, rec)["message"])
	require.Equal(t, "e-42", f.endorsements.deletedID)
}

func TestListEndorsements(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/endorsements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"endorsements":[]}`, rec.Body.String())

	f.endorsements.list = []*domain.Endorsement{{ID: "e-1", SkillID: "go", CreatedAt: time.Unix(0, 0)}}
	rec = f.do(t, http.MethodGet, "/api/endorsements/skill/go", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "go", f.endorsements.skillID)
	require.Len(t, decode(t, rec)["endorsements"], 1)

	f.endorsements.err = errors.New("redis down")
	rec = f.do(t, http.MethodGet, "/api/endorsements", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProbes(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "READY", rec.Body.String())

	f.activity.pingErr = errors.New("connection refused")
	rec = f.do(t, http.MethodGet, "/api/readyz", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "NOT READY", rec.Body.String())

	require.Empty(t, f.activity.calls, "probes are not recorded")
}

func TestTelemetry_RecordsRoutePatternAndFinalStatus(t *testing.T) {
	f := newFixture()
	f.endorsements.err = endorsement.ErrNotFound

	req := httptest.NewRequest(http.MethodDelete, "/api/endorsements/e-9", strings.NewReader(`{"email":"ada@example.com","otp":"123456"}`))
	req.Header.Set("User-Agent", "folio-test")
	rec := httptest.NewRecorder()
	NewRouter(5*time.Second, f.deps.Logger, f.deps).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Len(t, f.activity.calls, 1)
	call := f.activity.calls[0]
	require.Equal(t, "/api/endorsements/{id}", call.Endpoint)
	require.Equal(t, http.MethodDelete, call.Method)
	require.Equal(t, http.StatusNotFound, call.StatusCode)
	require.Equal(t, "folio-test", call.UserAgent)
	require.Equal(t, "192.0.2.1", call.IPAddress)
}

func TestTelemetry_SkipsUnmatched(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, f.activity.calls)
}

func TestMetrics(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "folio_up 1\n", rec.Body.String())
	require.Len(t, f.activity.calls, 1)
	require.Equal(t, "/metrics", f.activity.calls[0].Endpoint)
}

func TestReload(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/reload", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/reload", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	<-f.trigger
	rec = f.do(t, http.MethodPost, "/api/reload", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAdminRoutes_RestrictedByCIDR(t *testing.T) {
	f := newFixture()
	f.deps.AllowedCIDRS = []string{"10.0.0.0/8"}

	rec := f.do(t, http.MethodGet, "/api/infra", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/reload", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, f.trigger)
}

func TestInfra(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/infra", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "operational", body["mode"])

	f.deps.LLMState = func() string { return "open" }
	require.Equal(t, "degraded", decode(t, f.do(t, http.MethodGet, "/api/infra", ""))["mode"])

	f.activity.pingErr = errors.New("down")
	require.Equal(t, "critical", decode(t, f.do(t, http.MethodGet, "/api/infra", ""))["mode"])
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture()
	f.deps.CORSOrigins = []string{"https://portfolio.example"}

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://portfolio.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	NewRouter(5*time.Second, f.deps.Logger, f.deps).ServeHTTP(rec, req)

	require.Equal(t, "https://portfolio.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, f.activity.calls)
}

func TestRouteTable(t *testing.T) {
	f := newFixture()
	mux, ok := NewRouter(5*time.Second, f.deps.Logger, f.deps).(chi.Routes)
	require.True(t, ok)

	require.ElementsMatch(t, []string{
		"DELETE /api/endorsements/{id}",
		"GET /api/endorsements",
		"GET /api/endorsements/skill/{skillId}",
		"GET /api/get-about",
		"GET /api/get-projects",
		"GET /api/get-skills",
		"GET /api/healthz",
		"GET /api/infra",
		"GET /api/readyz",
		"GET /metrics",
		"POST /api/chat",
		"POST /api/contact",
		"POST /api/endorsements/request-otp",
		"POST /api/export-chat",
		"POST /api/reload",
		"PUT /api/endorsements",
	}, routes.Walk(mux))
}
