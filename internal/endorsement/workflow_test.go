package endorsement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/otp"
	store "github.com/MrSnakeDoc/folio/internal/store/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type sentCode struct {
	to, code, skill string
}

type fakeMailer struct {
	sent []sentCode
	err  error
}

func (m *fakeMailer) SendEndorseCode(_ context.Context, to, code, skill string, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentCode{to, code, skill})
	return nil
}

func (m *fakeMailer) SendDeleteCode(_ context.Context, to, code string, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentCode{to: to, code: code})
	return nil
}

func (m *fakeMailer) last(t *testing.T) sentCode {
	t.Helper()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type skillMap map[string]string

func (s skillMap) SkillName(id string) (string, bool) {
	n, ok := s[id]
	return n, ok
}

func newTestWorkflow(t *testing.T) (*Workflow, *fakeMailer, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.New("error", false)
	st := store.NewStore(client)
	codes := otp.NewService(st, log, 10*time.Minute, 5)
	mailer := &fakeMailer{}
	wf := NewWorkflow(st, codes, mailer, skillMap{"k8s": "Kubernetes"}, log)
	return wf, mailer, st
}

func endorse(t *testing.T, wf *Workflow, mailer *fakeMailer, email string) *domain.Endorsement {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, wf.RequestOTP(ctx, OTPRequest{Email: email, Action: domain.ActionEndorse, SkillID: "k8s"}))
	e, err := wf.Create(ctx, CreateRequest{SkillID: "k8s", Name: " Ada ", Email: email, Message: " great ", OTP: mailer.last(t).code})
	require.NoError(t, err)
	return e
}

func TestWorkflow_EndorseOnce(t *testing.T) {
	wf, mailer, _ := newTestWorkflow(t)
	ctx := context.Background()

	require.NoError(t, wf.RequestOTP(ctx, OTPRequest{Email: "Ada@Example.com", Action: domain.ActionEndorse, SkillID: "k8s"}))
	sent := mailer.last(t)
	require.Equal(t, "ada@example.com", sent.to)
	require.Equal(t, "Kubernetes", sent.skill)

	req := CreateRequest{SkillID: "k8s", Name: " Ada ", Email: "ada@example.com", Message: " great ", OTP: sent.code}
	e, err := wf.Create(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "Ada", e.Name)
	require.Equal(t, "great", e.Message)
	require.NotEmpty(t, e.ID)

	_, err = wf.Create(ctx, req)
	require.ErrorIs(t, err, ErrInvalidCode)

	list, err := wf.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestWorkflow_RequestOTPValidation(t *testing.T) {
	wf, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  OTPRequest
		want error
	}{
		{"unknown action", OTPRequest{Email: "a@b.com", Action: "update"}, ErrInvalidAction},
		{"endorse without skill", OTPRequest{Email: "a@b.com", Action: domain.ActionEndorse}, ErrSkillIDRequired},
		{"delete without id", OTPRequest{Email: "a@b.com", Action: domain.ActionDelete}, ErrEndorsementIDRequired},
		{"delete unknown", OTPRequest{Email: "a@b.com", Action: domain.ActionDelete, EndorsementID: "nope"}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, wf.RequestOTP(ctx, tt.req), tt.want)
		})
	}
}

func TestWorkflow_CreateChecksCodeBeforeSkill(t *testing.T) {
	wf, mailer, _ := newTestWorkflow(t)
	ctx := context.Background()

	_, err := wf.Create(ctx, CreateRequest{SkillID: "ghost", Name: "A", Email: "a@b.com", Message: "m", OTP: "123456"})
	require.ErrorIs(t, err, ErrInvalidCode)

	require.NoError(t, wf.RequestOTP(ctx, OTPRequest{Email: "a@b.com", Action: domain.ActionEndorse, SkillID: "ghost"}))
	require.Equal(t, "ghost", mailer.last(t).skill, "unknown skills fall back to their id in the mail")

	_, err = wf.Create(ctx, CreateRequest{SkillID: "ghost", Name: "A", Email: "a@b.com", Message: "m", OTP: mailer.last(t).code})
	require.ErrorIs(t, err, ErrInvalidSkill)
}

func TestWorkflow_CodeIsScopedToSkill(t *testing.T) {
	wf, mailer, _ := newTestWorkflow(t)
	ctx := context.Background()

	require.NoError(t, wf.RequestOTP(ctx, OTPRequest{Email: "a@b.com", Action: domain.ActionEndorse, SkillID: "k8s"}))
	_, err := wf.Create(ctx, CreateRequest{SkillID: "tf", Name: "A", Email: "a@b.com", Message: "m", OTP: mailer.last(t).code})
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestWorkflow_DeleteOwnership(t *testing.T) {
	wf, mailer, st := newTestWorkflow(t)
	ctx := context.Background()

	e := endorse(t, wf, mailer, "a@b.com")

	err := wf.RequestOTP(ctx, OTPRequest{Email: "eve@b.com", Action: domain.ActionDelete, EndorsementID: e.ID})
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, wf.RequestOTP(ctx, OTPRequest{Email: "A@B.com", Action: domain.ActionDelete, EndorsementID: e.ID}))
	code := mailer.last(t).code

	require.ErrorIs(t, wf.Delete(ctx, e.ID, "eve@b.com", code), ErrForbidden)
	require.ErrorIs(t, wf.Delete(ctx, e.ID, "a@b.com", "000000x"), ErrInvalidCode)
	require.NoError(t, wf.Delete(ctx, e.ID, "A@B.com", code))

	list, err := wf.ListBySkill(ctx, "k8s")
	require.NoError(t, err)
	require.Empty(t, list)

	all, err := st.AllEndorsements(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "deleted endorsements are kept")

	require.ErrorIs(t, wf.Delete(ctx, e.ID, "a@b.com", code), ErrNotFound)
}

func TestWorkflow_MailFailure(t *testing.T) {
	wf, mailer, _ := newTestWorkflow(t)
	mailer.err = errors.New("smtp down")

	err := wf.RequestOTP(context.Background(), OTPRequest{Email: "a@b.com", Action: domain.ActionEndorse, SkillID: "k8s"})
	require.ErrorIs(t, err, ErrMailFailed)
}
