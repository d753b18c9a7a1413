package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/postgres"
	"github.com/cwrk-planet/messenger/internal/security"
	"github.com/cwrk-planet/messenger/internal/service"
	"github.com/cwrk-planet/messenger/pkg/httputil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ann = domain.Party{Role: domain.RoleClient, ID: 1}
	bob = domain.Party{Role: domain.RoleFreelancer, ID: 2}
)

type fakeAuth struct {
	touched []string
}

func (a *fakeAuth) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	switch token {
	case "ann":
		return domain.Principal{Party: ann, SessionID: "s-ann"}, nil
	case "revoked":
		return domain.Principal{}, domain.ErrSessionRevoked
	default:
		return domain.Principal{}, security.ErrInvalidToken
	}
}

func (a *fakeAuth) TouchSession(_ context.Context, sid string) { a.touched = append(a.touched, sid) }

func (a *fakeAuth) Login(_ context.Context, role domain.Role, email, password string, _ service.LoginMeta) (*service.LoginResult, error) {
	if role != domain.RoleClient || email != "ann@example.com" || password != "secret1" {
		return nil, domain.ErrInvalidCredentials
	}
	return &service.LoginResult{
		Account:   &domain.Account{Party: ann, Name: "Ann", Email: email},
		Token:     "ann",
		SessionID: "s-ann",
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (a *fakeAuth) Logout(context.Context, domain.Principal) error { return nil }

func (a *fakeAuth) Me(_ context.Context, p domain.Party) (*domain.Account, error) {
	return &domain.Account{Party: p, Name: "Ann"}, nil
}

type fakeMessages struct {
	history []domain.Message
	sent    []string
	marked  int
}

func (m *fakeMessages) History(_ context.Context, me, cp domain.Party, page postgres.Page) ([]domain.Message, string, error) {
	if page.After == "bad" {
		return nil, "", postgres.ErrInvalidCursor
	}
	next := ""
	if page.Limit > 0 {
		next = "next-cursor"
	}
	return m.history, next, nil
}

func (m *fakeMessages) Send(_ context.Context, me, cp domain.Party, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyMessage
	}
	m.sent = append(m.sent, content)
	return &domain.Message{ID: 100, SenderID: me.ID, ReceiverID: cp.ID, SenderRole: me.Role, Content: content}, nil
}

func (m *fakeMessages) MarkRead(context.Context, domain.Party, domain.Party) (int64, error) {
	m.marked++
	if m.marked == 1 {
		return 3, nil
	}
	return 0, nil
}

func (m *fakeMessages) UnreadSummary(context.Context, domain.Party) ([]service.UnreadItem, error) {
	return []service.UnreadItem{{CounterpartID: 2, Unread: 1}}, nil
}

type fakeContracts struct{}

func (fakeContracts) Contracts(_ context.Context, p domain.Party) ([]domain.Contract, error) {
	return []domain.Contract{{ID: 5, ClientID: p.ID, FreelancerID: 2}}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *fakeMessages, *fakeAuth) {
	t.Helper()
	auth := &fakeAuth{}
	msgs := &fakeMessages{history: []domain.Message{{ID: 1, SenderID: 2, ReceiverID: 1, SenderRole: domain.RoleFreelancer}}}
	h := NewHandler(msgs, fakeContracts{}, auth)
	return NewRouter(RouterDeps{Handler: h, Auth: auth}), msgs, auth
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Message
}

func TestRouter_RequiresAuth(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/clients/1/contracts", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/clients/1/contracts", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/clients/1/contracts", "revoked", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session expired", errorMessage(t, rec))
}

func TestRouter_PathMustMatchPrincipal(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/clients/7/contracts", "ann", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/freelancers/1/contracts", "ann", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/admins/1/contracts", "ann", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/clients/1/clients/3/messages", "ann", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_GetMessages(t *testing.T) {
	h, _, auth := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/clients/1/freelancers/2/messages", "ann", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Empty(t, rec.Header().Get(HeaderNextCursor))
	assert.Contains(t, auth.touched, "s-ann")

	rec = do(t, h, http.MethodGet, "/api/client/1/freelancer/2/messages?limit=10", "ann", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "next-cursor", rec.Header().Get(HeaderNextCursor))

	rec = do(t, h, http.MethodGet, "/api/clients/1/freelancers/2/messages?after=bad", "ann", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/clients/1/freelancers/2/messages?limit=x", "ann", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SendMessage(t *testing.T) {
	h, msgs, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/clients/1/freelancers/2/messages", "ann", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrEmptyMessage.Error(), errorMessage(t, rec))

	rec = do(t, h, http.MethodPost, "/api/clients/1/freelancers/2/messages", "ann", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/clients/1/freelancers/2/messages", "ann", `{"content":"hi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, int64(100), msg.ID)
	assert.Equal(t, []string{"hi"}, msgs.sent)
}

func TestRouter_MarkReadIdempotent(t *testing.T) {
	h, _, _ := newTestRouter(t)

	for _, want := range []int64{3, 0} {
		rec := do(t, h, http.MethodPut, "/api/clients/1/freelancers/2/messages/mark-read", "ann", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp MarkReadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, want, resp.Updated)
	}
}

func TestRouter_ContractsAndUnread(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/clients/1/contracts", "ann", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var contracts []domain.Contract
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contracts))
	require.Len(t, contracts, 1)
	assert.Equal(t, int64(5), contracts[0].ID)

	rec = do(t, h, http.MethodGet, "/api/clients/1/unread", "ann", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"counterpart_id":2,"unread":1}]`, rec.Body.String())
}

func TestRouter_LoginLogoutCheckSession(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/login", "", `{"email":"ann@example.com","password":"nope","role":"client"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/login", "", `{"email":"ann@example.com","password":"secret1","role":"ghost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/login", "", `{"email":"ann@example.com","password":"secret1","role":"client"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.Equal(t, "ann", login.Token)
	assert.Equal(t, "Ann", login.User.Name)
	assert.Equal(t, domain.RoleClient, login.User.Role)

	rec = do(t, h, http.MethodGet, "/api/check_session", login.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.True(t, sess.Valid)
	assert.Equal(t, "s-ann", sess.SessionID)

	rec = do(t, h, http.MethodPost, "/api/logout", login.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
