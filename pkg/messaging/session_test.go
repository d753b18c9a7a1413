package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	api := newFakeAPI()

	_, err := Login(context.Background(), api, domain.Role("admin"), "me@example.com", "secret")
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
	assert.Zero(t, api.totalCalls())

	_, err = Login(context.Background(), api, domain.RoleClient, "me@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)

	s, err := Login(context.Background(), api, domain.RoleClient, "me@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, domain.Party{Role: domain.RoleClient, ID: 1}, s.Party())
	assert.Equal(t, "tok", s.Token())
	assert.False(t, s.Expired(time.Now()))
}

func TestSession_ExpiredByClockSkipsNetwork(t *testing.T) {
	api := newFakeAPI()
	now := time.Now()
	redirects := 0
	s := newTestSession(api,
		WithClock(func() time.Time { return now }),
		WithOnExpired(func() { redirects++ }),
	)

	now = now.Add(2 * time.Hour)
	_, err := s.Contracts(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = s.History(context.Background(), partyA)
	assert.ErrorIs(t, err, ErrSessionExpired)

	assert.Zero(t, api.totalCalls())
	assert.Equal(t, 1, redirects)
	assert.Empty(t, s.Token())
}

func TestSession_ServerRejectionExpires(t *testing.T) {
	api := newFakeAPI()
	api.expired = true
	redirected := false
	s := newTestSession(api, WithOnExpired(func() { redirected = true }))

	_, err := s.MarkRead(context.Background(), partyA)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, redirected)
	assert.True(t, s.Expired(time.Now()))
}

func TestSession_Logout(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(api)

	require.NoError(t, s.Logout(context.Background()))
	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, 1, api.calls["logout"])

	_, err := s.Send(context.Background(), partyA, "hi")
	assert.ErrorIs(t, err, ErrSessionExpired)
}
