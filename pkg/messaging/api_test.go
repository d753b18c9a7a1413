package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/pkg/httputil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newAPIServer(t *testing.T, mux *http.ServeMux) *HTTPAPI {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewHTTPAPI(srv.URL+"/", WithHTTPClient(srv.Client()), WithCallTimeout(2*time.Second))
}

func TestHTTPAPI_ConversationPaths(t *testing.T) {
	mux := http.NewServeMux()
	var gotAuth, gotReqID, gotBody string

	mux.HandleFunc("GET /api/clients/1/freelancers/2/messages", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get(httputil.HeaderRequestID)
		httputil.JSON(w, http.StatusOK, []domain.Message{fromParty(5, partyA, at(10, 0), false)})
	})
	mux.HandleFunc("POST /api/clients/1/freelancers/2/messages", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		gotBody = in.Content
		httputil.JSON(w, http.StatusCreated, fromMe(6, partyA, at(10, 1), false))
	})
	mux.HandleFunc("PUT /api/clients/1/freelancers/2/messages/mark-read", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]any{"success": true, "updated": 3})
	})
	mux.HandleFunc("GET /api/clients/1/contracts", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, []domain.Contract{contract(7, partyA, "Alice")})
	})

	api := newAPIServer(t, mux)
	ctx := httputil.WithRequestID(context.Background(), "req-42")

	msgs, err := api.History(ctx, "tok", me, partyA)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(5), msgs[0].ID)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "req-42", gotReqID)

	sent, err := api.Send(context.Background(), "tok", me, partyA, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(6), sent.ID)
	assert.Equal(t, "hello", gotBody)

	n, err := api.MarkRead(context.Background(), "tok", me, partyA)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	contracts, err := api.Contracts(context.Background(), "tok", me)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "Alice", contracts[0].Freelancer.Name)
}

func TestHTTPAPI_ErrorEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/clients/1/freelancers/2/messages", func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(r.Context(), w, http.StatusForbidden, "forbidden", nil)
	})
	mux.HandleFunc("GET /api/clients/1/contracts", func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(r.Context(), w, http.StatusUnauthorized, "session expired", nil)
	})
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(r.Context(), w, http.StatusUnauthorized, "invalid credentials", nil)
	})
	api := newAPIServer(t, mux)

	_, err := api.History(context.Background(), "tok", me, partyA)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "forbidden", apiErr.Message)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.NotErrorIs(t, err, ErrSessionExpired)

	_, err = api.Contracts(context.Background(), "tok", me)
	assert.ErrorIs(t, err, ErrSessionExpired)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "session expired", apiErr.Message)

	_, err = api.Login(context.Background(), domain.RoleClient, "me@example.com", "bad")
	assert.NotErrorIs(t, err, ErrSessionExpired)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestHTTPAPI_CallTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/clients/1/contracts", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	api := NewHTTPAPI(srv.URL, WithHTTPClient(srv.Client()), WithCallTimeout(50*time.Millisecond))

	_, err := api.Contracts(context.Background(), "tok", me)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPAPI_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/clients/1/freelancers/2/messages/mark-read", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]any{"success": true, "updated": 0})
	})
	api := newAPIServer(t, mux)

	_, err := api.MarkRead(context.Background(), "tok", me, partyA)
	require.NoError(t, err)

	spans := rec.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, "messaging.HTTPAPI PUT", spans[len(spans)-1].Name())
}
