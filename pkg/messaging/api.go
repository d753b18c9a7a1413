package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/pkg/httputil"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultCallTimeout = 10 * time.Second

var tracer = otel.Tracer("github.com/cwrk-planet/messenger/pkg/messaging")

// API — REST-поверхность мессенджера, которой пользуются контроллеры.
type API interface {
	Login(ctx context.Context, role domain.Role, email, password string) (*LoginResponse, error)
	Logout(ctx context.Context, token string) error
	Contracts(ctx context.Context, token string, me domain.Party) ([]domain.Contract, error)
	History(ctx context.Context, token string, me, counterpart domain.Party) ([]domain.Message, error)
	Send(ctx context.Context, token string, me, counterpart domain.Party, content string) (*domain.Message, error)
	MarkRead(ctx context.Context, token string, me, counterpart domain.Party) (int64, error)
}

type User struct {
	ID    int64       `json:"id"`
	Role  domain.Role `json:"role"`
	Name  string      `json:"name"`
	Email string      `json:"email,omitempty"`
	Image string      `json:"image,omitempty"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type HTTPAPI struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

type APIOption func(*HTTPAPI)

func WithHTTPClient(c *http.Client) APIOption {
	return func(a *HTTPAPI) { a.client = c }
}

// WithCallTimeout — таймаут одного запроса поверх ctx.
func WithCallTimeout(d time.Duration) APIOption {
	return func(a *HTTPAPI) { a.timeout = d }
}

func NewHTTPAPI(baseURL string, opts ...APIOption) *HTTPAPI {
	a := &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		timeout: DefaultCallTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func conversationPath(me, counterpart domain.Party) string {
	return fmt.Sprintf("/api/%s/%d/%s/%d/messages", me.Role.Plural(), me.ID, counterpart.Role.Plural(), counterpart.ID)
}

func (a *HTTPAPI) Login(ctx context.Context, role domain.Role, email, password string) (*LoginResponse, error) {
	in := map[string]string{"email": email, "password": password, "role": string(role)}
	var out LoginResponse
	if err := a.do(ctx, http.MethodPost, "/api/login", "", in, &out); err != nil {
		// 401 на логине — неверные учётные данные, а не истёкшая сессия
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) Logout(ctx context.Context, token string) error {
	return a.do(ctx, http.MethodPost, "/api/logout", token, nil, nil)
}

func (a *HTTPAPI) Contracts(ctx context.Context, token string, me domain.Party) ([]domain.Contract, error) {
	var out []domain.Contract
	path := fmt.Sprintf("/api/%s/%d/contracts", me.Role.Plural(), me.ID)
	if err := a.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *HTTPAPI) History(ctx context.Context, token string, me, counterpart domain.Party) ([]domain.Message, error) {
	var out []domain.Message
	if err := a.do(ctx, http.MethodGet, conversationPath(me, counterpart), token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *HTTPAPI) Send(ctx context.Context, token string, me, counterpart domain.Party, content string) (*domain.Message, error) {
	var out domain.Message
	in := map[string]string{"content": content}
	if err := a.do(ctx, http.MethodPost, conversationPath(me, counterpart), token, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) MarkRead(ctx context.Context, token string, me, counterpart domain.Party) (int64, error) {
	var out struct {
		Success bool  `json:"success"`
		Updated int64 `json:"updated"`
	}
	if err := a.do(ctx, http.MethodPut, conversationPath(me, counterpart)+"/mark-read", token, nil, &out); err != nil {
		return 0, err
	}
	if !out.Success {
		return 0, &APIError{Status: http.StatusOK, Message: "mark-read not acknowledged"}
	}
	return out.Updated, nil
}

func (a *HTTPAPI) do(ctx context.Context, method, path, token string, in, out any) (err error) {
	ctx, span := tracer.Start(ctx, "messaging.HTTPAPI "+method)
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.path", path))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	reqID, ok := httputil.FromContext(ctx)
	if !ok {
		reqID = uuid.NewString()
	}
	req.Header.Set(httputil.HeaderRequestID, reqID)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return decodeError(resp, reqID)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, reqID string) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode), RequestID: reqID}

	var body httputil.ErrorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error.Message != "" {
		apiErr.Message = body.Error.Message
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return errors.Join(ErrSessionExpired, apiErr)
	}
	return apiErr
}
