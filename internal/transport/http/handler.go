package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/postgres"
	"github.com/cwrk-planet/messenger/internal/service"
	"github.com/cwrk-planet/messenger/pkg/errs"
	"github.com/cwrk-planet/messenger/pkg/httputil"
)

const maxBodyBytes = 64 << 10

type MessageSvc interface {
	History(ctx context.Context, me, counterpart domain.Party, page postgres.Page) ([]domain.Message, string, error)
	Send(ctx context.Context, me, counterpart domain.Party, content string) (*domain.Message, error)
	MarkRead(ctx context.Context, me, counterpart domain.Party) (int64, error)
	UnreadSummary(ctx context.Context, me domain.Party) ([]service.UnreadItem, error)
}

type ContractSvc interface {
	Contracts(ctx context.Context, party domain.Party) ([]domain.Contract, error)
}

type AuthSvc interface {
	Login(ctx context.Context, role domain.Role, email, password string, meta service.LoginMeta) (*service.LoginResult, error)
	Logout(ctx context.Context, p domain.Principal) error
	Me(ctx context.Context, party domain.Party) (*domain.Account, error)
}

type Handler struct {
	messageSvc  MessageSvc
	contractSvc ContractSvc
	authSvc     AuthSvc
}

func NewHandler(messages MessageSvc, contracts ContractSvc, auth AuthSvc) *Handler {
	return &Handler{
		messageSvc:  messages,
		contractSvc: contracts,
		authSvc:     auth,
	}
}

// classify переводит доменные ошибки в классы pkg/errs.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMessageTooLong),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, postgres.ErrInvalidCursor):
		return errs.Wrap(errs.ErrInvalidInput, err)
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrSessionRevoked):
		return errs.Wrap(errs.ErrUnauthorized, err)
	case errors.Is(err, domain.ErrNotParticipant),
		errors.Is(err, domain.ErrForbidden):
		return errs.Wrap(errs.ErrForbidden, err)
	case errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrContractNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return errs.Wrap(errs.ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.ErrUnavailable, err)
	default:
		return err
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := errs.ToHTTP(classify(err))
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, op, slog.Any("err", err))
		httputil.Error(ctx, w, status, http.StatusText(status), nil)
		return
	}
	slog.DebugContext(ctx, op, slog.Any("err", err))
	httputil.Error(ctx, w, status, err.Error(), nil)
}

// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}
