package httpmw

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/security"
	"github.com/cwrk-planet/messenger/pkg/httputil"
	"github.com/cwrk-planet/messenger/pkg/logger"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

// AuthMiddleware требует Bearer JWT с живой сессией и кладёт Principal в контекст.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "missing bearer token", nil)
				return
			}

			p, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				msg := "invalid token"
				switch {
				case errors.Is(err, security.ErrTokenExpired):
					msg = "token expired"
				case errors.Is(err, domain.ErrSessionRevoked):
					msg = "session expired"
				case errors.Is(err, security.ErrInvalidToken), errors.Is(err, security.ErrInvalidSubject):
				default:
					slog.ErrorContext(r.Context(), "middleware.Auth: authenticate", slog.Any("err", err))
					httputil.Error(r.Context(), w, http.StatusInternalServerError, "internal error", nil)
					return
				}
				httputil.Error(r.Context(), w, http.StatusUnauthorized, msg, nil)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logger.With(ctx, slog.String("party", p.Party.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
		return "", false
	}
	return strings.TrimSpace(auth[7:]), true
}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func PrincipalFromCtx(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(domain.Principal)
	return p, ok
}
