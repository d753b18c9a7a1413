package httpmw

import (
	"context"
	"net/http"
)

type SessionToucher interface {
	TouchSession(ctx context.Context, sessionID string)
}

// HeartbeatMiddleware обновляет last_seen сессии аутентифицированного запроса.
func HeartbeatMiddleware(sessions SessionToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := PrincipalFromCtx(r.Context()); ok {
				// best-effort: ошибки не прерывают запрос
				sessions.TouchSession(r.Context(), p.SessionID)
			}
			next.ServeHTTP(w, r)
		})
	}
}
