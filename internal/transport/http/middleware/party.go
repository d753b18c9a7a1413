package httpmw

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

const ctxKeySelf ctxKey = "self"

var ErrInvalidID = errors.New("invalid id")

// RequireSelf сверяет {role}/{id} пути с аутентифицированной стороной.
func RequireSelf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		self, err := PartyFromPath(r, "role", "id")
		if err != nil {
			httputil.Error(r.Context(), w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		p, ok := PrincipalFromCtx(r.Context())
		if !ok || p.Party != self {
			httputil.Error(r.Context(), w, http.StatusForbidden, "forbidden", nil)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeySelf, self)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func SelfFromCtx(ctx context.Context) (domain.Party, bool) {
	p, ok := ctx.Value(ctxKeySelf).(domain.Party)
	return p, ok
}

// PartyFromPath разбирает пару сегментов {role}/{id}.
func PartyFromPath(r *http.Request, roleParam, idParam string) (domain.Party, error) {
	role, err := domain.ParseRole(chi.URLParam(r, roleParam))
	if err != nil {
		return domain.Party{}, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, idParam), 10, 64)
	if err != nil || id <= 0 {
		return domain.Party{}, ErrInvalidID
	}
	return domain.Party{Role: role, ID: id}, nil
}
