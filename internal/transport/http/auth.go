package http

import (
	"net/http"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/service"
	httpmw "github.com/cwrk-planet/messenger/internal/transport/http/middleware"
	"github.com/cwrk-planet/messenger/pkg/httputil"
)

// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req, maxBodyBytes); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	res, err := h.authSvc.Login(r.Context(), role, req.Email, req.Password, service.LoginMeta{
		UserAgent: r.UserAgent(),
		IP:        r.RemoteAddr,
	})
	if err != nil {
		writeError(r.Context(), w, "handler.Login:", err)
		return
	}

	httputil.JSON(w, http.StatusOK, LoginResponse{
		Token:     res.Token,
		SessionID: res.SessionID,
		ExpiresAt: res.ExpiresAt,
		User:      userItem(res.Account),
	})
}

// POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := httpmw.PrincipalFromCtx(r.Context())
	if !ok {
		httputil.Error(r.Context(), w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if err := h.authSvc.Logout(r.Context(), p); err != nil {
		writeError(r.Context(), w, "handler.Logout:", err)
		return
	}

	httputil.JSON(w, http.StatusOK, StatusResponse{Status: "logged_out"})
}

// GET /api/check_session
func (h *Handler) CheckSession(w http.ResponseWriter, r *http.Request) {
	p, ok := httpmw.PrincipalFromCtx(r.Context())
	if !ok {
		httputil.Error(r.Context(), w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	acc, err := h.authSvc.Me(r.Context(), p.Party)
	if err != nil {
		writeError(r.Context(), w, "handler.CheckSession:", err)
		return
	}

	httputil.JSON(w, http.StatusOK, SessionResponse{
		Valid:     true,
		SessionID: p.SessionID,
		User:      userItem(acc),
	})
}
