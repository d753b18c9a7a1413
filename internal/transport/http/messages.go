package http

import (
	"net/http"
	"strconv"

	"github.com/cwrk-planet/messenger/internal/domain"
	"github.com/cwrk-planet/messenger/internal/postgres"
	httpmw "github.com/cwrk-planet/messenger/internal/transport/http/middleware"
	"github.com/cwrk-planet/messenger/pkg/httputil"
)

const HeaderNextCursor = "X-Next-Cursor"

// conversation достаёт me (проверен RequireSelf) и собеседника из пути.
func conversation(w http.ResponseWriter, r *http.Request) (me, counterpart domain.Party, ok bool) {
	me, ok = httpmw.SelfFromCtx(r.Context())
	if !ok {
		httputil.Error(r.Context(), w, http.StatusForbidden, "forbidden", nil)
		return me, counterpart, false
	}
	counterpart, err := httpmw.PartyFromPath(r, "counterpartRole", "counterpartId")
	if err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, err.Error(), nil)
		return me, counterpart, false
	}
	if counterpart.Role != me.Role.Counterpart() {
		httputil.Error(r.Context(), w, http.StatusForbidden, "counterpart must have the opposite role", nil)
		return me, counterpart, false
	}
	return me, counterpart, true
}

// GET /api/{role}/{id}/{counterpartRole}/{counterpartId}/messages?after=&limit=
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	me, counterpart, ok := conversation(w, r)
	if !ok {
		return
	}

	page := postgres.Page{After: r.URL.Query().Get("after")}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		page.Limit = n
	}

	msgs, next, err := h.messageSvc.History(r.Context(), me, counterpart, page)
	if err != nil {
		writeError(r.Context(), w, "handler.GetMessages:", err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	if next != "" {
		w.Header().Set(HeaderNextCursor, next)
	}

	httputil.JSON(w, http.StatusOK, msgs)
}

// POST /api/{role}/{id}/{counterpartRole}/{counterpartId}/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	me, counterpart, ok := conversation(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := httputil.DecodeJSON(r, &req, maxBodyBytes); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	msg, err := h.messageSvc.Send(r.Context(), me, counterpart, req.Content)
	if err != nil {
		writeError(r.Context(), w, "handler.SendMessage:", err)
		return
	}

	httputil.JSON(w, http.StatusCreated, msg)
}

// PUT /api/{role}/{id}/{counterpartRole}/{counterpartId}/messages/mark-read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	me, counterpart, ok := conversation(w, r)
	if !ok {
		return
	}

	n, err := h.messageSvc.MarkRead(r.Context(), me, counterpart)
	if err != nil {
		writeError(r.Context(), w, "handler.MarkRead:", err)
		return
	}

	httputil.JSON(w, http.StatusOK, MarkReadResponse{Success: true, Updated: n})
}

// GET /api/{role}/{id}/unread
func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	me, ok := httpmw.SelfFromCtx(r.Context())
	if !ok {
		httputil.Error(r.Context(), w, http.StatusForbidden, "forbidden", nil)
		return
	}

	items, err := h.messageSvc.UnreadSummary(r.Context(), me)
	if err != nil {
		writeError(r.Context(), w, "handler.Unread:", err)
		return
	}

	httputil.JSON(w, http.StatusOK, items)
}

// GET /api/{role}/{id}/contracts
func (h *Handler) GetContracts(w http.ResponseWriter, r *http.Request) {
	me, ok := httpmw.SelfFromCtx(r.Context())
	if !ok {
		httputil.Error(r.Context(), w, http.StatusForbidden, "forbidden", nil)
		return
	}

	list, err := h.contractSvc.Contracts(r.Context(), me)
	if err != nil {
		writeError(r.Context(), w, "handler.GetContracts:", err)
		return
	}
	if list == nil {
		list = []domain.Contract{}
	}

	httputil.JSON(w, http.StatusOK, list)
}
