package http

import (
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/messenger/internal/transport/http/middleware"
	"github.com/cwrk-planet/messenger/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type SessionAuth interface {
	httpmw.Authenticator
	httpmw.SessionToucher
}

type RouterDeps struct {
	Handler *Handler
	Auth    SessionAuth
	// WS — обработчик GET /ws; nil отключает realtime
	WS http.HandlerFunc

	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	h := d.Handler

	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)
	r.Use(middlewareChi.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{HeaderNextCursor, httputil.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WS endpoint, без Timeout: соединение живёт дольше запроса
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewareChi.Timeout(d.RequestTimeout))

		api.Post("/login", h.Login)

		// остальное требует Bearer JWT с живой сессией
		api.Group(func(pr chi.Router) {
			pr.Use(httpmw.AuthMiddleware(d.Auth))
			pr.Use(httpmw.HeartbeatMiddleware(d.Auth))

			pr.Post("/logout", h.Logout)
			pr.Get("/check_session", h.CheckSession)

			pr.Route("/{role}/{id}", func(sr chi.Router) {
				sr.Use(httpmw.RequireSelf)

				sr.Get("/contracts", h.GetContracts)
				sr.Get("/unread", h.Unread)

				sr.Route("/{counterpartRole}/{counterpartId}/messages", func(mr chi.Router) {
					mr.Get("/", h.GetMessages)
					mr.Post("/", h.SendMessage)
					mr.Put("/mark-read", h.MarkRead)
				})
			})
		})
	})

	// health
	r.Get("/healthz", h.Health)

	return r
}
