package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/sessions", handler.CreateSession)
		r.Get("/sessions/{sessionId}", handler.GetSession)
		r.Post("/sessions/{sessionId}", handler.UpdateSession)
		r.Post("/sessions/{sessionId}/capture", handler.CaptureSession)
		r.Post("/sessions/{sessionId}/cancel", handler.CancelSession)
		r.Post("/sessions/{sessionId}/refund", handler.RefundSession)
		r.Post("/webhook", handler.Webhook)
	})

	return &Server{Router: r}
}
