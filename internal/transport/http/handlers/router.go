package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulseboard/internal/service"
	"github.com/vedran77/pulseboard/internal/transport/http/middleware"
)

type RouterConfig struct {
	Channels       *service.ChannelService
	Messages       *service.MessageService
	WebSocket      http.Handler
	JWTSecret      string
	AllowedOrigins []string
	Log            zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	channelHandler := NewChannelHandler(cfg.Channels)
	messageHandler := NewMessageHandler(cfg.Messages)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((12 * time.Hour).Seconds()),
	}))

	// Public
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", cfg.WebSocket)
	}

	// Protected
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		r.Get("/channels", channelHandler.List)
		r.Post("/channels", channelHandler.Create)
		r.Get("/channels/{id}", channelHandler.Get)
		r.Patch("/channels/{id}", channelHandler.Update)
		r.Delete("/channels/{id}", channelHandler.Delete)

		r.Get("/channels/{id}/messages", messageHandler.List)
		r.Post("/channels/{id}/messages", messageHandler.Send)
		r.Patch("/messages/{id}", messageHandler.Update)
		r.Delete("/messages/{id}", messageHandler.Delete)

		r.Get("/unread", messageHandler.Unread)
	})

	return r
}
