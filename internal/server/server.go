package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hackpilot/hackpilot/internal/config"
	"github.com/hackpilot/hackpilot/internal/conversation"
	"github.com/hackpilot/hackpilot/internal/database"
	"github.com/hackpilot/hackpilot/internal/handlers"
	"github.com/hackpilot/hackpilot/internal/llm"
	mw "github.com/hackpilot/hackpilot/internal/middleware"
	"github.com/hackpilot/hackpilot/internal/router"
	"github.com/hackpilot/hackpilot/internal/secrets"
	"github.com/hackpilot/hackpilot/internal/usage"
	ws "github.com/hackpilot/hackpilot/internal/websocket"
)

type Server struct {
	Router *chi.Mux
	WSHub  *ws.Hub
}

type Config struct {
	Cfg     *config.Config
	DB      *database.DB
	Manager *conversation.Manager
	Client  *llm.Client
	Meter   *usage.Meter
	Secrets *secrets.Store
	Cmd     *router.Router
	Hub     *ws.Hub
}

func New(cfg Config) *Server {
	s := &Server{
		Router: chi.NewRouter(),
		WSHub:  cfg.Hub,
	}
	s.setupMiddleware()
	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupMiddleware() {
	s.Router.Use(chiMiddleware.RealIP)
	s.Router.Use(mw.RequestID)
	s.Router.Use(mw.SecurityHeaders)
	s.Router.Use(mw.Logger)
	s.Router.Use(mw.LocalOnly)
	s.Router.Use(chiMiddleware.Recoverer)
}

func (s *Server) setupRoutes(cfg Config) {
	chatHandler := handlers.NewChatHandler(cfg.Cmd, cfg.Manager)
	threadsHandler := handlers.NewThreadsHandler(cfg.Manager)
	systemHandler := handlers.NewSystemHandler(cfg.Cfg, cfg.Client, cfg.Cmd, cfg.Meter)
	secretsHandler := handlers.NewSecretsHandler(cfg.Secrets, cfg.Client, cfg.DB)

	s.Router.Route("/api", func(r chi.Router) {
		r.Post("/chat", chatHandler.Send)
		r.Post("/chat/stop", chatHandler.Stop)

		r.Route("/threads", func(r chi.Router) {
			r.Get("/", threadsHandler.List)
			r.Post("/", threadsHandler.Create)
			r.Get("/{id}", threadsHandler.Get)
			r.Post("/{id}/activate", threadsHandler.Activate)
			r.Delete("/{id}", threadsHandler.Delete)
		})

		r.Get("/system/health", systemHandler.Health)
		r.Get("/system/tools", systemHandler.Tools)
		r.Get("/system/models", systemHandler.Models)
		r.Put("/system/model", systemHandler.SetModel)

		r.Get("/usage", systemHandler.Usage)
		r.Post("/usage/reset", systemHandler.ResetUsage)

		r.Route("/secrets/openai-key", func(r chi.Router) {
			r.Get("/", secretsHandler.Status)
			r.Put("/", secretsHandler.Set)
			r.Delete("/", secretsHandler.Delete)
		})
	})

	s.Router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.WSHub.HandleWS(w, r)
	})
}
