package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/quorumsec/auditcore/internal/api/handlers"
	"github.com/quorumsec/auditcore/internal/auth"
	"github.com/quorumsec/auditcore/internal/services"
	ws "github.com/quorumsec/auditcore/internal/websocket"
)

// NewRouter creates and configures a new Chi router for the audit
// admin/query surface.
func NewRouter(hub *ws.Hub, auditService services.AuditServiceProvider, shipperService services.ShipperServiceProvider, allowedOrigin string) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auditHandler := handlers.NewAuditHandler(auditService)
	endpointHandler := handlers.NewEndpointHandler(shipperService)
	wsHandler := handlers.NewWebSocketHandler(hub)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.JWTMiddleware())

		// Live event feed
		r.Get("/ws", wsHandler.Serve)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", auditHandler.Query)
			r.Post("/", auditHandler.Log)
			r.Get("/stats", auditHandler.Stats)
			r.Get("/export", auditHandler.Export)
		})

		r.Route("/endpoints", func(r chi.Router) {
			r.Get("/", endpointHandler.GetAll)
			r.Post("/", endpointHandler.Register)
			r.Get("/stats", endpointHandler.GetAllStats)
			r.Post("/flush", endpointHandler.FlushAll)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", endpointHandler.Unregister)
				r.Post("/enabled", endpointHandler.SetEnabled)
				r.Get("/stats", endpointHandler.GetStats)
				r.Post("/flush", endpointHandler.Flush)
			})
		})
	})

	return r
}
