package cmd

import (
	"net/http"

	"virtual-tourist-backend/internal/handlers"
	"virtual-tourist-backend/internal/middleware"
	"virtual-tourist-backend/internal/repository"
	"virtual-tourist-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type routerDeps struct {
	store     repository.RecordStore
	hub       *services.WSHub
	travelers *services.TravelerService
	pins      *services.PinService
	albums    *services.AlbumService
	regions   *services.RegionService
}

func newRouter(d routerDeps) http.Handler {
	// Initialize handlers
	travelerHandler := handlers.NewTravelerHandler(d.travelers)
	pinHandler := handlers.NewPinHandler(d.pins)
	photoHandler := handlers.NewPhotoHandler(d.pins, d.albums)
	regionHandler := handlers.NewRegionHandler(d.regions)
	wsHandler := handlers.NewWebSocketHandler(d.hub, d.travelers, d.pins, d.albums)

	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.store.Ping(r.Context()); err != nil {
			log.Error().Err(err).Msg("Health check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/travelers", travelerHandler.CreateTraveler)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(d.travelers))
			r.Put("/travelers/push-token", travelerHandler.UpdatePushToken)

			r.Get("/pins", pinHandler.ListPins)
			r.Post("/pins", pinHandler.CreatePin)
			r.Get("/pins/{pin_id}", pinHandler.GetPin)
			r.Patch("/pins/{pin_id}", pinHandler.MovePin)
			r.Delete("/pins/{pin_id}", pinHandler.DeletePin)
			r.Get("/pins/{pin_id}/album", photoHandler.GetAlbum)
			r.Post("/pins/{pin_id}/album/refresh", photoHandler.RefreshAlbum)

			r.Get("/photos/{photo_id}/image", photoHandler.GetImage)
			r.Delete("/photos/{photo_id}", photoHandler.DeletePhoto)

			r.Get("/map-region", regionHandler.GetRegion)
			r.Put("/map-region", regionHandler.SaveRegion)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
