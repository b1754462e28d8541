package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/propsnap/backend/cmd/desktop/handlers"
	"github.com/propsnap/backend/internal/app"
	"github.com/propsnap/backend/internal/logging"
)

const serviceName = "propsnap-desktop"

// NewRouter builds the HTTP surface of the desktop server.
func NewRouter(a *app.App, hub *WSHub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"` + serviceName + `"}`))
	})
	r.Get("/ws", HandleWebSocket(hub))

	r.Route("/api/queue", handlers.NewQueueHandler(a.Queue, a.Capture).Routes)
	r.Route("/api/sync", handlers.NewSyncHandler(a.Scheduler, a.Engine, a).Routes)
	r.Route("/api/photos", handlers.NewPhotoHandler(a.Photos, a.Capture).Routes)

	records := handlers.NewRecordHandler(a.Capture)
	r.Route("/api/orders", records.OrderRoutes)
	r.Route("/api/floorplans", records.FloorplanRoutes)

	r.Route("/api/notifications", handlers.NewNotificationHandler(a.Notifications).Routes)
	r.Route("/api/session", handlers.NewSessionHandler(a.Session).Routes)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logging.Debug("HTTP request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}
