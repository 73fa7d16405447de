package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes mounts the REST endpoints and the websocket handshake.
func SetupRoutes(h *Handler, ws http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.cors)

	r.Get("/rooms", h.ListRooms)
	r.Post("/rooms", h.CreateRoom)
	r.Get("/matches", h.Matches)
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws)
	return r
}

// cors sets CORS headers and answers preflight requests.
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if allowed := h.Config.AllowedOrigins; len(allowed) > 0 {
			origin = ""
			if o := r.Header.Get("Origin"); slices.Contains(allowed, o) {
				origin = o
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
