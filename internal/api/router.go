package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		r.Get("/models", apiHandler.ListModelsHandler)

		r.Get("/settings", apiHandler.GetSettingsHandler)
		r.Put("/settings", apiHandler.UpdateSettingsHandler)
		r.Get("/suggestions", apiHandler.SuggestionsHandler)

		// Streams SSE; creates a session when none is given
		r.Post("/chat", apiHandler.ChatHandler)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", apiHandler.ListSessionsHandler)
			r.Post("/", apiHandler.CreateSessionHandler)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", apiHandler.GetSessionHandler)
				r.Delete("/", apiHandler.DeleteSessionHandler)
				r.Post("/select", apiHandler.SelectSessionHandler)
				r.Post("/stop", apiHandler.StopHandler)
				r.Post("/clear", apiHandler.ClearContextHandler)
				r.Post("/undo/{dividerID}", apiHandler.UndoClearHandler)

				r.Post("/messages/{messageID}/edit", apiHandler.EditMessageHandler)
				r.Post("/messages/{messageID}/regenerate", apiHandler.RegenerateHandler)
				r.Get("/messages/{messageID}/render", apiHandler.RenderMessageHandler)
			})
		})
	})

	return r
}
