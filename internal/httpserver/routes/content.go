package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/folio/internal/content"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/httpserver/handlers"
)

func init() { Register("content", registerContent) }

func registerContent(r chi.Router, d deps.Deps) {
	for _, kind := range content.Kinds {
		r.Get("/api/get-"+string(kind), handlers.Document(d, kind))
	}
}
