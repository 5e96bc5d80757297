package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/httpserver/handlers"
)

func init() { Register("chat", registerChat) }

func registerChat(r chi.Router, d deps.Deps) {
	r.Post("/api/chat", handlers.Chat(d))
	r.Post("/api/export-chat", handlers.ExportChat(d))
}
