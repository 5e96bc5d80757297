package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/httpserver/handlers"
)

func init() { Register("endorsements", registerEndorsements) }

func registerEndorsements(r chi.Router, d deps.Deps) {
	r.Get("/api/endorsements", handlers.ListEndorsements(d))
	r.Put("/api/endorsements", handlers.CreateEndorsement(d))
	r.Post("/api/endorsements/request-otp", handlers.RequestOTP(d))
	r.Get("/api/endorsements/skill/{skillId}", handlers.ListSkillEndorsements(d))
	r.Delete("/api/endorsements/{id}", handlers.DeleteEndorsement(d))
}
