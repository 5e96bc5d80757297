package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrSnakeDoc/folio/internal/content"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
)

// Document serves a lookup table as stored on disk.
func Document(d deps.Deps, kind content.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := d.Content.Document(kind)
		if err != nil {
			switch {
			case errors.Is(err, content.ErrFileNotFound):
				writeError(w, d, http.StatusNotFound, fmt.Sprintf("%s file not found", kind.Title()))
			case errors.Is(err, content.ErrInvalidJSON):
				d.Logger.Error("content document is not valid JSON",
					logger.String("document", string(kind)),
					logger.Error(err))
				writeError(w, d, http.StatusInternalServerError, fmt.Sprintf("Invalid JSON format in %s file", kind))
			default:
				d.Logger.Error("content document unreadable",
					logger.String("document", string(kind)),
					logger.Error(err))
				writeError(w, d, http.StatusInternalServerError, fmt.Sprintf("Failed to read %s file", kind))
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			d.Logger.Debug("failed to write response", logger.Error(err))
		}
	}
}
