package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/vaidashi/gallery-api/internal/models"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
)

// listArtworksHandler returns a page of the catalog, optionally by status
func (s *Server) listArtworksHandler(w http.ResponseWriter, r *http.Request) {
	status := models.ArtworkStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.respondWithAppError(w, r, apperrors.NewValidationError("invalid artwork status"))
		return
	}

	page, limit := boundedPagination(r, 24)

	artworks, err := s.deps.Artworks.List(r.Context(), status, limit, (page-1)*limit)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    PageResponse{Items: artworks, TotalCount: len(artworks), Page: page, Limit: limit},
	})
}

func (s *Server) getArtworkHandler(w http.ResponseWriter, r *http.Request) {
	artwork, err := s.deps.Artworks.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: artwork})
}

// getSettingsHandler serves the public site settings
func (s *Server) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: settings})
}

func (s *Server) updateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var settings models.SiteSettings
	if err := decodeJSON(r, &settings); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	saved, err := s.deps.Settings.Update(r.Context(), &settings)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: saved})
}
